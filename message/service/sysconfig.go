package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/AdventureDe/LinkIM/message/errs"
	"github.com/AdventureDe/LinkIM/message/repo"

	"go.uber.org/zap"
)

// 运行期可调的系统配置
const (
	KeyEnabled          = "private_message.enabled"
	KeyAllowStranger    = "private_message.allow_stranger"
	KeyMaxMessageLength = "private_message.max_message_length"
	KeyRateLimit        = "private_message.rate_limit"
)

type configRule struct {
	isBool   bool
	defBool  bool
	defInt   int
	min, max int
}

// 白名单：只有这些 key 可以通过接口修改
var configRules = map[string]configRule{
	KeyEnabled:          {isBool: true, defBool: true},
	KeyAllowStranger:    {isBool: true, defBool: true},
	KeyMaxMessageLength: {defInt: DefaultMaxMessageLength, min: 1, max: 10000},
	KeyRateLimit:        {min: 1, max: 1000}, // 不设置时沿用启动配置的 burst_limit
}

// ConfigAccessor 系统配置读取
type ConfigAccessor interface {
	Bool(ctx context.Context, key string) (bool, error)
	Int(ctx context.Context, key string) (int, error)
}

type SysConfigService struct {
	repo   repo.SysConfigRepo
	logger *zap.Logger
}

func NewSysConfigService(r repo.SysConfigRepo, logger *zap.Logger) *SysConfigService {
	return &SysConfigService{
		repo:   r,
		logger: logger,
	}
}

// Bool returns the stored flag, or the key's default when it is unset or
// not a recognised boolean. Only storage errors are returned.
func (s *SysConfigService) Bool(ctx context.Context, key string) (bool, error) {
	rule := configRules[key]
	raw, ok, err := s.repo.FindValue(ctx, key)
	if err != nil {
		return rule.defBool, err
	}
	if !ok {
		return rule.defBool, nil
	}
	switch strings.TrimSpace(raw) {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	}
	s.logger.Warn("invalid boolean config, using default",
		zap.String("key", key), zap.String("value", raw), zap.Bool("default", rule.defBool))
	return rule.defBool, nil
}

// Int returns the stored value, or the key's default when it is unset or
// outside the key's range.
func (s *SysConfigService) Int(ctx context.Context, key string) (int, error) {
	rule := configRules[key]
	n, ok, err := s.intValue(ctx, key, rule)
	if err != nil || !ok {
		return rule.defInt, err
	}
	return n, nil
}

// BurstLimit returns private_message.rate_limit when it is set and valid,
// otherwise fallback. A failed read is logged and treated as unset.
func (s *SysConfigService) BurstLimit(ctx context.Context, fallback int) int {
	n, ok, err := s.intValue(ctx, KeyRateLimit, configRules[KeyRateLimit])
	if err != nil {
		s.logger.Warn("read rate limit config failed, using startup value", zap.Error(err))
		return fallback
	}
	if !ok {
		return fallback
	}
	return n
}

func (s *SysConfigService) intValue(ctx context.Context, key string, rule configRule) (int, bool, error) {
	raw, ok, err := s.repo.FindValue(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(raw))
	if convErr != nil || n < rule.min || n > rule.max {
		s.logger.Warn("invalid integer config, ignoring",
			zap.String("key", key), zap.String("value", raw))
		return 0, false, nil
	}
	return n, true, nil
}

// UpdateConfig 只允许白名单中的 key，布尔值只能是 0/1，整数必须在范围内
func (s *SysConfigService) UpdateConfig(ctx context.Context, key, value string) error {
	rule, ok := configRules[key]
	if !ok {
		return errs.ErrConfigKeyReadonly
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return errs.ErrInvalidConfigValue(key, "value cannot be empty")
	}
	if rule.isBool {
		if value != "0" && value != "1" {
			return errs.ErrInvalidConfigValue(key, "must be 0 or 1")
		}
	} else {
		n, err := strconv.Atoi(value)
		if err != nil {
			return errs.ErrInvalidConfigValue(key, "must be an integer")
		}
		if n < rule.min || n > rule.max {
			return errs.ErrInvalidConfigValue(key,
				"must be between "+strconv.Itoa(rule.min)+" and "+strconv.Itoa(rule.max))
		}
	}
	if err := s.repo.SaveValue(ctx, key, value); err != nil {
		return errs.Storage(err)
	}
	s.logger.Info("system config updated", zap.String("key", key), zap.String("value", value))
	return nil
}
