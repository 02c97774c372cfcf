package service

import (
	"context"
	"time"

	"github.com/AdventureDe/LinkIM/message/config"
	"github.com/AdventureDe/LinkIM/message/errs"
	"github.com/AdventureDe/LinkIM/message/repo"

	"go.uber.org/zap"
)

const cooldownPollInterval = 100 * time.Millisecond

// BurstLimitSource 运行期覆盖 burst 阈值（private_message.rate_limit）
type BurstLimitSource interface {
	BurstLimit(ctx context.Context, fallback int) int
}

// RateGate 发送频控，两层：
//   - burst：固定窗口计数，窗口内超过阈值拒绝（too frequent）
//   - cooldown：同一发送方到同一接收方的最小发送间隔（too fast）
//
// cooldown 标记只靠 TTL 过期，没有释放操作；它限制的是发送间隔，不保护临界区。
// 存储不可用时拒绝发送。
type RateGate struct {
	store  repo.RateStore
	cfg    config.RateLimit
	limits BurstLimitSource
	logger *zap.Logger
}

// NewRateGate builds a gate over store. limits may be nil.
func NewRateGate(store repo.RateStore, cfg config.RateLimit, limits BurstLimitSource, logger *zap.Logger) *RateGate {
	return &RateGate{
		store:  store,
		cfg:    cfg,
		limits: limits,
		logger: logger,
	}
}

// Admit returns nil when the send may proceed, or a RateLimited error naming
// the layer that tripped.
func (g *RateGate) Admit(ctx context.Context, senderID, receiverID int64) error {
	if err := g.checkBurst(ctx, senderID, receiverID); err != nil {
		return err
	}
	return g.acquireCooldown(ctx, senderID, receiverID)
}

func (g *RateGate) burstLimit(ctx context.Context) int {
	if g.limits == nil {
		return g.cfg.BurstLimit
	}
	return g.limits.BurstLimit(ctx, g.cfg.BurstLimit)
}

func (g *RateGate) checkBurst(ctx context.Context, senderID, receiverID int64) error {
	limit := g.burstLimit(ctx)

	storeCtx, cancel := g.storeContext(ctx)
	n, err := g.store.IncrWindow(storeCtx, repo.RateKey(senderID, receiverID), g.cfg.BurstWindow)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.logger.Error("rate store unavailable, denying send",
			zap.Int64("sender", senderID), zap.Int64("receiver", receiverID), zap.Error(err))
		return errs.ErrRateGateUnavailable
	}
	if n > int64(limit) {
		g.logger.Warn("burst limit reached",
			zap.Int64("sender", senderID), zap.Int64("receiver", receiverID),
			zap.Int64("count", n), zap.Int("limit", limit))
		return errs.ErrTooFrequent
	}
	return nil
}

// acquireCooldown polls for the marker until CooldownWait has elapsed.
func (g *RateGate) acquireCooldown(ctx context.Context, senderID, receiverID int64) error {
	if g.cfg.Cooldown <= 0 {
		return nil
	}
	key := repo.CooldownKey(senderID, receiverID)
	deadline := time.Now().Add(g.cfg.CooldownWait)

	for {
		storeCtx, cancel := g.storeContext(ctx)
		ok, err := g.store.TryMark(storeCtx, key, g.cfg.Cooldown)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.Error("rate store unavailable, denying send",
				zap.Int64("sender", senderID), zap.Int64("receiver", receiverID), zap.Error(err))
			return errs.ErrRateGateUnavailable
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			g.logger.Warn("cooldown not elapsed",
				zap.Int64("sender", senderID), zap.Int64("receiver", receiverID))
			return errs.ErrTooFast
		}
		wait := cooldownPollInterval
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (g *RateGate) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.StoreTimeout)
}
