package repo

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RateStore 频控存储，两种原语都必须是原子的
type RateStore interface {
	// IncrWindow atomically increments key and returns the new value. The
	// increment that creates the key (new value 1) sets its TTL to window.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
	// TryMark sets key only if absent and reports whether it did. There is no
	// release: the marker disappears when ttl elapses.
	TryMark(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MessageRedis 频控 + 缓存
//
// 每个用户的未读数和对话列表各是一个 hash：未读数按对方 id 分 field（0 表示总数），
// 对话列表按 "page:size" 分 field。失效时整个 key 删除，所有分页一起失效。
type MessageRedis interface {
	RateStore
	InvalidateConversationList(ctx context.Context, userID int64) error
	InvalidateUnreadCount(ctx context.Context, userID int64) error
	// GetUnreadCount returns ok=false on a cache miss. otherID 0 is the total.
	GetUnreadCount(ctx context.Context, userID, otherID int64) (count int64, ok bool, err error)
	SetUnreadCount(ctx context.Context, userID, otherID, count int64, ttl time.Duration) error
	// GetConversationList returns ok=false on a cache miss.
	GetConversationList(ctx context.Context, userID int64, page, pageSize int) ([]*ConversationSummary, bool, error)
	SetConversationList(ctx context.Context, userID int64, page, pageSize int, list []*ConversationSummary, ttl time.Duration) error
}

// INCR 与 PEXPIRE 放在同一个脚本里，避免并发下计数丢失或 key 永不过期
var incrWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return current
`)

type messageRedis struct {
	redis *redis.Client
}

func NewMessageRedis(r *redis.Client) MessageRedis {
	return &messageRedis{
		redis: r,
	}
}

func (m *messageRedis) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := incrWindowScript.Run(ctx, m.redis, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, errors.Wrap(err, "messageRedis.IncrWindow.Eval")
	}
	return n, nil
}

func (m *messageRedis) TryMark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := m.redis.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "messageRedis.TryMark.SetNX")
	}
	return ok, nil
}

func (m *messageRedis) InvalidateConversationList(ctx context.Context, userID int64) error {
	if err := m.redis.Del(ctx, ConversationListKey(userID)).Err(); err != nil {
		return errors.Wrap(err, "messageRedis.InvalidateConversationList.Del")
	}
	return nil
}

func (m *messageRedis) InvalidateUnreadCount(ctx context.Context, userID int64) error {
	if err := m.redis.Del(ctx, UnreadCountKey(userID)).Err(); err != nil {
		return errors.Wrap(err, "messageRedis.InvalidateUnreadCount.Del")
	}
	return nil
}

func (m *messageRedis) GetUnreadCount(ctx context.Context, userID, otherID int64) (int64, bool, error) {
	n, err := m.redis.HGet(ctx, UnreadCountKey(userID), unreadField(otherID)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "messageRedis.GetUnreadCount.HGet")
	}
	return n, true, nil
}

func (m *messageRedis) SetUnreadCount(ctx context.Context, userID, otherID, count int64, ttl time.Duration) error {
	if err := m.setField(ctx, UnreadCountKey(userID), unreadField(otherID), count, ttl); err != nil {
		return errors.Wrap(err, "messageRedis.SetUnreadCount")
	}
	return nil
}

func (m *messageRedis) GetConversationList(ctx context.Context, userID int64, page, pageSize int) ([]*ConversationSummary, bool, error) {
	raw, err := m.redis.HGet(ctx, ConversationListKey(userID), pageField(page, pageSize)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "messageRedis.GetConversationList.HGet")
	}
	var list []*ConversationSummary
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false, errors.Wrap(err, "messageRedis.GetConversationList.Unmarshal")
	}
	return list, true, nil
}

func (m *messageRedis) SetConversationList(ctx context.Context, userID int64, page, pageSize int, list []*ConversationSummary, ttl time.Duration) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return errors.Wrap(err, "messageRedis.SetConversationList.Marshal")
	}
	if err := m.setField(ctx, ConversationListKey(userID), pageField(page, pageSize), raw, ttl); err != nil {
		return errors.Wrap(err, "messageRedis.SetConversationList")
	}
	return nil
}

// setField 写 field 并刷新整个 hash 的过期时间
func (m *messageRedis) setField(ctx context.Context, key, field string, value interface{}, ttl time.Duration) error {
	_, err := m.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, field, value)
		p.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

func unreadField(otherID int64) string {
	if otherID <= 0 {
		return "all"
	}
	return strconv.FormatInt(otherID, 10)
}

func pageField(page, pageSize int) string {
	return strconv.Itoa(page) + ":" + strconv.Itoa(pageSize)
}

// key 规则
func RateKey(senderID, receiverID int64) string {
	return "pm:rate:" + strconv.FormatInt(senderID, 10) + ":" + strconv.FormatInt(receiverID, 10)
}

func CooldownKey(senderID, receiverID int64) string {
	return "pm:cooldown:" + strconv.FormatInt(senderID, 10) + ":" + strconv.FormatInt(receiverID, 10)
}

func ConversationListKey(userID int64) string {
	return "pm:conv_list:" + strconv.FormatInt(userID, 10)
}

func UnreadCountKey(userID int64) string {
	return "pm:unread:" + strconv.FormatInt(userID, 10)
}
