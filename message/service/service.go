package service

import (
	"context"
	"sync"
	"time"

	"github.com/AdventureDe/LinkIM/message/dto"
	"github.com/AdventureDe/LinkIM/message/errs"
	"github.com/AdventureDe/LinkIM/message/repo"

	"go.uber.org/zap"
)

const (
	defaultPageSize   = 20
	maxPageSize       = 100
	unreadCacheTTL    = 30 * time.Second
	convListCacheTTL  = 5 * time.Minute
	invalidateTimeout = 2 * time.Second
)

// ReadCache 未读数和对话列表的读缓存，ok=false 表示未命中
type ReadCache interface {
	GetUnreadCount(ctx context.Context, userID, otherID int64) (count int64, ok bool, err error)
	SetUnreadCount(ctx context.Context, userID, otherID, count int64, ttl time.Duration) error
	GetConversationList(ctx context.Context, userID int64, page, pageSize int) ([]*repo.ConversationSummary, bool, error)
	SetConversationList(ctx context.Context, userID int64, page, pageSize int, list []*repo.ConversationSummary, ttl time.Duration) error
}

type MessageService struct {
	gate      *RateGate
	delivery  *DeliveryStateMachine
	repo      repo.MessageRepo
	sysConfig *SysConfigService
	cache     CacheInvalidator
	reads     ReadCache
	logger    *zap.Logger

	pending sync.WaitGroup // 异步缓存失效
}

func NewMessageService(gate *RateGate, delivery *DeliveryStateMachine, r repo.MessageRepo,
	sysConfig *SysConfigService, redis repo.MessageRedis, logger *zap.Logger) *MessageService {
	s := &MessageService{
		gate:      gate,
		delivery:  delivery,
		repo:      r,
		sysConfig: sysConfig,
		logger:    logger,
	}
	if redis != nil {
		s.cache = redis
		s.reads = redis
	}
	return s
}

// SendPrivateMessage 频控 -> 投递决策 -> 异步失效缓存。
// 频控在内容和关系检查之前执行；Blocked/Pending 返回成功。
func (s *MessageService) SendPrivateMessage(ctx context.Context, senderID, receiverID int64, content string) (*dto.SendMessageResult, error) {
	if senderID <= 0 || receiverID <= 0 {
		return nil, errs.ErrMissingUserID
	}
	if senderID == receiverID {
		return nil, errs.ErrSendToSelf
	}
	if err := s.gate.Admit(ctx, senderID, receiverID); err != nil {
		return nil, err
	}

	result, err := s.delivery.Send(ctx, senderID, receiverID, content)
	if err != nil {
		return nil, err
	}

	s.invalidate(func(ctx context.Context) error {
		return s.cache.InvalidateConversationList(ctx, senderID)
	}, "conversation list", senderID)
	s.invalidate(func(ctx context.Context) error {
		return s.cache.InvalidateConversationList(ctx, receiverID)
	}, "conversation list", receiverID)
	s.invalidate(func(ctx context.Context) error {
		return s.cache.InvalidateUnreadCount(ctx, receiverID)
	}, "unread count", receiverID)
	return result, nil
}

// ListMessages 按 id 倒序分页，viewer 看不到对方的 Pending/Blocked 消息
func (s *MessageService) ListMessages(ctx context.Context, viewerID, otherID, beforeID int64, pageSize int) (*repo.ConversationMessages, error) {
	if viewerID <= 0 || otherID <= 0 {
		return nil, errs.ErrMissingUserID
	}
	messages, err := s.repo.ListMessages(ctx, viewerID, otherID, beforeID, clampPageSize(pageSize))
	if err != nil {
		s.logger.Error("list messages failed",
			zap.Int64("viewer", viewerID), zap.Int64("other", otherID), zap.Error(err))
		return nil, errs.Storage(err)
	}
	return messages, nil
}

// MarkAsRead 标记 other 发给 reader 的已送达消息为已读
func (s *MessageService) MarkAsRead(ctx context.Context, readerID, otherID int64) (int64, error) {
	if readerID <= 0 || otherID <= 0 {
		return 0, errs.ErrMissingUserID
	}
	n, err := s.repo.MarkAsRead(ctx, readerID, otherID, time.Now())
	if err != nil {
		s.logger.Error("mark as read failed",
			zap.Int64("reader", readerID), zap.Int64("other", otherID), zap.Error(err))
		return 0, errs.Storage(err)
	}
	if n > 0 {
		s.invalidate(func(ctx context.Context) error {
			return s.cache.InvalidateUnreadCount(ctx, readerID)
		}, "unread count", readerID)
		// 对话列表里带有未读数
		s.invalidate(func(ctx context.Context) error {
			return s.cache.InvalidateConversationList(ctx, readerID)
		}, "conversation list", readerID)
	}
	return n, nil
}

// UnreadCount 先查缓存，缓存出错时直接查库。otherID 为 0 时返回总数，
// 否则只统计 otherID 发来的。
func (s *MessageService) UnreadCount(ctx context.Context, userID, otherID int64) (int64, error) {
	if userID <= 0 || otherID < 0 {
		return 0, errs.ErrMissingUserID
	}
	if s.reads != nil {
		n, ok, err := s.reads.GetUnreadCount(ctx, userID, otherID)
		if err != nil {
			s.logger.Warn("read unread cache failed", zap.Int64("user", userID), zap.Error(err))
		} else if ok {
			return n, nil
		}
	}

	var n int64
	var err error
	if otherID == 0 {
		n, err = s.repo.CountUnread(ctx, userID)
	} else {
		n, err = s.repo.CountUnreadFrom(ctx, userID, otherID)
	}
	if err != nil {
		s.logger.Error("count unread failed",
			zap.Int64("user", userID), zap.Int64("other", otherID), zap.Error(err))
		return 0, errs.Storage(err)
	}
	if s.reads != nil {
		if err := s.reads.SetUnreadCount(ctx, userID, otherID, n, unreadCacheTTL); err != nil {
			s.logger.Warn("write unread cache failed", zap.Int64("user", userID), zap.Error(err))
		}
	}
	return n, nil
}

// ListConversations 按最近消息时间倒序，page 从 1 开始。发送和已读都会让缓存失效。
func (s *MessageService) ListConversations(ctx context.Context, userID int64, page, pageSize int) ([]*repo.ConversationSummary, error) {
	if userID <= 0 {
		return nil, errs.ErrMissingUserID
	}
	if page <= 0 {
		page = 1
	}
	pageSize = clampPageSize(pageSize)

	if s.reads != nil {
		list, ok, err := s.reads.GetConversationList(ctx, userID, page, pageSize)
		if err != nil {
			s.logger.Warn("read conversation list cache failed", zap.Int64("user", userID), zap.Error(err))
		} else if ok {
			return list, nil
		}
	}

	list, err := s.repo.ListConversations(ctx, userID, page, pageSize)
	if err != nil {
		s.logger.Error("list conversations failed", zap.Int64("user", userID), zap.Error(err))
		return nil, errs.Storage(err)
	}
	if s.reads != nil {
		if err := s.reads.SetConversationList(ctx, userID, page, pageSize, list, convListCacheTTL); err != nil {
			s.logger.Warn("write conversation list cache failed", zap.Int64("user", userID), zap.Error(err))
		}
	}
	return list, nil
}

func (s *MessageService) UpdateConfig(ctx context.Context, key, value string) error {
	return s.sysConfig.UpdateConfig(ctx, key, value)
}

// Wait blocks until every pending cache invalidation has finished.
func (s *MessageService) Wait() {
	s.pending.Wait()
}

// invalidate 异步执行，失败只记日志，不影响调用方
func (s *MessageService) invalidate(fn func(ctx context.Context) error, what string, userID int64) {
	if s.cache == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Warn("cache invalidation failed",
				zap.String("cache", what), zap.Int64("user", userID), zap.Error(err))
		}
	}()
}

func clampPageSize(pageSize int) int {
	if pageSize <= 0 {
		return defaultPageSize
	}
	if pageSize > maxPageSize {
		return maxPageSize
	}
	return pageSize
}
