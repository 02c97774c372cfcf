package service

import (
	"context"

	"github.com/AdventureDe/LinkIM/message/repo/model"
)

//go:generate mockgen -destination=mocks/mock_collaborators.go -package=mocks github.com/AdventureDe/LinkIM/message/service RelationshipOracle,BlockRegistry

// 以下接口由用户服务的数据实现（repo.UserRepo 同时满足前四个），
// 私信服务只读取，不修改。

// AccountDirectory 账号查询，不存在时返回 nil, nil
type AccountDirectory interface {
	GetUser(ctx context.Context, userID int64) (*model.User, error)
}

// RelationshipOracle 关注关系
type RelationshipOracle interface {
	IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error)
}

// BlockRegistry 黑名单，blocker 是否拉黑了 blocked
type BlockRegistry interface {
	IsBlocked(ctx context.Context, blockerID, blockedID int64) (bool, error)
}

// SettingsStore 用户私信设置，没有记录时返回默认设置
type SettingsStore interface {
	GetMessageSettings(ctx context.Context, userID int64) (model.MessageSettings, error)
}

// CacheInvalidator 缓存失效通知，失败只记日志
type CacheInvalidator interface {
	InvalidateConversationList(ctx context.Context, userID int64) error
	InvalidateUnreadCount(ctx context.Context, userID int64) error
}

// IsMutualFollow reports whether a and b follow each other.
func IsMutualFollow(ctx context.Context, oracle RelationshipOracle, a, b int64) (bool, error) {
	ab, err := oracle.IsFollowing(ctx, a, b)
	if err != nil || !ab {
		return false, err
	}
	return oracle.IsFollowing(ctx, b, a)
}
