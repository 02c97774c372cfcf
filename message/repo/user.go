package repo

import (
	"context"

	"github.com/AdventureDe/LinkIM/message/repo/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepo 私信服务对用户域的只读访问（账号状态、关注、黑名单、私信设置）。
// 写方法只供用户服务同步数据和测试使用。
type UserRepo interface {
	// 账号
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	// 关注
	IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error)
	Follow(ctx context.Context, followerID, followeeID int64) error
	// 黑名单
	IsBlocked(ctx context.Context, blockerID, blockedID int64) (bool, error)
	BlockUser(ctx context.Context, blockerID, blockedID int64) error
	UnblockUser(ctx context.Context, blockerID, blockedID int64) error
	// 私信设置
	GetMessageSettings(ctx context.Context, userID int64) (model.MessageSettings, error)
	SaveMessageSettings(ctx context.Context, settings *model.MessageSettings) error
}

type userRepo struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) UserRepo {
	return &userRepo{db: db}
}

// GetUser 用户不存在时返回 nil, nil
func (r *userRepo) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	res := r.db.WithContext(ctx).Where("id = ?", userID).Limit(1).Find(&user)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "userRepo.GetUser.Find")
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *userRepo) IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "userRepo.IsFollowing.Count")
	}
	return count > 0, nil
}

func (r *userRepo) Follow(ctx context.Context, followerID, followeeID int64) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Follow{FollowerID: followerID, FolloweeID: followeeID}).Error
	if err != nil {
		return errors.Wrap(err, "userRepo.Follow.Create")
	}
	return nil
}

func (r *userRepo) IsBlocked(ctx context.Context, blockerID, blockedID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Blacklist{}).
		Where("user_id = ? AND blocked_user_id = ?", blockerID, blockedID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "userRepo.IsBlocked.Count")
	}
	return count > 0, nil
}

// 拉黑
func (r *userRepo) BlockUser(ctx context.Context, blockerID, blockedID int64) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Blacklist{UserID: blockerID, BlockedUserID: blockedID}).Error
	if err != nil {
		return errors.Wrap(err, "userRepo.BlockUser.Create")
	}
	return nil
}

// 取消拉黑
func (r *userRepo) UnblockUser(ctx context.Context, blockerID, blockedID int64) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND blocked_user_id = ?", blockerID, blockedID).
		Delete(&model.Blacklist{}).Error
	if err != nil {
		return errors.Wrap(err, "userRepo.UnblockUser.Delete")
	}
	return nil
}

// GetMessageSettings 没有记录时返回默认设置（全部允许）
func (r *userRepo) GetMessageSettings(ctx context.Context, userID int64) (model.MessageSettings, error) {
	var settings model.MessageSettings
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&settings)
	if res.Error != nil {
		return model.MessageSettings{}, errors.Wrap(res.Error, "userRepo.GetMessageSettings.Find")
	}
	if res.RowsAffected == 0 {
		return model.DefaultMessageSettings(userID), nil
	}
	return settings, nil
}

func (r *userRepo) SaveMessageSettings(ctx context.Context, settings *model.MessageSettings) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"allow_stranger_message", "allow_non_mutual_follow_message", "updated_at"}),
		}).
		Create(settings).Error
	if err != nil {
		return errors.Wrap(err, "userRepo.SaveMessageSettings.Create")
	}
	return nil
}
