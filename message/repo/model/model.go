package model

import "time"

// 消息状态，创建时确定，之后不再变化
type MessageStatus int16

const (
	StatusDelivered MessageStatus = 1 // 双方可见
	StatusPending   MessageStatus = 2 // 防骚扰，仅发送方可见
	StatusBlocked   MessageStatus = 3 // 被接收方屏蔽，仅发送方可见
)

func (s MessageStatus) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusPending:
		return "pending"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// 消息类型
type MessageKind int16

const (
	KindText  MessageKind = 1
	KindImage MessageKind = 2
)

// 账号状态
type AccountStatus int16

const (
	AccountActive      AccountStatus = 0
	AccountSuspended   AccountStatus = 1 // 封禁
	AccountPending     AccountStatus = 2 // 待审核
	AccountDeactivated AccountStatus = 3 // 注销
)

// CanMessage reports whether an account in this status may send or receive
// private messages.
func (s AccountStatus) CanMessage() bool {
	return s == AccountActive
}

// 私信（PrivateMessage）
type PrivateMessage struct {
	ID         int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID   int64         `gorm:"not null;index:idx_pm_pair,priority:1" json:"sender_id"`
	ReceiverID int64         `gorm:"not null;index:idx_pm_pair,priority:2;index" json:"receiver_id"`
	Kind       MessageKind   `gorm:"not null;default:1" json:"kind"` // 1. text 2. image
	Content    string        `gorm:"type:text;not null" json:"content"`
	ImageURL   string        `gorm:"size:2000;default:''" json:"image_url,omitempty"`
	Status     MessageStatus `gorm:"not null;index" json:"status"`
	ReadAt     *time.Time    `json:"read_at,omitempty"`
	CreatedAt  time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

// 对话关系（无序用户对），UserLowID < UserHighID
type Conversation struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserLowID     int64     `gorm:"not null;uniqueIndex:uk_conversation_pair,priority:1" json:"user_low_id"`
	UserHighID    int64     `gorm:"not null;uniqueIndex:uk_conversation_pair,priority:2" json:"user_high_id"`
	CreatedBy     int64     `gorm:"not null" json:"created_by"`
	LastMessageAt time.Time `gorm:"not null" json:"last_message_at"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// 首次消息记录（有序用户对），防骚扰台账
type FirstContact struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID       int64     `gorm:"not null;uniqueIndex:uk_first_contact_pair,priority:1" json:"sender_id"`
	ReceiverID     int64     `gorm:"not null;uniqueIndex:uk_first_contact_pair,priority:2" json:"receiver_id"`
	FirstMessageID int64     `gorm:"not null" json:"first_message_id"`
	HasReplied     bool      `gorm:"not null;default:false" json:"has_replied"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// 用户（只读，账号状态由用户服务维护）
type User struct {
	ID        int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Nickname  string        `gorm:"default:'momo'" json:"nickname"`
	Status    AccountStatus `gorm:"not null;default:0" json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// 关注关系（FollowerID 关注 FolloweeID）
type Follow struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FollowerID int64     `gorm:"not null;uniqueIndex:uk_follow_pair,priority:1" json:"follower_id"`
	FolloweeID int64     `gorm:"not null;uniqueIndex:uk_follow_pair,priority:2;index" json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// 黑名单
type Blacklist struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64     `gorm:"not null;uniqueIndex:user_block_unique,priority:1" json:"user_id"`         // 拉黑人
	BlockedUserID int64     `gorm:"not null;uniqueIndex:user_block_unique,priority:2" json:"blocked_user_id"` // 被拉黑的人
	CreatedAt     time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

// 用户私信设置，没有记录时按全部允许处理
type MessageSettings struct {
	UserID                      int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	AllowStrangerMessage        bool      `gorm:"not null" json:"allow_stranger_message"`
	AllowNonMutualFollowMessage bool      `gorm:"not null" json:"allow_non_mutual_follow_message"`
	UpdatedAt                   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MessageSettings) TableName() string {
	return "message_settings"
}

// 系统配置（key-value）
type SysConfig struct {
	ConfigKey   string    `gorm:"primaryKey;size:128" json:"config_key"`
	ConfigValue string    `gorm:"size:512;not null" json:"config_value"`
	Description string    `gorm:"size:256;default:''" json:"description"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultMessageSettings is used when a user has never saved settings.
func DefaultMessageSettings(userID int64) MessageSettings {
	return MessageSettings{
		UserID:                      userID,
		AllowStrangerMessage:        true,
		AllowNonMutualFollowMessage: true,
	}
}

// PairKey canonicalizes an unordered user pair so that low < high.
func PairKey(a, b int64) (low, high int64) {
	if a < b {
		return a, b
	}
	return b, a
}
