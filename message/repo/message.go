package repo

import (
	"context"
	"time"

	"github.com/AdventureDe/LinkIM/message/repo/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 会话消息返回结构
type ConversationMessages struct {
	Conversation *model.Conversation     `json:"conversation"` // 未建立对话时为 nil
	Messages     []*model.PrivateMessage `json:"messages"`     // 按 id 倒序
	HasMore      bool                    `json:"has_more"`
}

// 对话列表项，PeerID 是对方用户
type ConversationSummary struct {
	ConversationID int64     `json:"conversation_id"`
	PeerID         int64     `json:"peer_id"`
	CreatedBy      int64     `json:"created_by"`
	LastMessageAt  time.Time `json:"last_message_at"`
	UnreadCount    int64     `json:"unread_count"`
}

// MessageRepo 私信存储：消息、首次消息台账、对话关系
type MessageRepo interface {
	// Transaction runs fn with a MessageRepo bound to a single database
	// transaction. fn's error rolls everything back.
	Transaction(ctx context.Context, fn func(tx MessageRepo) error) error

	SaveMessage(ctx context.Context, msg *model.PrivateMessage) error
	ListMessages(ctx context.Context, viewerID, otherID, beforeID int64, pageSize int) (*ConversationMessages, error)
	MarkAsRead(ctx context.Context, readerID, otherID int64, at time.Time) (int64, error)
	CountUnread(ctx context.Context, receiverID int64) (int64, error)
	CountUnreadFrom(ctx context.Context, receiverID, senderID int64) (int64, error)

	// 首次消息（有序用户对）
	FindFirstContact(ctx context.Context, senderID, receiverID int64) (*model.FirstContact, error)
	CreateFirstContact(ctx context.Context, fc *model.FirstContact) error
	MarkReplied(ctx context.Context, senderID, receiverID int64) (bool, error)

	// 对话关系（无序用户对）
	ConversationExists(ctx context.Context, userA, userB int64) (bool, error)
	FindConversation(ctx context.Context, userA, userB int64) (*model.Conversation, error)
	UpsertConversation(ctx context.Context, userA, userB, createdBy int64, at time.Time) error
	// LockConversation creates the pair's conversation if it is absent, or
	// takes a row lock on it otherwise, and reports whether it created it.
	// Inside a transaction this serializes concurrent sends within one pair.
	LockConversation(ctx context.Context, userA, userB, createdBy int64, at time.Time) (bool, error)
	// ListConversations returns userID's conversations, newest first. page starts at 1.
	ListConversations(ctx context.Context, userID int64, page, pageSize int) ([]*ConversationSummary, error)
}

type messageRepo struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepo{db: db}
}

func (r *messageRepo) Transaction(ctx context.Context, fn func(tx MessageRepo) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&messageRepo{db: tx})
	})
}

func (r *messageRepo) SaveMessage(ctx context.Context, msg *model.PrivateMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return errors.Wrap(err, "messageRepo.SaveMessage.Create")
	}
	return nil
}

// ListMessages 返回 viewer 视角下与 other 的消息：自己发出的全部可见，
// 对方发来的只有 Delivered 可见。beforeID > 0 时做游标分页。
func (r *messageRepo) ListMessages(ctx context.Context, viewerID, otherID, beforeID int64, pageSize int) (*ConversationMessages, error) {
	var messages []*model.PrivateMessage
	q := r.db.WithContext(ctx).
		Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ? AND status = ?))",
			viewerID, otherID, otherID, viewerID, model.StatusDelivered).
		Order("id DESC").
		Limit(pageSize + 1) // 多拉一条用于判断 HasMore
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, errors.Wrap(err, "messageRepo.ListMessages.Find")
	}

	hasMore := false
	if len(messages) > pageSize {
		hasMore = true
		messages = messages[:pageSize]
	}

	conv, err := r.FindConversation(ctx, viewerID, otherID)
	if err != nil {
		return nil, err
	}
	return &ConversationMessages{
		Conversation: conv,
		Messages:     messages,
		HasMore:      hasMore,
	}, nil
}

// MarkAsRead 只标记对方发来且已送达的消息
func (r *messageRepo) MarkAsRead(ctx context.Context, readerID, otherID int64, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.PrivateMessage{}).
		Where("receiver_id = ? AND sender_id = ? AND status = ? AND read_at IS NULL",
			readerID, otherID, model.StatusDelivered).
		Update("read_at", at)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "messageRepo.MarkAsRead.Update")
	}
	return res.RowsAffected, nil
}

func (r *messageRepo) CountUnread(ctx context.Context, receiverID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.PrivateMessage{}).
		Where("receiver_id = ? AND status = ? AND read_at IS NULL", receiverID, model.StatusDelivered).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "messageRepo.CountUnread.Count")
	}
	return count, nil
}

func (r *messageRepo) CountUnreadFrom(ctx context.Context, receiverID, senderID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.PrivateMessage{}).
		Where("receiver_id = ? AND sender_id = ? AND status = ? AND read_at IS NULL",
			receiverID, senderID, model.StatusDelivered).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "messageRepo.CountUnreadFrom.Count")
	}
	return count, nil
}

// FindFirstContact 不存在时返回 nil, nil
func (r *messageRepo) FindFirstContact(ctx context.Context, senderID, receiverID int64) (*model.FirstContact, error) {
	var fc model.FirstContact
	res := r.db.WithContext(ctx).
		Where("sender_id = ? AND receiver_id = ?", senderID, receiverID).
		Limit(1).
		Find(&fc)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "messageRepo.FindFirstContact.Find")
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &fc, nil
}

func (r *messageRepo) CreateFirstContact(ctx context.Context, fc *model.FirstContact) error {
	if err := r.db.WithContext(ctx).Create(fc).Error; err != nil {
		return errors.Wrap(err, "messageRepo.CreateFirstContact.Create")
	}
	if fc.ID <= 0 {
		return errors.New("messageRepo.CreateFirstContact: no id assigned")
	}
	return nil
}

// MarkReplied 只在 has_replied=false 时更新，重复调用无副作用
func (r *messageRepo) MarkReplied(ctx context.Context, senderID, receiverID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.FirstContact{}).
		Where("sender_id = ? AND receiver_id = ? AND has_replied = ?", senderID, receiverID, false).
		Update("has_replied", true)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "messageRepo.MarkReplied.Update")
	}
	return res.RowsAffected > 0, nil
}

func (r *messageRepo) ConversationExists(ctx context.Context, userA, userB int64) (bool, error) {
	low, high := model.PairKey(userA, userB)
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "messageRepo.ConversationExists.Count")
	}
	return count > 0, nil
}

func (r *messageRepo) FindConversation(ctx context.Context, userA, userB int64) (*model.Conversation, error) {
	low, high := model.PairKey(userA, userB)
	var conv model.Conversation
	res := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		Limit(1).
		Find(&conv)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "messageRepo.FindConversation.Find")
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &conv, nil
}

// UpsertConversation 依赖 (user_low_id, user_high_id) 唯一索引：
// 并发双向首发时后到者转为更新 last_message_at，不会产生重复行
func (r *messageRepo) UpsertConversation(ctx context.Context, userA, userB, createdBy int64, at time.Time) error {
	low, high := model.PairKey(userA, userB)
	conv := model.Conversation{
		UserLowID:     low,
		UserHighID:    high,
		CreatedBy:     createdBy,
		LastMessageAt: at,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_low_id"}, {Name: "user_high_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"last_message_at": at}),
		}).
		Create(&conv).Error
	if err != nil {
		return errors.Wrap(err, "messageRepo.UpsertConversation.Create")
	}
	return nil
}

func (r *messageRepo) LockConversation(ctx context.Context, userA, userB, createdBy int64, at time.Time) (bool, error) {
	low, high := model.PairKey(userA, userB)
	conv := model.Conversation{
		UserLowID:     low,
		UserHighID:    high,
		CreatedBy:     createdBy,
		LastMessageAt: at,
	}
	// 另一个事务刚插入同一对时，这里会等它提交
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_low_id"}, {Name: "user_high_id"}},
			DoNothing: true,
		}).
		Create(&conv)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "messageRepo.LockConversation.Create")
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var locked model.Conversation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		Take(&locked).Error
	if err != nil {
		return false, errors.Wrap(err, "messageRepo.LockConversation.Take")
	}
	return false, nil
}

type unreadBySender struct {
	SenderID int64
	Unread   int64
}

// ListConversations 按 last_message_at 倒序，带上每个对方发来的未读数
func (r *messageRepo) ListConversations(ctx context.Context, userID int64, page, pageSize int) ([]*ConversationSummary, error) {
	var convs []model.Conversation
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? OR user_high_id = ?", userID, userID).
		Order("last_message_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&convs).Error
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.ListConversations.Find")
	}
	if len(convs) == 0 {
		return []*ConversationSummary{}, nil
	}

	out := make([]*ConversationSummary, 0, len(convs))
	peers := make([]int64, 0, len(convs))
	for _, c := range convs {
		peer := c.UserLowID
		if peer == userID {
			peer = c.UserHighID
		}
		peers = append(peers, peer)
		out = append(out, &ConversationSummary{
			ConversationID: c.ID,
			PeerID:         peer,
			CreatedBy:      c.CreatedBy,
			LastMessageAt:  c.LastMessageAt,
		})
	}

	var counts []unreadBySender
	err = r.db.WithContext(ctx).
		Model(&model.PrivateMessage{}).
		Select("sender_id, COUNT(*) AS unread").
		Where("receiver_id = ? AND sender_id IN ? AND status = ? AND read_at IS NULL",
			userID, peers, model.StatusDelivered).
		Group("sender_id").
		Scan(&counts).Error
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.ListConversations.CountUnread")
	}
	unread := make(map[int64]int64, len(counts))
	for _, c := range counts {
		unread[c.SenderID] = c.Unread
	}
	for _, s := range out {
		s.UnreadCount = unread[s.PeerID]
	}
	return out, nil
}
