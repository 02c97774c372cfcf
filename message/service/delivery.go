package service

import (
	"context"
	"errors"
	"time"

	"github.com/AdventureDe/LinkIM/message/dto"
	"github.com/AdventureDe/LinkIM/message/errs"
	"github.com/AdventureDe/LinkIM/message/repo"
	"github.com/AdventureDe/LinkIM/message/repo/model"

	"go.uber.org/zap"
)

const (
	deliveredMessage = "message delivered"
	pendingMessage   = "the recipient has not replied yet, your message is saved but hidden from them until they reply"
	blockedMessage   = "the recipient has blocked you, the message was not delivered and is visible only to you"
)

// RelationFacts 在事务外读取的关系数据，按检查顺序短路，后面的字段可能未读取
type RelationFacts struct {
	ReceiverBlockedSender bool
	SenderBlockedReceiver bool
	MutualFollow          bool
	SystemAllowsStranger  bool
	ReceiverSettings      model.MessageSettings
}

// Decision 一次发送的处理结果
type Decision struct {
	Status             model.MessageStatus
	CheckHistory       bool // 非互关：还要看首次消息台账和对话关系
	RecordFirstContact bool
	TouchConversation  bool
}

// DecideRelationship applies the block veto, the mutual-follow fast path and
// the stranger permission gate. Permission failures are returned as errors;
// Blocked is a successful decision.
func DecideRelationship(f RelationFacts) (Decision, error) {
	if f.ReceiverBlockedSender {
		return Decision{Status: model.StatusBlocked}, nil
	}
	if f.SenderBlockedReceiver {
		return Decision{}, errs.ErrSenderBlockedReceiver
	}
	if f.MutualFollow {
		return Decision{Status: model.StatusDelivered, TouchConversation: true}, nil
	}
	if !f.SystemAllowsStranger {
		return Decision{}, errs.ErrSystemDisallowsStranger
	}
	if !f.ReceiverSettings.AllowStrangerMessage {
		return Decision{}, errs.ErrRecipientNoStrangers
	}
	if !f.ReceiverSettings.AllowNonMutualFollowMessage {
		return Decision{}, errs.ErrRecipientMutualOnly
	}
	return Decision{CheckHistory: true}, nil
}

// DecideHistory is the anti-harassment gate for a non-mutual pair. fc is the
// sender→receiver first-contact record, nil when absent.
func DecideHistory(fc *model.FirstContact, conversationExists bool) Decision {
	switch {
	case fc != nil && !fc.HasReplied:
		return Decision{Status: model.StatusPending}
	case fc != nil || conversationExists:
		return Decision{Status: model.StatusDelivered, TouchConversation: true}
	default:
		// 首条消息总是可见
		return Decision{Status: model.StatusDelivered, RecordFirstContact: true, TouchConversation: true}
	}
}

// DeliveryDeps 投递状态机依赖的外部数据
type DeliveryDeps struct {
	Accounts  AccountDirectory
	Relations RelationshipOracle
	Blocks    BlockRegistry
	Settings  SettingsStore
	Config    ConfigAccessor
}

// DeliveryStateMachine 决定一条私信是送达、待回复还是被屏蔽，并在同一事务里
// 写入消息、首次消息台账和对话关系。
type DeliveryStateMachine struct {
	messages repo.MessageRepo
	deps     DeliveryDeps
	logger   *zap.Logger
	now      func() time.Time
}

func NewDeliveryStateMachine(messages repo.MessageRepo, deps DeliveryDeps, logger *zap.Logger) *DeliveryStateMachine {
	return &DeliveryStateMachine{
		messages: messages,
		deps:     deps,
		logger:   logger,
		now:      time.Now,
	}
}

// Send runs the delivery checks for an already rate-admitted send. Hard
// rejections are returned as errs.AppError and persist nothing.
func (m *DeliveryStateMachine) Send(ctx context.Context, senderID, receiverID int64, content string) (*dto.SendMessageResult, error) {
	log := m.logger.With(zap.Int64("sender", senderID), zap.Int64("receiver", receiverID))

	// 1. 用户
	if err := m.validateActors(ctx, senderID, receiverID); err != nil {
		return nil, m.storageFailure(log, "read accounts", err)
	}

	// 2. 功能开关
	enabled, err := m.deps.Config.Bool(ctx, KeyEnabled)
	if err != nil {
		return nil, m.storageFailure(log, "read feature flag", err)
	}
	if !enabled {
		log.Warn("private messaging disabled")
		return nil, errs.ErrFeatureDisabled
	}

	// 3. 内容
	maxLen, err := m.deps.Config.Int(ctx, KeyMaxMessageLength)
	if err != nil {
		return nil, m.storageFailure(log, "read max message length", err)
	}
	payload, err := Validate(Classify(content), content, maxLen)
	if err != nil {
		return nil, err
	}

	// 4-6. 屏蔽、关注、陌生人权限
	facts, err := m.relationFacts(ctx, senderID, receiverID)
	if err != nil {
		return nil, m.storageFailure(log, "read relationship", err)
	}
	decision, err := DecideRelationship(facts)
	if err != nil {
		log.Warn("private message rejected", zap.Error(err))
		return nil, err
	}

	// 7-9. 写入
	var msg *model.PrivateMessage
	err = m.messages.Transaction(ctx, func(tx repo.MessageRepo) error {
		var txErr error
		msg, txErr = m.commit(ctx, tx, senderID, receiverID, payload, decision)
		return txErr
	})
	if err != nil {
		return nil, m.storageFailure(log, "commit private message", err)
	}

	log.Info("private message sent",
		zap.Int64("message_id", msg.ID), zap.Stringer("status", msg.Status))
	return dto.NewSendMessageResult(msg.Status, resultMessage(msg.Status), msg.ID), nil
}

func (m *DeliveryStateMachine) validateActors(ctx context.Context, senderID, receiverID int64) error {
	if senderID <= 0 || receiverID <= 0 {
		return errs.ErrMissingUserID
	}
	if senderID == receiverID {
		return errs.ErrSendToSelf
	}
	sender, err := m.deps.Accounts.GetUser(ctx, senderID)
	if err != nil {
		return err
	}
	if sender == nil {
		return errs.ErrSenderNotFound
	}
	receiver, err := m.deps.Accounts.GetUser(ctx, receiverID)
	if err != nil {
		return err
	}
	if receiver == nil {
		return errs.ErrReceiverNotFound
	}
	if !receiver.Status.CanMessage() {
		return errs.ErrReceiverUnavailable
	}
	if !sender.Status.CanMessage() {
		return errs.ErrSenderUnavailable
	}
	return nil
}

// relationFacts reads only what DecideRelationship needs, in its order: a
// receiver-side block is decided before any follow or settings lookup.
func (m *DeliveryStateMachine) relationFacts(ctx context.Context, senderID, receiverID int64) (RelationFacts, error) {
	var f RelationFacts
	var err error

	if f.ReceiverBlockedSender, err = m.deps.Blocks.IsBlocked(ctx, receiverID, senderID); err != nil || f.ReceiverBlockedSender {
		return f, err
	}
	if f.SenderBlockedReceiver, err = m.deps.Blocks.IsBlocked(ctx, senderID, receiverID); err != nil || f.SenderBlockedReceiver {
		return f, err
	}
	if f.MutualFollow, err = IsMutualFollow(ctx, m.deps.Relations, senderID, receiverID); err != nil || f.MutualFollow {
		return f, err
	}
	if f.SystemAllowsStranger, err = m.deps.Config.Bool(ctx, KeyAllowStranger); err != nil || !f.SystemAllowsStranger {
		return f, err
	}
	f.ReceiverSettings, err = m.deps.Settings.GetMessageSettings(ctx, receiverID)
	return f, err
}

// commit runs inside the transaction; any error rolls back every write.
func (m *DeliveryStateMachine) commit(ctx context.Context, tx repo.MessageRepo, senderID, receiverID int64,
	payload Payload, d Decision) (*model.PrivateMessage, error) {

	now := m.now()
	if d.CheckHistory {
		// 先锁住这一对的对话行，双向同时首发时后到者能看到先到者的台账，按回复处理
		created, err := tx.LockConversation(ctx, senderID, receiverID, senderID, now)
		if err != nil {
			return nil, err
		}
		fc, err := tx.FindFirstContact(ctx, senderID, receiverID)
		if err != nil {
			return nil, err
		}
		d = DecideHistory(fc, !created)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg := &model.PrivateMessage{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Kind:       payload.Kind,
		Content:    payload.Content,
		ImageURL:   payload.ImageURL,
		Status:     d.Status,
		CreatedAt:  now,
	}
	if err := tx.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}
	if d.RecordFirstContact {
		fc := &model.FirstContact{SenderID: senderID, ReceiverID: receiverID, FirstMessageID: msg.ID}
		if err := tx.CreateFirstContact(ctx, fc); err != nil {
			m.logger.Error("record first contact failed",
				zap.Int64("sender", senderID), zap.Int64("receiver", receiverID),
				zap.Int64("message_id", msg.ID), zap.Error(err))
			return nil, err
		}
	}
	if d.TouchConversation {
		if err := tx.UpsertConversation(ctx, senderID, receiverID, senderID, now); err != nil {
			return nil, err
		}
	}
	if msg.Status == model.StatusDelivered {
		if err := m.detectReply(ctx, tx, senderID, receiverID, now); err != nil {
			return nil, err
		}
	}
	return msg, ctx.Err()
}

// detectReply unlocks the reverse pair when this message answers an unreplied
// first contact. Messages already saved as Pending stay Pending.
func (m *DeliveryStateMachine) detectReply(ctx context.Context, tx repo.MessageRepo, senderID, receiverID int64, now time.Time) error {
	rev, err := tx.FindFirstContact(ctx, receiverID, senderID)
	if err != nil {
		return err
	}
	if rev == nil || rev.HasReplied {
		return nil
	}
	marked, err := tx.MarkReplied(ctx, receiverID, senderID)
	if err != nil {
		return err
	}
	if err := tx.UpsertConversation(ctx, senderID, receiverID, senderID, now); err != nil {
		return err
	}
	if marked {
		m.logger.Info("first contact replied",
			zap.Int64("first_sender", receiverID), zap.Int64("replier", senderID))
	}
	return nil
}

// storageFailure passes typed rejections through and turns anything else
// into a logged StorageFailure.
func (m *DeliveryStateMachine) storageFailure(log *zap.Logger, step string, err error) error {
	var appErr *errs.AppError
	if errors.As(err, &appErr) && appErr.Kind != errs.KindStorageFailure {
		return err
	}
	log.Error("private message storage failure", zap.String("step", step), zap.Error(err))
	if appErr != nil {
		return err
	}
	return errs.Storage(err)
}

func resultMessage(status model.MessageStatus) string {
	switch status {
	case model.StatusPending:
		return pendingMessage
	case model.StatusBlocked:
		return blockedMessage
	default:
		return deliveredMessage
	}
}
