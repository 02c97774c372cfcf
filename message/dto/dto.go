package dto

import (
	"github.com/AdventureDe/LinkIM/message/repo/model"
)

// SendMessageResult 发送结果。Blocked 和 Pending 也是发送成功，只是接收方看不到
type SendMessageResult struct {
	Status     model.MessageStatus `json:"status"`
	StatusName string              `json:"status_name"`
	Message    string              `json:"message"`
	MessageID  int64               `json:"message_id"`
}

func NewSendMessageResult(status model.MessageStatus, message string, messageID int64) *SendMessageResult {
	return &SendMessageResult{
		Status:     status,
		StatusName: status.String(),
		Message:    message,
		MessageID:  messageID,
	}
}

// 请求结构，发送方/读取方由鉴权中间件给出
type SendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id" binding:"required"`
	Content    string `json:"content"`
}

type ListMessagesRequest struct {
	OtherID  int64 `form:"other_id" binding:"required"`
	BeforeID int64 `form:"before_id"`
	PageSize int   `form:"page_size"`
}

type MarkAsReadRequest struct {
	OtherID int64 `json:"other_id" binding:"required"`
}

type UpdateConfigRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

// OtherID 为 0 时统计全部未读
type UnreadCountRequest struct {
	OtherID int64 `form:"other_id"`
}

type UnreadCount struct {
	UserID  int64 `json:"user_id"`
	OtherID int64 `json:"other_id,omitempty"`
	Count   int64 `json:"count"`
}

type ListConversationsRequest struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}
