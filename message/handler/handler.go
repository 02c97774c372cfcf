package handler

import (
	"net/http"

	"github.com/AdventureDe/LinkIM/message/dto"
	"github.com/AdventureDe/LinkIM/message/errs"
	"github.com/AdventureDe/LinkIM/message/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MessageHandler struct {
	service *service.MessageService
	logger  *zap.Logger
}

func NewMessageHandler(s *service.MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		service: s,
		logger:  logger,
	}
}

func (h *MessageHandler) SendPrivateMessage(c *gin.Context) {
	var input dto.SendMessageRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	result, err := h.service.SendPrivateMessage(c.Request.Context(), CurrentUserID(c), input.ReceiverID, input.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	// Blocked/Pending 同样返回 200，客户端不能当成发送失败
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": result.Message,
		"detail":  result,
	})
}

func (h *MessageHandler) ListMessages(c *gin.Context) {
	var input dto.ListMessagesRequest
	if err := c.ShouldBindQuery(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	messages, err := h.service.ListMessages(c.Request.Context(), CurrentUserID(c), input.OtherID, input.BeforeID, input.PageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "load message ok",
		"detail":  messages,
	})
}

func (h *MessageHandler) MarkAsRead(c *gin.Context) {
	var input dto.MarkAsReadRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	n, err := h.service.MarkAsRead(c.Request.Context(), CurrentUserID(c), input.OtherID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "mark as read ok",
		"detail":  gin.H{"updated": n},
	})
}

func (h *MessageHandler) UnreadCount(c *gin.Context) {
	var input dto.UnreadCountRequest
	if err := c.ShouldBindQuery(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	userID := CurrentUserID(c)
	n, err := h.service.UnreadCount(c.Request.Context(), userID, input.OtherID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "get unread count ok",
		"detail":  dto.UnreadCount{UserID: userID, OtherID: input.OtherID, Count: n},
	})
}

func (h *MessageHandler) ListConversations(c *gin.Context) {
	var input dto.ListConversationsRequest
	if err := c.ShouldBindQuery(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	conversations, err := h.service.ListConversations(c.Request.Context(), CurrentUserID(c), input.Page, input.PageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "load conversations ok",
		"detail":  conversations,
	})
}

func (h *MessageHandler) UpdateConfig(c *gin.Context) {
	var input dto.UpdateConfigRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.service.UpdateConfig(c.Request.Context(), input.Key, input.Value); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "update config ok",
	})
}

func (h *MessageHandler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":  1,
		"kind":  errs.KindValidation,
		"error": err.Error(),
	})
}

// fail 按错误类型返回状态码，StorageFailure 只返回通用提示
func (h *MessageHandler) fail(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	if kind == errs.KindStorageFailure {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.Error(err))
	}
	c.JSON(errs.HTTPStatus(kind), gin.H{
		"code":  1,
		"kind":  kind,
		"error": errs.PublicMessage(err),
	})
}
