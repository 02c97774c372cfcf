package router

import (
	"github.com/AdventureDe/LinkIM/message/handler"

	"github.com/gin-gonic/gin"
)

func SetMessageRouter(r *gin.Engine, m *handler.MessageHandler, jwtSecret string) {
	r.Use(handler.RequestID())

	auth := r.Group("/", handler.JWTAuth(jwtSecret))
	auth.POST("/message/send", m.SendPrivateMessage)
	auth.GET("/message/unread", m.UnreadCount)
	auth.GET("/conversations", m.ListConversations)
	auth.GET("/conversation/messages", m.ListMessages)
	auth.PUT("/conversation/read", m.MarkAsRead)

	admin := auth.Group("/admin", handler.RequireAdmin())
	admin.PUT("/config", m.UpdateConfig)
}
