// Package router 提供 HTTP 路由注册
// 本文件定义会话与消息相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterConversationRoutes 注册会话与消息相关路由（需要认证）
func (rt *Router) RegisterConversationRoutes(rg *gin.RouterGroup) {
	convGroup := rg.Group("/conversations")
	{
		convGroup.GET("", rt.handlers.Conversation.List)                                   // 会话列表
		convGroup.POST("", rt.handlers.Conversation.Start)                                 // 发起会话
		convGroup.DELETE("/active", rt.handlers.Conversation.ClearActive)                  // 离开当前会话
		convGroup.GET("/:id/messages", rt.handlers.Conversation.Messages)                  // 消息列表
		convGroup.POST("/:id/messages", rt.handlers.Conversation.Send)                     // 发送消息
		convGroup.POST("/:id/messages/:messageId/resend", rt.handlers.Conversation.Resend) // 重发失败消息
		convGroup.PUT("/:id/read", rt.handlers.Conversation.MarkRead)                      // 标记已读
		convGroup.PUT("/:id/active", rt.handlers.Conversation.SetActive)                   // 打开会话
	}
	rg.GET("/presence/:userId", rt.handlers.Presence.Get) // 在线状态
}
