// Package router 提供 HTTP 路由注册
// 本文件定义通知相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterNotificationRoutes 注册通知相关路由（需要认证）
func (rt *Router) RegisterNotificationRoutes(rg *gin.RouterGroup) {
	notifyGroup := rg.Group("/notifications")
	{
		notifyGroup.GET("", rt.handlers.Notification.List)                 // 通知列表，支持 filter
		notifyGroup.PUT("/read-all", rt.handlers.Notification.MarkAllRead) // 全部已读
		notifyGroup.PUT("/:id/read", rt.handlers.Notification.MarkRead)    // 单条已读
	}
}
