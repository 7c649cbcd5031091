// Package router 提供 HTTP 路由注册
// 本文件定义 WebSocket 变更推送路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterWebSocketRoutes 注册 WebSocket 相关路由（需要认证）
func (rt *Router) RegisterWebSocketRoutes(rg *gin.RouterGroup) {
	// 本地变更推送
	// 请求示例: ws://127.0.0.1:8000/ws?token=<凭证>
	rg.GET("/ws", rt.handlers.Ws.ChangeFeed)
}
