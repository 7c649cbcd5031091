// Package handler 提供 HTTP 请求处理器
// 本文件定义 Handler 聚合结构和构造函数
// 通过构造函数注入 Service 依赖
package handler

import (
	"kama_social_client/internal/service"
)

// Handlers 聚合所有 Handler 实例
// 作为依赖注入的入口，Router 层通过此结构访问各个 Handler
type Handlers struct {
	Session      *SessionHandler
	Conversation *ConversationHandler
	Notification *NotificationHandler
	Presence     *PresenceHandler
	Ws           *WsHandler

	// Sessions 供鉴权中间件校验凭证
	Sessions service.SessionService
}

// NewHandlers 创建并注入所有 Handler 实例
// 所有 Handler 共享同一个 SessionService，每个请求从中取当前会话
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Session:      NewSessionHandler(svc.Session),
		Conversation: NewConversationHandler(svc.Session),
		Notification: NewNotificationHandler(svc.Session),
		Presence:     NewPresenceHandler(svc.Session),
		Ws:           NewWsHandler(svc.Session),
		Sessions:     svc.Session,
	}
}
