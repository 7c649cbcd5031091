// Package handler 提供 HTTP 请求处理器
// 本文件处理通知与在线状态相关的 API 请求
package handler

import (
	"kama_social_client/internal/dto/request"
	"kama_social_client/internal/dto/respond"
	"kama_social_client/internal/service"
	"kama_social_client/internal/service/notification"

	"github.com/gin-gonic/gin"
)

// NotificationHandler 通知请求处理器
type NotificationHandler struct {
	sessionService service.SessionService
}

// NewNotificationHandler 创建通知处理器实例
func NewNotificationHandler(sessionService service.SessionService) *NotificationHandler {
	return &NotificationHandler{sessionService: sessionService}
}

// List 通知列表
// GET /notifications?filter=all|unread|<type>
func (h *NotificationHandler) List(c *gin.Context) {
	var req request.NotificationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	pred, err := notification.ParseFilter(req.Filter)
	if err != nil {
		HandleError(c, err)
		return
	}
	scope, ok := currentScope(c, h.sessionService)
	if !ok {
		return
	}
	out := respond.NotificationListView{
		Unread: scope.Notifications.UnreadCount(),
		Items:  []respond.NotificationView{},
	}
	for n := range scope.Notifications.Filter(pred) {
		out.Items = append(out.Items, notificationView(n))
	}
	HandleSuccess(c, out)
}

// MarkRead 单条标记已读
// PUT /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	scope, ok := currentScope(c, h.sessionService)
	if !ok {
		return
	}
	if err := scope.Notifications.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"unread": scope.Notifications.UnreadCount()})
}

// MarkAllRead 全部标记已读
// PUT /notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	scope, ok := currentScope(c, h.sessionService)
	if !ok {
		return
	}
	if err := scope.Notifications.MarkAllRead(c.Request.Context()); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"unread": scope.Notifications.UnreadCount()})
}

// PresenceHandler 在线状态请求处理器
type PresenceHandler struct {
	sessionService service.SessionService
}

// NewPresenceHandler 创建在线状态处理器实例
func NewPresenceHandler(sessionService service.SessionService) *PresenceHandler {
	return &PresenceHandler{sessionService: sessionService}
}

// Get 查询用户是否在线
// GET /presence/:userId
func (h *PresenceHandler) Get(c *gin.Context) {
	scope, ok := currentScope(c, h.sessionService)
	if !ok {
		return
	}
	userID := c.Param("userId")
	HandleSuccess(c, respond.PresenceView{UserID: userID, Online: scope.Presence.IsOnline(userID)})
}
