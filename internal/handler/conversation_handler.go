// Package handler 提供 HTTP 请求处理器
// 本文件处理会话与消息相关的 API 请求
package handler

import (
	"time"

	"kama_social_client/internal/dto/request"
	"kama_social_client/internal/dto/respond"
	"kama_social_client/internal/model"
	"kama_social_client/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConversationHandler 会话请求处理器
type ConversationHandler struct {
	sessionService service.SessionService
}

// NewConversationHandler 创建会话处理器实例
func NewConversationHandler(sessionService service.SessionService) *ConversationHandler {
	return &ConversationHandler{sessionService: sessionService}
}

// List 会话列表，按最近活动排序
// GET /conversations
func (h *ConversationHandler) List(c *gin.Context) {
	scope, ok := currentScope(c, h.sessionService)
	if !ok {
		return
	}
	convs := scope.Conversations.Conversations()
	active := scope.Conversations.Active()
	now := time.Now()
	out := make([]respond.ConversationView, 0, len(convs))
	for _, conv := range convs {
		out = append(out, conversationView(scope, conv, active, now))
	}
	HandleSuccess(c, out)
}

// Start 发起会话，参与者相同的会话已存在时直接返回
// POST /conversations
// 请求体: request.StartConversationRequest
func (h *ConversationHandler) Start(c *gin.Context) {
	var req request.StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	scope, ok := currentScope(c, h.sessionService)
	if !ok {
		return
	}
	users := make([]model.UserRef, 0, len(req.Participants))
	for _, p := range req.Participants {
		users = append(users, model.UserRef{ID: p.ID, Username: p.Username, Avatar: p.Avatar})
	}
	conv, err := scope.Conversations.StartConversation(users)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, conversationView(scope, conv, scope.Conversations.Active(), time.Now()))
}

// Messages 会话内的消息
// GET /conversations/:id/messages?refresh=true
// refresh 为 true 时先从远端拉取历史
func (h *ConversationHandler) Messages(c *gin.Context) {
	scope, ok := currentScope(c, h.sessionService)
	if !ok {
		return
	}
	id := c.Param("id")
	if c.Query("refresh") == "true" {
		if err := scope.Conversations.LoadHistory(c.Request.Context(), id); err != nil {
			HandleError(c, err)
			return
		}
	}
	h.respondMessages(c, scope, id)
}

// Send 发送消息
// POST /conversations/:id/messages
// 请求体: request.PostMessageRequest
// 发送失败时 data 中返回已标记为 failed 的消息
func (h *ConversationHandler) Send(c *gin.Context) {
	var req request.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	scope, ok := currentScope(c, h.sessionService)
	if !ok {
		return
	}
	var gif *model.GifRef
	if req.GifURL != "" {
		gif = &model.GifRef{URL: req.GifURL}
	}
	msg, err := scope.Conversations.SendMessage(c.Request.Context(), c.Param("id"), req.Text, req.Attachments(), gif)
	h.respondSend(c, scope, msg, err)
}

// Resend 重发失败消息
// POST /conversations/:id/messages/:messageId/resend
func (h *ConversationHandler) Resend(c *gin.Context) {
	scope, ok := currentScope(c, h.sessionService)
	if !ok {
		return
	}
	msg, err := scope.Conversations.ResendMessage(c.Request.Context(), c.Param("id"), c.Param("messageId"))
	h.respondSend(c, scope, msg, err)
}

// MarkRead 会话标记已读
// PUT /conversations/:id/read
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	scope, ok := currentScope(c, h.sessionService)
	if !ok {
		return
	}
	if err := scope.Conversations.MarkConversationRead(c.Request.Context(), c.Param("id")); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// SetActive 打开会话：切换当前会话，拉取历史并标记已读
// PUT /conversations/:id/active
func (h *ConversationHandler) SetActive(c *gin.Context) {
	scope, ok := currentScope(c, h.sessionService)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := scope.Conversations.SetActive(id); err != nil {
		HandleError(c, err)
		return
	}
	conv, _ := scope.Conversations.Conversation(id)
	if !conv.IsProvisional() {
		if err := scope.Conversations.LoadHistory(c.Request.Context(), id); err != nil {
			HandleError(c, err)
			return
		}
	}
	if err := scope.Conversations.MarkConversationRead(c.Request.Context(), id); err != nil {
		zap.L().Warn("mark active conversation read failed", zap.String("conversation", id), zap.Error(err))
	}
	h.respondMessages(c, scope, id)
}

// ClearActive 离开当前会话
// DELETE /conversations/active
func (h *ConversationHandler) ClearActive(c *gin.Context) {
	scope, ok := currentScope(c, h.sessionService)
	if !ok {
		return
	}
	if err := scope.Conversations.SetActive(""); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

func (h *ConversationHandler) respondMessages(c *gin.Context, scope *service.Scope, id string) {
	msgs, err := scope.Conversations.Messages(id)
	if err != nil {
		HandleError(c, err)
		return
	}
	out := make([]respond.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView(scope, m))
	}
	HandleSuccess(c, out)
}

func (h *ConversationHandler) respondSend(c *gin.Context, scope *service.Scope, msg model.Message, err error) {
	if err != nil {
		if msg.ID == "" {
			HandleError(c, err)
			return
		}
		HandleErrorWithData(c, err, messageView(scope, msg))
		return
	}
	HandleSuccess(c, messageView(scope, msg))
}
