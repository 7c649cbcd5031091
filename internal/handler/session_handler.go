// Package handler 提供 HTTP 请求处理器
// 本文件处理登录会话相关的 API 请求
package handler

import (
	"kama_social_client/internal/dto/request"
	"kama_social_client/internal/service"

	"github.com/gin-gonic/gin"
)

// SessionHandler 会话请求处理器
type SessionHandler struct {
	sessionService service.SessionService
}

// NewSessionHandler 创建会话处理器实例
func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Login 登录
// POST /session
// 请求体: request.LoginRequest
// 已有会话时先结束旧会话
func (h *SessionHandler) Login(c *gin.Context) {
	var req request.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	scope, err := h.sessionService.Login(c.Request.Context(), req.Token)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, sessionView(scope))
}

// Current 查询当前会话
// GET /session
func (h *SessionHandler) Current(c *gin.Context) {
	scope, ok := currentScope(c, h.sessionService)
	if !ok {
		return
	}
	HandleSuccess(c, sessionView(scope))
}

// Logout 登出并删除持久化记录
// DELETE /session
func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.sessionService.Logout(c.Request.Context()); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// currentScope 取当前会话，没有会话时直接写出错误响应
func currentScope(c *gin.Context, svc service.SessionService) (*service.Scope, bool) {
	scope, err := svc.Current()
	if err != nil {
		HandleError(c, err)
		return nil, false
	}
	return scope, true
}
