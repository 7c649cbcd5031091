// Package router 提供 HTTP 路由注册
// 本文件定义登录会话相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterSessionRoutes 注册会话相关路由（需要认证）
func (rt *Router) RegisterSessionRoutes(rg *gin.RouterGroup) {
	rg.GET("/session", rt.handlers.Session.Current)   // 当前会话
	rg.DELETE("/session", rt.handlers.Session.Logout) // 登出
}
