// Package router 提供 HTTP 路由注册
// 本文件是路由注册的入口，聚合所有子模块的路由
package router

import (
	"kama_social_client/internal/handler"
	"kama_social_client/internal/infrastructure/metrics"
	"kama_social_client/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

// Router 路由管理器
type Router struct {
	handlers *handler.Handlers
	apiKey   string
}

// NewRouter 创建路由管理器
// apiKey 为空时，除登录外的接口使用当前会话凭证鉴权
func NewRouter(handlers *handler.Handlers, apiKey string) *Router {
	return &Router{handlers: handlers, apiKey: apiKey}
}

// RegisterRoutes 注册所有路由
// 在 https_server.Init() 中调用
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	auth := middleware.BearerAuth(rt.apiKey, rt.handlers.Sessions)

	// 公开路由：登录与指标抓取，配置了 apiKey 时同样需要鉴权
	public := r.Group("")
	if rt.apiKey != "" {
		public.Use(auth)
	}
	public.POST("/session", rt.handlers.Session.Login)
	public.GET("/metrics", gin.WrapH(metrics.Handler()))

	private := r.Group("")
	private.Use(auth)
	rt.RegisterSessionRoutes(private)
	rt.RegisterConversationRoutes(private)
	rt.RegisterNotificationRoutes(private)
	rt.RegisterWebSocketRoutes(private)
}
