// Package https_server 提供本地视图 HTTP 服务器的初始化和配置
// 负责创建 Gin 引擎实例并配置中间件和路由
package https_server

import (
	"kama_social_client/internal/config"
	"kama_social_client/internal/handler"
	"kama_social_client/internal/infrastructure/logger"
	"kama_social_client/internal/infrastructure/middleware"
	"kama_social_client/internal/router"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Init 初始化本地视图服务器并返回 Gin 引擎实例
// 配置顺序：
//  1. 创建 Gin 引擎（空白，不含默认中间件）
//  2. 注册日志和恢复中间件
//  3. 配置 CORS 跨域规则与安全响应头
//  4. 注册业务路由
func Init(handlers *handler.Handlers, conf *config.Config) *gin.Engine {
	if conf.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	// 使用 zap 替代 Gin 默认日志，并在日志中包含 panic 堆栈
	engine.Use(logger.GinLogger())
	engine.Use(logger.GinRecovery(true))

	// 展示层可能运行在其他本地端口
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	engine.Use(cors.New(corsConfig))

	engine.Use(middleware.SecureHeaders(conf.Mode != "release"))

	rt := router.NewRouter(handlers, conf.APIKey)
	rt.RegisterRoutes(engine)

	return engine
}
