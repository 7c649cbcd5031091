package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// SecureHeaders 为本地视图 API 添加安全响应头
// development 模式下 secure 跳过全部检查
func SecureHeaders(development bool) gin.HandlerFunc {
	// 在返回函数之前初始化，避免每次请求都重复创建对象
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'self'",
		IsDevelopment:         development,
	})

	return func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			// 不要在中间件里用 Fatal，记录日志并终止当前请求
			zap.L().Error("secure headers check failed", zap.Error(err))
			c.Abort()
			return
		}
		c.Next()
	}
}
