package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"kama_social_client/internal/service"
	"kama_social_client/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// BearerAuth 本地视图 API 鉴权
// 配置了 apiKey 时只接受 apiKey；否则接受当前会话的凭证
// 浏览器无法给 WebSocket 握手加请求头，因此也接受 ?token= 查询参数
func BearerAuth(apiKey string, sessions service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortUnauthorized(c, "请先登录")
			return
		}

		expected := apiKey
		if expected == "" {
			scope, err := sessions.Current()
			if err != nil {
				abortUnauthorized(c, "当前没有登录会话")
				return
			}
			expected = scope.Session.Token
			c.Set("user_id", scope.Session.UserID)
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			abortUnauthorized(c, "凭证不匹配")
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return c.Query("token")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code": errorx.CodeUnauthorized,
		"msg":  msg,
	})
}
