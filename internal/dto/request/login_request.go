package request

// LoginRequest POST /session
// Token 为远端社交服务签发的凭证，本地只解析声明，不校验签名
type LoginRequest struct {
	Token string `json:"token" binding:"required"`
}
