// Package jwt 解析远端服务签发的会话凭证
// 客户端不持有签名密钥，只读取声明中的用户身份和过期时间；
// 凭证是否有效最终由服务端在握手和 REST 调用时判定
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoIdentity 凭证中没有可识别的用户 ID
var ErrNoIdentity = errors.New("jwt: token carries no user identity")

// ErrExpired 凭证已过期
var ErrExpired = errors.New("jwt: token expired")

// Claims 远端凭证声明
// 不同版本的服务端分别使用 user_id / id / userId 携带用户 ID
type Claims struct {
	UserID   string `json:"user_id,omitempty"`
	LegacyID string `json:"id,omitempty"`
	CamelID  string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Identity 返回第一个非空的用户 ID，最后回退到 sub
func (c *Claims) Identity() string {
	for _, id := range []string{c.UserID, c.LegacyID, c.CamelID, c.Subject} {
		if id != "" {
			return id
		}
	}
	return ""
}

// Expiry 过期时间，未声明时返回零值
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ParseToken 读取凭证声明（不校验签名）
// now 用于判断过期，便于测试注入
func ParseToken(tokenString string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Identity() == "" {
		return nil, ErrNoIdentity
	}
	if exp := claims.Expiry(); !exp.IsZero() && !now.Before(exp) {
		return nil, ErrExpired
	}
	return claims, nil
}
