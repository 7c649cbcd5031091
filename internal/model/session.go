// Package model 定义客户端本地状态使用的领域模型
// 本文件定义会话身份及其持久化记录
package model

import (
	"time"

	"gorm.io/gorm"
)

// Session 当前登录身份
// 生命周期从登录到登出，实时连接的生命周期包含于其中
type Session struct {
	UserID    string
	Username  string
	Token     string
	ExpiresAt time.Time // 零值表示凭证未声明过期时间
}

// SessionRecord 持久化的会话记录
// 对应数据库 client_session 表，凭证以密文保存，仅用于重启后恢复连接
type SessionRecord struct {
	gorm.Model

	// UserId 会话用户 ID
	UserId string `gorm:"column:user_id;uniqueIndex;type:varchar(64);not null;comment:用户id"`

	// Username 冗余存储的用户名
	Username string `gorm:"column:username;type:varchar(64);comment:用户名"`

	// Credential AES-GCM 加密后的凭证（base64）
	Credential string `gorm:"column:credential;type:TEXT;not null;comment:加密凭证"`

	// Salt 派生加密密钥使用的盐
	Salt string `gorm:"column:salt;type:varchar(32);not null;comment:密钥盐"`

	// ExpiresAt 凭证过期时间，可为空
	ExpiresAt *time.Time `gorm:"column:expires_at;comment:凭证过期时间"`
}

// TableName 指定表名
func (SessionRecord) TableName() string {
	return "client_session"
}
