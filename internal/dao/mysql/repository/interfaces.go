// Package repository 定义数据访问层接口和聚合结构
// 采用 Repository 模式将数据访问逻辑与业务逻辑分离
package repository

import (
	"context"

	"kama_social_client/internal/model"

	"gorm.io/gorm"
)

// ==================== Repository 接口定义 ====================

// SessionRepository 会话记录数据访问接口
// 客户端只保留一个有效会话，用于重启后恢复连接
type SessionRepository interface {
	// Save 写入会话记录，同一用户覆盖旧记录
	Save(ctx context.Context, rec *model.SessionRecord) error
	// FindLatest 最近写入的会话记录，不存在时返回 CodeNotFound
	FindLatest(ctx context.Context) (*model.SessionRecord, error)
	// DeleteByUserId 删除指定用户的会话记录
	DeleteByUserId(ctx context.Context, userID string) error
	// DeleteExcept 删除除指定用户外的全部会话记录
	DeleteExcept(ctx context.Context, userID string) error
}

// ==================== Repository 聚合 ====================

// Repositories 聚合所有 Repository 实例
// 作为依赖注入的入口，Service 层通过此结构访问数据层
type Repositories struct {
	db      *gorm.DB          // GORM 数据库实例
	Session SessionRepository // 会话记录 Repository
}

// NewRepositories 创建所有 Repository 实例
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:      db,
		Session: NewSessionRepository(db),
	}
}

// Transaction 在数据库事务中执行函数
// 事务内的所有操作要么全部成功，要么全部回滚
func (r *Repositories) Transaction(ctx context.Context, fn func(txRepos *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
