// Package repository 提供数据访问层的具体实现
// 本文件实现 SessionRepository 接口，处理会话记录的数据库操作
package repository

import (
	"context"
	"errors"

	"kama_social_client/internal/model"
	"kama_social_client/pkg/errorx"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sessionRepository SessionRepository 接口的实现
type sessionRepository struct {
	db *gorm.DB // GORM 数据库实例
}

// NewSessionRepository 创建 SessionRepository 实例
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// Save 按 user_id 幂等写入
// 冲突时更新凭证、盐、过期时间，并恢复被软删除的记录
func (r *sessionRepository) Save(ctx context.Context, rec *model.SessionRecord) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"username":   rec.Username,
			"credential": rec.Credential,
			"salt":       rec.Salt,
			"expires_at": rec.ExpiresAt,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
			"deleted_at": nil,
		}),
	}).Create(rec).Error
	if err != nil {
		return sessionDBError(err, "保存会话记录 user_id=%s", rec.UserId)
	}
	return nil
}

// FindLatest 按更新时间取最新一条
func (r *sessionRepository) FindLatest(ctx context.Context) (*model.SessionRecord, error) {
	var rec model.SessionRecord
	if err := r.db.WithContext(ctx).Order("updated_at DESC").First(&rec).Error; err != nil {
		return nil, sessionDBError(err, "查询会话记录")
	}
	return &rec, nil
}

// DeleteByUserId 软删除指定用户的会话记录
func (r *sessionRepository) DeleteByUserId(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.SessionRecord{}).Error; err != nil {
		return sessionDBError(err, "删除会话记录 user_id=%s", userID)
	}
	return nil
}

// DeleteExcept 软删除其他用户的会话记录
func (r *sessionRepository) DeleteExcept(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id <> ?", userID).Delete(&model.SessionRecord{}).Error; err != nil {
		return sessionDBError(err, "清理会话记录 user_id<>%s", userID)
	}
	return nil
}

// sessionDBError 记录不存在映射为 CodeNotFound，供恢复会话时区分"没有可恢复的会话"
func sessionDBError(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorx.Wrapf(err, errorx.CodeNotFound, format, args...)
	}
	return errorx.Wrapf(err, errorx.CodeDBError, format, args...)
}
