// Package mysql 提供数据访问层的初始化
// 负责建立 MySQL 连接、自动迁移表结构、初始化 Repository 层
package mysql

import (
	"context"
	"fmt"

	"kama_social_client/internal/config"               // 配置管理
	"kama_social_client/internal/dao/mysql/repository" // Repository 层
	"kama_social_client/internal/model"                // 数据模型
	"kama_social_client/pkg/errorx"

	"go.uber.org/zap"                  // 日志库
	mysqldriver "gorm.io/driver/mysql" // GORM MySQL 驱动
	"gorm.io/gorm"                     // GORM ORM 框架
	"gorm.io/gorm/logger"
)

// DSN 构建 MySQL 连接字符串
// 格式：user:password@tcp(host:port)/database?params
func DSN(conf config.MysqlConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		conf.User, conf.Password, conf.Host, conf.Port, conf.DatabaseName)
}

// Init 初始化数据库连接并返回 Repository 层实例
// 执行步骤：
//  1. 使用 GORM 建立数据库连接
//  2. 执行 AutoMigrate 自动迁移会话记录表
//  3. 创建并返回 Repository 实例
func Init(dsn string) (*repository.Repositories, error) {
	db, err := gorm.Open(mysqldriver.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeDBError, "连接数据库")
	}

	// 表不存在则创建，不会删除已有字段或数据
	if err := db.AutoMigrate(&model.SessionRecord{}); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeDBError, "迁移会话记录表")
	}

	zap.L().Info("mysql session store ready")
	return repository.NewRepositories(db), nil
}

// SessionStore 基于 MySQL 的会话持久化
// 写入新会话时在同一事务里清除其他用户的记录，保证只有一个可恢复的会话
type SessionStore struct {
	repos *repository.Repositories
}

// NewSessionStore 创建会话持久化
func NewSessionStore(repos *repository.Repositories) *SessionStore {
	return &SessionStore{repos: repos}
}

// Save 写入会话记录
func (s *SessionStore) Save(ctx context.Context, rec *model.SessionRecord) error {
	return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Session.DeleteExcept(ctx, rec.UserId); err != nil {
			return err
		}
		return tx.Session.Save(ctx, rec)
	})
}

// FindLatest 读取可恢复的会话记录
func (s *SessionStore) FindLatest(ctx context.Context) (*model.SessionRecord, error) {
	return s.repos.Session.FindLatest(ctx)
}

// DeleteByUserId 删除指定用户的会话记录
func (s *SessionStore) DeleteByUserId(ctx context.Context, userID string) error {
	return s.repos.Session.DeleteByUserId(ctx, userID)
}
