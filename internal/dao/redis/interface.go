// Package redis 定义缓存服务接口
// 会话缓存与视图镜像依赖此接口而非具体 Redis 实现
package redis

import (
	"context"
	"time"
)

// CacheService 缓存服务接口
type CacheService interface {
	// ==================== String 操作 ====================

	// Set 设置键值对并指定过期时间，ttl 为 0 表示不过期
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// GetOrError 获取键对应的值（键不存在返回 CodeNotFound）
	GetOrError(ctx context.Context, key string) (string, error)

	// ==================== Key 操作 ====================

	// Delete 删除键（如果存在）
	Delete(ctx context.Context, key string) error
	// DeleteByPattern 删除匹配模式的所有键
	DeleteByPattern(ctx context.Context, pattern string) error

	// ==================== Set 集合操作 ====================

	// ReplaceSet 用给定成员整体替换集合，用于全量快照
	ReplaceSet(ctx context.Context, key string, members ...string) error
	// AddToSet 向集合添加成员，用于单个用户上线
	AddToSet(ctx context.Context, key string, members ...string) error
	// RemoveFromSet 从集合中移除成员，用于单个用户下线
	RemoveFromSet(ctx context.Context, key string, members ...string) error
}

// AsyncCacheService 异步缓存服务接口
// 提供异步任务提交能力，用于不阻塞事件分发的镜像写入
type AsyncCacheService interface {
	CacheService
	// SubmitTask 提交异步缓存任务
	SubmitTask(action func())
}
