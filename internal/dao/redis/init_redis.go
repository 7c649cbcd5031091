// Package redis 提供 Redis 缓存操作的封装
// 本文件仅包含 Redis 连接初始化逻辑
// 使用 github.com/redis/go-redis/v9 作为底层客户端
package redis

import (
	"context"
	"strconv"
	"time"

	"kama_social_client/internal/config"
	"kama_social_client/pkg/errorx"

	"github.com/redis/go-redis/v9"
)

// Init 初始化 Redis 连接并返回缓存服务实例
// 连接不可用时返回 CodeCacheError，调用方决定是否降级
func Init(conf config.RedisConfig) (*RedisCache, error) {
	addr := conf.Host + ":" + strconv.Itoa(conf.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: conf.Password, // 无密码留空
		DB:       conf.Db,

		// 连接池配置
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "redis ping %s", addr)
	}

	// 单 Worker 保证镜像写入按变更顺序执行
	return NewRedisCache(client, 1, 512), nil
}
