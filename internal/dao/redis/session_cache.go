package redis

import (
	"context"
	"encoding/json"
	"time"

	"kama_social_client/internal/model"
	"kama_social_client/pkg/errorx"
)

// sessionKey 当前会话记录的键，客户端同一时刻只有一个会话
const sessionKey = "kama_client_session"

// SessionCache 以 Redis 保存会话记录
type SessionCache struct {
	cache CacheService
}

// NewSessionCache 创建会话缓存
func NewSessionCache(cache CacheService) *SessionCache {
	return &SessionCache{cache: cache}
}

// Save 写入会话记录，过期时间与凭证一致
func (s *SessionCache) Save(ctx context.Context, rec *model.SessionRecord) error {
	var ttl time.Duration
	if rec.ExpiresAt != nil {
		ttl = time.Until(*rec.ExpiresAt)
		if ttl <= 0 {
			return errorx.Newf(errorx.CodeInvalidParam, "session of %s already expired", rec.UserId)
		}
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeCacheError, "encode session record")
	}
	return s.cache.Set(ctx, sessionKey, string(raw), ttl)
}

// FindLatest 读取会话记录，不存在时返回 CodeNotFound
func (s *SessionCache) FindLatest(ctx context.Context) (*model.SessionRecord, error) {
	raw, err := s.cache.GetOrError(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	var rec model.SessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeCacheError, "decode session record")
	}
	return &rec, nil
}

// DeleteByUserId 删除指定用户的会话记录
func (s *SessionCache) DeleteByUserId(ctx context.Context, userID string) error {
	rec, err := s.FindLatest(ctx)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil
		}
		return err
	}
	if rec.UserId != userID {
		return nil
	}
	return s.cache.Delete(ctx, sessionKey)
}
