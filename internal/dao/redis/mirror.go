package redis

import (
	"context"
	"slices"
	"strconv"
	"time"

	"kama_social_client/internal/model"
	"kama_social_client/pkg/constants"

	"go.uber.org/zap"
)

// ViewMirror 把本地视图的摘要（各会话未读数、通知未读数、在线集合）镜像到 Redis
// 供同机的其他进程（桌面角标、托盘程序等）读取，写入全部走异步队列
type ViewMirror struct {
	cache    AsyncCacheService
	prefix   string
	presence func() []string
	ttl      time.Duration
}

// NewViewMirror 创建镜像；presence 返回当前在线用户快照
func NewViewMirror(cache AsyncCacheService, userID string, presence func() []string) *ViewMirror {
	return &ViewMirror{
		cache:    cache,
		prefix:   "kama_view_" + userID + "_",
		presence: presence,
		ttl:      constants.REDIS_TIMEOUT * time.Minute,
	}
}

// ConversationUnreadKey 会话未读数键
func (m *ViewMirror) ConversationUnreadKey(conversationID string) string {
	return m.prefix + "unread_conv_" + conversationID
}

// NotificationUnreadKey 通知未读数键
func (m *ViewMirror) NotificationUnreadKey() string {
	return m.prefix + "unread_notifications"
}

// OnlineKey 在线用户集合键
func (m *ViewMirror) OnlineKey() string {
	return m.prefix + "online"
}

// Run 消费变更直到通道关闭或 ctx 结束
func (m *ViewMirror) Run(ctx context.Context, changes <-chan model.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			m.Apply(ev)
		}
	}
}

// Apply 把单个变更转换为异步缓存任务
func (m *ViewMirror) Apply(ev model.ChangeEvent) {
	switch ev.Kind {
	case model.ChangeConversationUpdated:
		key, value := m.ConversationUnreadKey(ev.ConversationID), strconv.Itoa(ev.Unread)
		m.submit(func(ctx context.Context) error {
			return m.cache.Set(ctx, key, value, m.ttl)
		})

	case model.ChangeConversationPromote:
		key := m.ConversationUnreadKey(ev.PreviousID)
		m.submit(func(ctx context.Context) error {
			return m.cache.Delete(ctx, key)
		})

	case model.ChangeNotificationsLoaded, model.ChangeNotificationAdded, model.ChangeNotificationRead:
		value := strconv.Itoa(ev.Unread)
		m.submit(func(ctx context.Context) error {
			return m.cache.Set(ctx, m.NotificationUnreadKey(), value, m.ttl)
		})

	case model.ChangePresence:
		// 执行时读取最新快照，任务乱序或合并都不影响结果
		if ev.UserID == "" {
			m.submit(func(ctx context.Context) error {
				return m.cache.ReplaceSet(ctx, m.OnlineKey(), m.presence()...)
			})
			return
		}
		userID := ev.UserID
		m.submit(func(ctx context.Context) error {
			if slices.Contains(m.presence(), userID) {
				return m.cache.AddToSet(ctx, m.OnlineKey(), userID)
			}
			return m.cache.RemoveFromSet(ctx, m.OnlineKey(), userID)
		})

	case model.ChangeSessionTerminated:
		m.submit(m.Clear)
	}
}

// Clear 删除本会话的全部镜像键
func (m *ViewMirror) Clear(ctx context.Context) error {
	return m.cache.DeleteByPattern(ctx, m.prefix+"*")
}

func (m *ViewMirror) submit(task func(ctx context.Context) error) {
	m.cache.SubmitTask(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := task(ctx); err != nil {
			zap.L().Warn("view mirror write failed", zap.Error(err))
		}
	})
}
