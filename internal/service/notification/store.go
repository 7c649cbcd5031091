// Package notification 维护会话用户的通知列表
// store.go
// 核心职责：
// 1. 合并 REST 拉取与实时推送的通知，按 ID 去重，按创建时间降序排列
// 2. 维护未读数，读取方无需加锁
// 3. 单条/全部标记已读：先乐观更新，REST 失败时完整回滚
package notification

import (
	"context"
	"iter"
	"sort"
	"sync"
	"sync/atomic"

	"kama_social_client/internal/infrastructure/metrics"
	"kama_social_client/internal/model"
	"kama_social_client/internal/service/broker"
	"kama_social_client/pkg/errorx"

	"go.uber.org/zap"
)

// API 通知相关的远端接口
type API interface {
	ListNotifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Store 通知存储
type Store struct {
	api       API
	publisher broker.Publisher

	mu     sync.Mutex
	items  []model.Notification // 按 Before 排序，新的在前
	unread atomic.Int64
}

// NewStore 创建通知存储，publisher 可为 nil
func NewStore(api API, publisher broker.Publisher) *Store {
	return &Store{api: api, publisher: publisher}
}

// UnreadCount 未读数，可在任意协程无锁读取
func (s *Store) UnreadCount() int {
	return int(s.unread.Load())
}

// Notifications 全部通知的副本
func (s *Store) Notifications() []model.Notification {
	return collect(s.Filter(All))
}

// Get 按 ID 查询
func (s *Store) Get(id string) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.find(id); i >= 0 {
		return s.items[i].Clone(), true
	}
	return model.Notification{}, false
}

// Filter 按条件过滤的惰性视图
// 每次迭代都基于当时的最新数据重新计算，不缓存、不修改底层集合
func (s *Store) Filter(pred Predicate) iter.Seq[model.Notification] {
	return func(yield func(model.Notification) bool) {
		s.mu.Lock()
		snapshot := make([]model.Notification, 0, len(s.items))
		for i := range s.items {
			if pred == nil || pred(&s.items[i]) {
				snapshot = append(snapshot, s.items[i].Clone())
			}
		}
		s.mu.Unlock()

		for _, n := range snapshot {
			if !yield(n) {
				return
			}
		}
	}
}

// LoadAll 拉取全部通知并整体替换本地集合
func (s *Store) LoadAll(ctx context.Context) error {
	list, err := s.api.ListNotifications(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(list))
	items := make([]model.Notification, 0, len(list))
	for _, n := range list {
		if n.ID == "" {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		items = append(items, n)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Before(&items[j]) })

	s.mu.Lock()
	s.items = items
	unread := s.recount()
	s.mu.Unlock()

	zap.L().Info("notifications loaded", zap.Int("total", len(items)), zap.Int("unread", unread))
	s.publish(model.ChangeEvent{Kind: model.ChangeNotificationsLoaded, Unread: unread})
	return nil
}

// ApplyIncoming 写入一条推送通知
// 已存在时原位更新且不改变未读数；只有新的未读通知才增加未读数
func (s *Store) ApplyIncoming(n model.Notification) error {
	if n.ID == "" {
		return errorx.Newf(errorx.CodeInvalidParam, "notification without id")
	}

	s.mu.Lock()
	if i := s.find(n.ID); i >= 0 {
		// 本地已标记已读的不因重复投递而回退
		n.Read = n.Read || s.items[i].Read
		s.items = append(s.items[:i], s.items[i+1:]...)
		s.insert(n)
		unread := s.recount()
		s.mu.Unlock()
		s.publish(model.ChangeEvent{Kind: model.ChangeNotificationAdded, NotificationID: n.ID, Unread: unread})
		return nil
	}
	s.insert(n)
	if !n.Read {
		s.unread.Add(1)
	}
	unread := s.UnreadCount()
	s.mu.Unlock()

	metrics.UnreadNotifications.Set(float64(unread))
	s.publish(model.ChangeEvent{Kind: model.ChangeNotificationAdded, NotificationID: n.ID, Unread: unread})
	return nil
}

// MarkRead 标记单条已读
func (s *Store) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.find(id)
	if i < 0 {
		s.mu.Unlock()
		return errorx.Newf(errorx.CodeNotFound, "notification %s not found", id)
	}
	if s.items[i].Read {
		s.mu.Unlock()
		return nil
	}
	s.items[i].Read = true
	unread := s.recount()
	s.mu.Unlock()
	s.publish(model.ChangeEvent{Kind: model.ChangeNotificationRead, NotificationID: id, Unread: unread})

	err := s.api.MarkNotificationRead(ctx, id)
	if err == nil {
		return nil
	}

	s.mu.Lock()
	if i := s.find(id); i >= 0 {
		s.items[i].Read = false
	}
	unread = s.recount()
	s.mu.Unlock()

	metrics.Rollbacks.WithLabelValues("notification_read").Inc()
	zap.L().Warn("mark notification read failed, rolled back", zap.String("notification", id), zap.Error(err))
	s.publish(model.ChangeEvent{Kind: model.ChangeNotificationRead, NotificationID: id, Unread: unread})
	return err
}

// MarkAllRead 标记全部已读
// REST 失败时，本次置为已读的每一条都恢复为未读
func (s *Store) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	var flipped []string
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			flipped = append(flipped, s.items[i].ID)
		}
	}
	unread := s.recount()
	s.mu.Unlock()
	if len(flipped) > 0 {
		s.publish(model.ChangeEvent{Kind: model.ChangeNotificationRead, Unread: unread})
	}

	err := s.api.MarkAllNotificationsRead(ctx)
	if err == nil {
		return nil
	}

	restore := make(map[string]struct{}, len(flipped))
	for _, id := range flipped {
		restore[id] = struct{}{}
	}
	s.mu.Lock()
	for i := range s.items {
		if _, ok := restore[s.items[i].ID]; ok {
			s.items[i].Read = false
		}
	}
	unread = s.recount()
	s.mu.Unlock()

	metrics.Rollbacks.WithLabelValues("notification_read_all").Inc()
	zap.L().Warn("mark all notifications read failed, rolled back", zap.Int("restored", len(flipped)), zap.Error(err))
	s.publish(model.ChangeEvent{Kind: model.ChangeNotificationRead, Unread: unread})
	return err
}

// ==================== 内部工具 ====================

// find 调用方持有锁
func (s *Store) find(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// insert 有序插入，调用方持有锁
func (s *Store) insert(n model.Notification) {
	i := sort.Search(len(s.items), func(i int) bool { return n.Before(&s.items[i]) })
	s.items = append(s.items, model.Notification{})
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = n
}

// recount 重新统计未读数，调用方持有锁
func (s *Store) recount() int {
	n := 0
	for i := range s.items {
		if !s.items[i].Read {
			n++
		}
	}
	s.unread.Store(int64(n))
	metrics.UnreadNotifications.Set(float64(n))
	return n
}

func (s *Store) publish(ev model.ChangeEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.Background(), ev); err != nil {
		zap.L().Warn("publish change failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

func collect(seq iter.Seq[model.Notification]) []model.Notification {
	out := []model.Notification{}
	for n := range seq {
		out = append(out, n)
	}
	return out
}
