// Package presence 维护会话期间的在线用户集合
// 写入只来自事件分发协程，读取可来自任意协程且无需加锁
package presence

import (
	"sort"
	"sync/atomic"

	"kama_social_client/internal/infrastructure/metrics"
)

type set map[string]struct{}

// Tracker 在线用户集合
// 每次写入生成新的只读快照并原子替换，读取方拿到的快照永不被修改
type Tracker struct {
	online atomic.Pointer[set]
}

// NewTracker 创建空集合
func NewTracker() *Tracker {
	t := &Tracker{}
	t.store(set{})
	return t
}

// OnPresenceSnapshot 用全量快照整体替换在线集合
func (t *Tracker) OnPresenceSnapshot(userIDs []string) {
	next := make(set, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			next[id] = struct{}{}
		}
	}
	t.store(next)
}

// Join 折叠单个上线事件，状态发生变化时返回 true
func (t *Tracker) Join(userID string) bool {
	cur := *t.online.Load()
	if _, ok := cur[userID]; ok || userID == "" {
		return false
	}
	next := make(set, len(cur)+1)
	for id := range cur {
		next[id] = struct{}{}
	}
	next[userID] = struct{}{}
	t.store(next)
	return true
}

// Leave 折叠单个下线事件，状态发生变化时返回 true
func (t *Tracker) Leave(userID string) bool {
	cur := *t.online.Load()
	if _, ok := cur[userID]; !ok {
		return false
	}
	next := make(set, len(cur))
	for id := range cur {
		if id != userID {
			next[id] = struct{}{}
		}
	}
	t.store(next)
	return true
}

// Reset 连接断开后清空，直到下一份快照到达
func (t *Tracker) Reset() {
	t.store(set{})
}

// IsOnline 查询用户是否在线
func (t *Tracker) IsOnline(userID string) bool {
	_, ok := (*t.online.Load())[userID]
	return ok
}

// Snapshot 当前在线用户，按 ID 排序
func (t *Tracker) Snapshot() []string {
	cur := *t.online.Load()
	ids := make([]string, 0, len(cur))
	for id := range cur {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count 在线人数
func (t *Tracker) Count() int {
	return len(*t.online.Load())
}

func (t *Tracker) store(s set) {
	t.online.Store(&s)
	metrics.OnlineUsers.Set(float64(len(s)))
}
