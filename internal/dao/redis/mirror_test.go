package redis

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"kama_social_client/internal/model"
	"kama_social_client/pkg/errorx"
)

// memCache 进程内的 AsyncCacheService，任务同步执行
type memCache struct {
	mu      sync.Mutex
	strings map[string]string
	sets    map[string]map[string]struct{}
	ttls    map[string]time.Duration
	ops     []string
}

func newMemCache() *memCache {
	return &memCache{
		strings: map[string]string{},
		sets:    map[string]map[string]struct{}{},
		ttls:    map[string]time.Duration{},
	}
}

func (m *memCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memCache) get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strings[key]
}

func (m *memCache) GetOrError(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.strings[key]
	if !ok {
		return "", errorx.Newf(errorx.CodeNotFound, "redis key %s not found", key)
	}
	return v, nil
}

func (m *memCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.strings, key)
	delete(m.sets, key)
	return nil
}

func (m *memCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.strings {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.strings, k)
		}
	}
	for k := range m.sets {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.sets, k)
		}
	}
	return nil
}

func (m *memCache) ReplaceSet(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "replace")
	delete(m.sets, key)
	m.add(key, members)
	return nil
}

func (m *memCache) AddToSet(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "add")
	m.add(key, members)
	return nil
}

func (m *memCache) add(key string, members []string) {
	if m.sets[key] == nil {
		m.sets[key] = map[string]struct{}{}
	}
	for _, v := range members {
		m.sets[key][v] = struct{}{}
	}
}

func (m *memCache) members(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for v := range m.sets[key] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (m *memCache) RemoveFromSet(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "remove")
	for _, v := range members {
		delete(m.sets[key], v)
	}
	return nil
}

func (m *memCache) SubmitTask(action func()) { action() }

func TestViewMirrorWritesUnreadCounters(t *testing.T) {
	cache := newMemCache()
	mirror := NewViewMirror(cache, "u1", func() []string { return nil })

	mirror.Apply(model.ChangeEvent{Kind: model.ChangeConversationUpdated, ConversationID: "tmp_conv_1", Unread: 0})
	mirror.Apply(model.ChangeEvent{Kind: model.ChangeConversationUpdated, ConversationID: "c1", Unread: 3})
	mirror.Apply(model.ChangeEvent{Kind: model.ChangeConversationPromote, ConversationID: "c1", PreviousID: "tmp_conv_1"})
	mirror.Apply(model.ChangeEvent{Kind: model.ChangeNotificationAdded, Unread: 5})
	mirror.Apply(model.ChangeEvent{Kind: model.ChangeMessageUpserted, ConversationID: "c1"})

	ctx := context.Background()
	if v := cache.get(mirror.ConversationUnreadKey("c1")); v != "3" {
		t.Fatalf("conversation unread = %q", v)
	}
	if _, err := cache.GetOrError(ctx, mirror.ConversationUnreadKey("tmp_conv_1")); !errorx.IsNotFound(err) {
		t.Fatalf("provisional key should be removed, err = %v", err)
	}
	if v := cache.get(mirror.NotificationUnreadKey()); v != "5" {
		t.Fatalf("notification unread = %q", v)
	}
	if cache.ttls[mirror.NotificationUnreadKey()] != mirror.ttl {
		t.Fatal("mirror keys must expire")
	}
}

func TestViewMirrorPresenceUsesLatestSnapshot(t *testing.T) {
	cache := newMemCache()
	online := []string{"u2", "u3"}
	mirror := NewViewMirror(cache, "u1", func() []string { return online })

	mirror.Apply(model.ChangeEvent{Kind: model.ChangePresence})
	online = []string{"u3"}
	mirror.Apply(model.ChangeEvent{Kind: model.ChangePresence, UserID: "u2"})

	got := cache.members(mirror.OnlineKey())
	if len(got) != 1 || got[0] != "u3" {
		t.Fatalf("online = %v", got)
	}
}

func TestViewMirrorPresenceIncremental(t *testing.T) {
	cache := newMemCache()
	online := []string{"u2"}
	mirror := NewViewMirror(cache, "u1", func() []string { return online })

	mirror.Apply(model.ChangeEvent{Kind: model.ChangePresence})
	online = []string{"u2", "u4"}
	mirror.Apply(model.ChangeEvent{Kind: model.ChangePresence, UserID: "u4", Online: true})
	online = []string{"u4"}
	mirror.Apply(model.ChangeEvent{Kind: model.ChangePresence, UserID: "u2"})

	if got := cache.members(mirror.OnlineKey()); len(got) != 1 || got[0] != "u4" {
		t.Fatalf("online = %v", got)
	}
	if strings.Join(cache.ops, ",") != "replace,add,remove" {
		t.Fatalf("ops = %v", cache.ops)
	}

	// 任务执行时用户已下线：按最新状态移除而不是加入
	online = nil
	mirror.Apply(model.ChangeEvent{Kind: model.ChangePresence, UserID: "u4", Online: true})
	if got := cache.members(mirror.OnlineKey()); len(got) != 0 {
		t.Fatalf("online = %v", got)
	}
}

func TestViewMirrorRunClearsOnTermination(t *testing.T) {
	cache := newMemCache()
	mirror := NewViewMirror(cache, "u1", func() []string { return []string{"u2"} })
	other := NewViewMirror(cache, "u9", func() []string { return nil })
	other.Apply(model.ChangeEvent{Kind: model.ChangeNotificationRead, Unread: 1})

	changes := make(chan model.ChangeEvent, 3)
	changes <- model.ChangeEvent{Kind: model.ChangePresence}
	changes <- model.ChangeEvent{Kind: model.ChangeNotificationsLoaded, Unread: 2}
	changes <- model.ChangeEvent{Kind: model.ChangeSessionTerminated}
	close(changes)
	mirror.Run(context.Background(), changes)

	if members := cache.members(mirror.OnlineKey()); len(members) != 0 {
		t.Fatalf("online set not cleared: %v", members)
	}
	if v := cache.get(mirror.NotificationUnreadKey()); v != "" {
		t.Fatalf("unread not cleared: %q", v)
	}
	if v := cache.get(other.NotificationUnreadKey()); v != "1" {
		t.Fatal("other user's keys must survive")
	}
}

func TestSessionCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionCache(newMemCache())

	if _, err := sessions.FindLatest(ctx); !errorx.IsNotFound(err) {
		t.Fatalf("empty cache err = %v", err)
	}

	exp := time.Now().Add(time.Hour)
	rec := &model.SessionRecord{UserId: "u1", Username: "alice", Credential: "c2VjcmV0", Salt: "s", ExpiresAt: &exp}
	if err := sessions.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := sessions.FindLatest(ctx)
	if err != nil || got.UserId != "u1" || got.Credential != "c2VjcmV0" {
		t.Fatalf("FindLatest = %+v, %v", got, err)
	}

	if err := sessions.DeleteByUserId(ctx, "someone-else"); err != nil {
		t.Fatalf("DeleteByUserId: %v", err)
	}
	if _, err := sessions.FindLatest(ctx); err != nil {
		t.Fatal("record of another user must not be deleted")
	}
	if err := sessions.DeleteByUserId(ctx, "u1"); err != nil {
		t.Fatalf("DeleteByUserId: %v", err)
	}
	if _, err := sessions.FindLatest(ctx); !errorx.IsNotFound(err) {
		t.Fatalf("after delete err = %v", err)
	}

	past := time.Now().Add(-time.Minute)
	if err := sessions.Save(ctx, &model.SessionRecord{UserId: "u1", ExpiresAt: &past}); !errorx.HasCode(err, errorx.CodeInvalidParam) {
		t.Fatalf("expired save err = %v", err)
	}
}
