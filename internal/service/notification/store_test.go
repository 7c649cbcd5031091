package notification

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"kama_social_client/internal/model"
	"kama_social_client/pkg/errorx"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu       sync.Mutex
	list     []model.Notification
	readErr  error
	allErr   error
	allCalls int
}

func (f *fakeAPI) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Notification(nil), f.list...), nil
}

func (f *fakeAPI) MarkNotificationRead(ctx context.Context, id string) error {
	return f.readErr
}

func (f *fakeAPI) MarkAllNotificationsRead(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allCalls++
	return f.allErr
}

func note(id string, offset time.Duration, read bool) model.Notification {
	return model.Notification{ID: id, Type: model.NotificationLike, CreatedAt: base.Add(offset), Read: read}
}

func order(s *Store) string {
	var out []string
	for n := range s.Filter(All) {
		out = append(out, n.ID)
	}
	return fmt.Sprint(out)
}

func loaded(t *testing.T, list ...model.Notification) (*Store, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{list: list}
	s := NewStore(api, nil)
	if err := s.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	return s, api
}

func TestLoadAllSortsNewestFirst(t *testing.T) {
	s, _ := loaded(t, note("a", 0, true), note("c", 2*time.Second, false), note("b", time.Second, false), note("c", 2*time.Second, false))
	if got := order(s); got != "[c b a]" {
		t.Fatalf("order = %s", got)
	}
	if s.UnreadCount() != 2 {
		t.Fatalf("unread = %d", s.UnreadCount())
	}
}

func TestApplyIncomingDedupAndUnread(t *testing.T) {
	s, _ := loaded(t, note("a", 0, false))

	_ = s.ApplyIncoming(note("b", time.Second, false))
	_ = s.ApplyIncoming(note("b", time.Second, false))
	_ = s.ApplyIncoming(note("old", -time.Hour, true))
	if got := order(s); got != "[b a old]" {
		t.Fatalf("order = %s", got)
	}
	if s.UnreadCount() != 2 {
		t.Fatalf("unread = %d, want 2", s.UnreadCount())
	}
	if err := s.ApplyIncoming(model.Notification{}); !errorx.HasCode(err, errorx.CodeInvalidParam) {
		t.Fatalf("err = %v", err)
	}
}

func TestRedeliveryKeepsLocalRead(t *testing.T) {
	s, _ := loaded(t, note("a", 0, false))
	if err := s.MarkRead(context.Background(), "a"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	_ = s.ApplyIncoming(note("a", 0, false))
	if s.UnreadCount() != 0 {
		t.Fatalf("unread = %d", s.UnreadCount())
	}
}

func TestMarkReadRollback(t *testing.T) {
	s, api := loaded(t, note("a", 0, false), note("b", time.Second, false))
	api.readErr = errorx.New(errorx.CodeNetworkError, "down")

	if err := s.MarkRead(context.Background(), "a"); err == nil {
		t.Fatal("expected error")
	}
	if n, _ := s.Get("a"); n.Read {
		t.Fatal("read flag not rolled back")
	}
	if s.UnreadCount() != 2 {
		t.Fatalf("unread = %d", s.UnreadCount())
	}
	if err := s.MarkRead(context.Background(), "missing"); !errorx.IsNotFound(err) {
		t.Fatalf("missing = %v", err)
	}
}

func TestMarkAllReadRollbackRestoresEveryFlag(t *testing.T) {
	s, api := loaded(t, note("a", 0, false), note("b", time.Second, true), note("c", 2*time.Second, false))
	api.allErr = errorx.New(errorx.CodeRejectedByServer, "500")

	if err := s.MarkAllRead(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if s.UnreadCount() != 2 {
		t.Fatalf("unread = %d, want 2", s.UnreadCount())
	}
	for n := range s.Filter(All) {
		want := n.ID == "b"
		if n.Read != want {
			t.Fatalf("%s read = %v, want %v", n.ID, n.Read, want)
		}
	}

	api.allErr = nil
	if err := s.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if s.UnreadCount() != 0 {
		t.Fatalf("unread = %d", s.UnreadCount())
	}
}

func TestFilterIsLazyAndRestartable(t *testing.T) {
	s, _ := loaded(t, note("a", 0, false), note("b", time.Second, true))
	unread := s.Filter(Unread)

	count := func() int {
		n := 0
		for range unread {
			n++
		}
		return n
	}
	if count() != 1 {
		t.Fatal("first pass")
	}
	_ = s.ApplyIncoming(note("c", 2*time.Second, false))
	if count() != 2 {
		t.Fatal("second pass should see new data")
	}

	for n := range s.Filter(All) {
		_ = n
		break
	}
	if len(s.Notifications()) != 3 {
		t.Fatal("filter must not mutate the set")
	}
}

func TestParseFilter(t *testing.T) {
	follow := model.Notification{Type: model.NotificationFollow}
	like := model.Notification{Type: model.NotificationLike, Read: true}

	p, err := ParseFilter("follow")
	if err != nil || !p(&follow) || p(&like) {
		t.Fatalf("follow filter: %v", err)
	}
	p, _ = ParseFilter("unread")
	if p(&like) || !p(&follow) {
		t.Fatal("unread filter")
	}
	if _, err := ParseFilter("bogus"); !errorx.HasCode(err, errorx.CodeInvalidParam) {
		t.Fatalf("bogus = %v", err)
	}
}

func TestLinkPrecedence(t *testing.T) {
	cases := []struct {
		n    model.Notification
		want string
	}{
		{model.Notification{Post: &model.PostRef{ID: "p1"}, FromUser: &model.UserRef{ID: "f1"}}, "/post/p1"},
		{model.Notification{Post: &model.PostRef{ID: "p1"}, Story: &model.StoryRef{ID: "s1"}}, "/post/p1"},
		{model.Notification{Story: &model.StoryRef{ID: "s1"}, FromUser: &model.UserRef{ID: "f1"}}, "/stories"},
		{model.Notification{FromUser: &model.UserRef{ID: "f1"}}, "/profile/f1"},
		{model.Notification{}, "/notifications"},
	}
	for _, tc := range cases {
		if got := Link(&tc.n); got != tc.want {
			t.Errorf("Link(%+v) = %s, want %s", tc.n, got, tc.want)
		}
	}
}

func TestDescribeAndIcon(t *testing.T) {
	n := model.Notification{Type: model.NotificationComment, FromUser: &model.UserRef{ID: "f1", Name: "Fay"}}
	if got := Describe(&n); got != "Fay commented on your post" {
		t.Fatalf("got %q", got)
	}
	anon := model.Notification{Type: model.NotificationFollow}
	if got := Describe(&anon); got != "Someone started following you" {
		t.Fatalf("got %q", got)
	}
	nameless := model.Notification{Type: model.NotificationLike, FromUser: &model.UserRef{ID: "f2", Username: "fay_99"}}
	if got := Describe(&nameless); got != "Someone liked your post" {
		t.Fatalf("actor without display name: %q", got)
	}
	odd := model.Notification{Type: "poke"}
	if Describe(&odd) != "New notification" || Icon(odd.Type) != "🔔" {
		t.Fatal("unknown type fallback")
	}
	if Icon(model.NotificationFriendRequest) != "🤝" {
		t.Fatal("friend request icon")
	}
}
