package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kama_social_client/internal/dto/request"
	"kama_social_client/internal/model"
	"kama_social_client/internal/service/conversation"
	"kama_social_client/internal/service/notification"
	"kama_social_client/internal/service/presence"
	"kama_social_client/pkg/errorx"
)

var (
	me   = model.UserRef{ID: "u1"}
	john = model.UserRef{ID: "u2"}
	base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
)

type fakeRemote struct {
	mu           sync.Mutex
	historyCalls map[string]int
	listCalls    int
	history      []model.Message
	notes        []model.Notification
	listErr      error
}

func (f *fakeRemote) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	return []model.Conversation{{ID: "c1", Participants: []model.UserRef{me, john}}}, nil
}

func (f *fakeRemote) ListMessages(ctx context.Context, id string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls[id]++
	return append([]model.Message(nil), f.history...), nil
}

func (f *fakeRemote) SendMessage(ctx context.Context, req request.SendMessageRequest) (model.Message, error) {
	return model.Message{}, errors.New("not used")
}

func (f *fakeRemote) MarkConversationRead(ctx context.Context, id string) error { return nil }

func (f *fakeRemote) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return append([]model.Notification(nil), f.notes...), f.listErr
}

func (f *fakeRemote) MarkNotificationRead(ctx context.Context, id string) error { return nil }
func (f *fakeRemote) MarkAllNotificationsRead(ctx context.Context) error        { return nil }

type roomSender struct {
	mu    sync.Mutex
	joins int
}

func (s *roomSender) Send(ev model.EventType, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev == model.EventJoinConversation {
		s.joins++
	}
	return nil
}

type fixture struct {
	remote   *fakeRemote
	sender   *roomSender
	convs    *conversation.Store
	notes    *notification.Store
	presence *presence.Tracker
	fatal    chan error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		remote:   &fakeRemote{historyCalls: map[string]int{}},
		sender:   &roomSender{},
		presence: presence.NewTracker(),
		fatal:    make(chan error, 2),
	}
	f.convs = conversation.NewStore(f.remote, f.sender, nil, me)
	f.notes = notification.NewStore(f.remote, nil)
	if err := f.convs.LoadConversations(context.Background()); err != nil {
		t.Fatalf("LoadConversations: %v", err)
	}
	return f
}

func (f *fixture) run(events ...model.Event) {
	ch := make(chan model.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	r := New(ch, f.convs, f.notes, f.presence, nil, func(err error) { f.fatal <- err })
	r.Run(context.Background())
}

func message(id string, offset time.Duration) model.Message {
	return model.Message{ID: id, ConversationID: "c1", Sender: john, Content: id, CreatedAt: base.Add(offset)}
}

func TestReconnectResyncsActiveConversationOnce(t *testing.T) {
	f := newFixture(t)
	_ = f.convs.SetActive("c1")
	f.remote.history = []model.Message{message("m1", time.Second), message("m2", 2*time.Second)}
	f.remote.notes = []model.Notification{{ID: "n1", Type: model.NotificationLike, CreatedAt: base}}

	f.run(
		model.OnlineUsersEvent{UserIDs: []string{"u2"}},
		model.NewMessageEvent{Message: message("m1", time.Second)},
		model.DisconnectedEvent{Err: errors.New("eof")},
		model.NewMessageEvent{Message: message("outage", 3*time.Second)},
		model.ReconnectedEvent{Attempts: 2},
	)

	if got := f.remote.historyCalls["c1"]; got != 1 {
		t.Fatalf("LoadHistory(c1) calls = %d, want 1", got)
	}
	if f.remote.listCalls != 1 {
		t.Fatalf("LoadAll calls = %d, want 1", f.remote.listCalls)
	}
	msgs, _ := f.convs.Messages("c1")
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("messages = %+v", msgs)
	}
	if f.notes.UnreadCount() != 1 {
		t.Fatalf("unread notifications = %d", f.notes.UnreadCount())
	}
	if f.presence.IsOnline("u2") {
		t.Fatal("presence should be reset after disconnect")
	}
	// SetActive 一次 + 重连后重新加入一次
	if f.sender.joins != 2 {
		t.Fatalf("joins = %d, want 2", f.sender.joins)
	}
}

func TestReconnectWithoutActiveConversationLoadsNotificationsOnly(t *testing.T) {
	f := newFixture(t)
	f.run(model.ReconnectedEvent{Attempts: 1})

	if len(f.remote.historyCalls) != 0 {
		t.Fatalf("history calls = %v", f.remote.historyCalls)
	}
	if f.remote.listCalls != 1 {
		t.Fatalf("LoadAll calls = %d", f.remote.listCalls)
	}
}

func TestRoutingAndUnknownEvents(t *testing.T) {
	f := newFixture(t)
	f.run(
		model.UserOnlineEvent{UserID: "u5"},
		model.UserOnlineEvent{UserID: "u6"},
		model.UserOfflineEvent{UserID: "u5"},
		model.UnknownEvent{Name: "typing"},
		model.NewNotificationEvent{Notification: model.Notification{ID: "n9", Type: model.NotificationFollow, CreatedAt: base}},
		model.NewMessageEvent{Message: model.Message{ID: "m1", ConversationID: "c1", Sender: me, Content: "x", CreatedAt: base}},
		model.MessagesReadEvent{ConversationID: "c1", ReaderID: "u2"},
		model.MessagesReadEvent{ConversationID: "missing", ReaderID: "u2"},
	)

	if f.presence.IsOnline("u5") || !f.presence.IsOnline("u6") {
		t.Fatalf("presence = %v", f.presence.Snapshot())
	}
	if f.notes.UnreadCount() != 1 {
		t.Fatalf("notifications unread = %d", f.notes.UnreadCount())
	}
	msgs, _ := f.convs.Messages("c1")
	if len(msgs) != 1 || msgs[0].Status != model.StatusRead {
		t.Fatalf("messages = %+v", msgs)
	}
	select {
	case err := <-f.fatal:
		t.Fatalf("unexpected fatal: %v", err)
	default:
	}
}

func TestSessionExpiredIsFatalOnce(t *testing.T) {
	f := newFixture(t)
	f.run(
		model.SessionExpiredEvent{Err: errorx.New(errorx.CodeAuthRejected, "401")},
		model.SessionExpiredEvent{Err: errorx.New(errorx.CodeAuthRejected, "401")},
	)
	select {
	case err := <-f.fatal:
		if !errorx.IsFatal(err) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("onFatal not called")
	}
	select {
	case <-f.fatal:
		t.Fatal("onFatal called twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnauthorizedResyncIsFatal(t *testing.T) {
	f := newFixture(t)
	f.remote.listErr = errorx.New(errorx.CodeUnauthorized, "401")
	f.run(model.ReconnectedEvent{Attempts: 1})

	select {
	case err := <-f.fatal:
		if !errorx.HasCode(err, errorx.CodeUnauthorized) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("onFatal not called")
	}
}
