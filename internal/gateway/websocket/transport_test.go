package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kama_social_client/internal/model"
	"kama_social_client/pkg/errorx"

	gws "github.com/gorilla/websocket"
)

var upgrader = gws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func fastOptions() Options {
	o := DefaultOptions()
	o.BackoffBase = 10 * time.Millisecond
	o.BackoffMax = 40 * time.Millisecond
	o.PingInterval = 0
	o.WriteTimeout = time.Second
	return o
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func nextEvent(t *testing.T, tr *Transport) model.Event {
	t.Helper()
	select {
	case ev, ok := <-tr.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func TestConnectRejectedCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := NewTransport(wsURL(srv), fastOptions())
	defer tr.Disconnect()
	err := tr.Connect(context.Background(), model.Session{UserID: "u1", Token: "bad"})
	if !errorx.HasCode(err, errorx.CodeAuthRejected) {
		t.Fatalf("err = %v, want AuthRejected", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	tr := NewTransport(url, fastOptions())
	defer tr.Disconnect()
	err := tr.Connect(context.Background(), model.Session{UserID: "u1", Token: "t"})
	if !errorx.HasCode(err, errorx.CodeNetworkUnavailable) {
		t.Fatalf("err = %v, want NetworkUnavailable", err)
	}
}

func TestSendWithoutConnection(t *testing.T) {
	tr := NewTransport("ws://127.0.0.1:1/socket", fastOptions())
	defer tr.Disconnect()
	err := tr.Send(model.EventJoinConversation, map[string]string{"conversationId": "c1"})
	if !errorx.HasCode(err, errorx.CodeNotConnected) {
		t.Fatalf("err = %v, want NotConnected", err)
	}
}

func TestReceiveAndSend(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(gws.TextMessage, []byte(`{"event":"userOnline","data":{"userId":"u7"}}`))
		_, data, err := conn.ReadMessage()
		if err == nil {
			received <- string(data)
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	tr := NewTransport(wsURL(srv), fastOptions())
	defer tr.Disconnect()
	if err := tr.Connect(context.Background(), model.Session{UserID: "u1", Token: "tok"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ev := nextEvent(t, tr)
	online, ok := ev.(model.UserOnlineEvent)
	if !ok || online.UserID != "u7" {
		t.Fatalf("event = %#v", ev)
	}

	if err := tr.Send(model.EventJoinConversation, map[string]string{"conversationId": "c1"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case got := <-received:
		if !strings.Contains(got, `"event":"joinConversation"`) || !strings.Contains(got, `"conversationId":"c1"`) {
			t.Fatalf("server got %s", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not receive message")
	}
}

func TestReconnectEmitsLifecycleEvents(t *testing.T) {
	var dials int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&dials, 1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if n == 1 {
			_ = conn.WriteMessage(gws.TextMessage, []byte(`{"event":"userOnline","data":{"userId":"first"}}`))
			return
		}
		_ = conn.WriteMessage(gws.TextMessage, []byte(`{"event":"userOnline","data":{"userId":"second"}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	tr := NewTransport(wsURL(srv), fastOptions())
	defer tr.Disconnect()
	if err := tr.Connect(context.Background(), model.Session{UserID: "u1", Token: "tok"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if ev := nextEvent(t, tr); ev.(model.UserOnlineEvent).UserID != "first" {
		t.Fatalf("first event = %#v", ev)
	}
	if ev := nextEvent(t, tr); ev.Type() != model.EventDisconnected {
		t.Fatalf("want disconnected, got %#v", ev)
	}
	ev := nextEvent(t, tr)
	rec, ok := ev.(model.ReconnectedEvent)
	if !ok || rec.Attempts < 1 {
		t.Fatalf("want reconnected, got %#v", ev)
	}
	if ev := nextEvent(t, tr); ev.(model.UserOnlineEvent).UserID != "second" {
		t.Fatalf("post-reconnect event = %#v", ev)
	}
	if !tr.Connected() {
		t.Fatal("expected active connection after reconnect")
	}
}

func TestReconnectRejectedExpiresSession(t *testing.T) {
	var dials int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&dials, 1) > 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	tr := NewTransport(wsURL(srv), fastOptions())
	defer tr.Disconnect()
	if err := tr.Connect(context.Background(), model.Session{UserID: "u1", Token: "tok"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if ev := nextEvent(t, tr); ev.Type() != model.EventDisconnected {
		t.Fatalf("want disconnected, got %#v", ev)
	}
	ev := nextEvent(t, tr)
	expired, ok := ev.(model.SessionExpiredEvent)
	if !ok || !errorx.HasCode(expired.Err, errorx.CodeAuthRejected) {
		t.Fatalf("want session expired, got %#v", ev)
	}
}

func TestDisconnectIsIdempotentAndClosesEvents(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer wg.Done()
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	tr := NewTransport(wsURL(srv), fastOptions())
	if err := tr.Connect(context.Background(), model.Session{UserID: "u1", Token: "tok"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tr.Disconnect()
	tr.Disconnect()

	select {
	case _, ok := <-tr.Events():
		if ok {
			t.Fatal("events channel should be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("events channel not closed")
	}
	if tr.Connected() {
		t.Fatal("still connected after Disconnect")
	}
	if err := tr.Send(model.EventSendMessage, nil); !errorx.HasCode(err, errorx.CodeNotConnected) {
		t.Fatalf("Send after Disconnect = %v", err)
	}
	if err := tr.Connect(context.Background(), model.Session{Token: "tok"}); !errorx.HasCode(err, errorx.CodeSessionClosed) {
		t.Fatalf("Connect after Disconnect = %v", err)
	}
	wg.Wait()
}

func TestUnknownEventPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(gws.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(gws.TextMessage, []byte(`{"event":"typing","data":{"userId":"u2"}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	tr := NewTransport(wsURL(srv), fastOptions())
	defer tr.Disconnect()
	if err := tr.Connect(context.Background(), model.Session{Token: "tok"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ev := nextEvent(t, tr)
	unknown, ok := ev.(model.UnknownEvent)
	if !ok || unknown.Name != "typing" {
		t.Fatalf("event = %#v", ev)
	}
}

func TestBackoffSequence(t *testing.T) {
	b := DefaultOptions().NewBackOff()
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30, 30}
	for i, w := range want {
		if got := b.NextBackOff(); got != w*time.Second {
			t.Fatalf("attempt %d: got %v, want %v", i+1, got, w*time.Second)
		}
	}
}
