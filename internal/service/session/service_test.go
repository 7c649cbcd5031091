package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kama_social_client/internal/config"
	"kama_social_client/internal/model"
	"kama_social_client/pkg/errorx"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

const secret = "local-secret"

type memStore struct {
	mu   sync.Mutex
	recs map[string]model.SessionRecord
	last string
}

func newMemStore() *memStore {
	return &memStore{recs: map[string]model.SessionRecord{}}
}

func (s *memStore) Save(ctx context.Context, rec *model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.UserId] = *rec
	s.last = rec.UserId
	return nil
}

func (s *memStore) FindLatest(ctx context.Context) (*model.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[s.last]
	if !ok {
		return nil, errorx.Newf(errorx.CodeNotFound, "no session record")
	}
	return &rec, nil
}

func (s *memStore) DeleteByUserId(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, userID)
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

// remote 模拟远端 REST 与实时通道
type remote struct {
	srv          *httptest.Server
	rejectSocket atomic.Bool
	rejectREST   atomic.Bool

	mu        sync.Mutex
	conns     []*websocket.Conn
	convGate  chan struct{} // 非 nil 时会话列表请求阻塞到关闭
	convStart chan struct{}
}

// holdConversations 让之后的会话列表请求阻塞，返回请求到达通知与放行函数
func (r *remote) holdConversations() (<-chan struct{}, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convGate = make(chan struct{})
	r.convStart = make(chan struct{}, 1)
	gate := r.convGate
	return r.convStart, func() { close(gate) }
}

func newRemote(t *testing.T) *remote {
	t.Helper()
	r := &remote{}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conversations", func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		gate, started := r.convGate, r.convStart
		r.mu.Unlock()
		if gate != nil {
			select {
			case started <- struct{}{}:
			default:
			}
			<-gate
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"_id":"c1","participants":[{"_id":"u1"},{"_id":"u2","username":"john"}],"unreadCount":2}]`))
	})
	mux.HandleFunc("/api/notifications", func(w http.ResponseWriter, req *http.Request) {
		if r.rejectREST.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"_id":"n1","type":"like","isRead":false,"createdAt":"2024-05-01T10:00:00Z"}]}`))
	})
	mux.HandleFunc("/socket", func(w http.ResponseWriter, req *http.Request) {
		if r.rejectSocket.Load() || !strings.HasPrefix(req.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.mu.Lock()
		r.conns = append(r.conns, conn)
		r.mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	r.srv = httptest.NewServer(mux)
	t.Cleanup(r.srv.Close)
	return r
}

// dropConnections 服务端主动断开全部连接
func (r *remote) dropConnections() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		_ = c.Close()
	}
	r.conns = nil
}

func (r *remote) config() *config.Config {
	conf := &config.Config{}
	conf.BaseURL = r.srv.URL + "/api"
	conf.SocketURL = "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/socket"
	conf.BackoffBaseMs = 10
	conf.BackoffMaxMs = 40
	conf.Secret = secret
	conf.ApplyDefaults()
	return conf
}

func token(t *testing.T, exp time.Time) string {
	t.Helper()
	s, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"user_id":  "u1",
		"username": "alice",
		"exp":      exp.Unix(),
	}).SignedString([]byte("server-side-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLoginLoadsStateAndPersistsEncryptedCredential(t *testing.T) {
	r := newRemote(t)
	store := newMemStore()
	m := NewManager(r.config(), Deps{Store: store})
	defer m.Close()

	tok := token(t, time.Now().Add(time.Hour))
	rt, err := m.Login(context.Background(), tok)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if rt.Session.UserID != "u1" || rt.Session.Username != "alice" {
		t.Fatalf("session = %+v", rt.Session)
	}
	if convs := rt.Conversations.Conversations(); len(convs) != 1 || convs[0].UnreadCount != 2 {
		t.Fatalf("conversations = %+v", convs)
	}
	if rt.Notifications.UnreadCount() != 1 {
		t.Fatalf("unread notifications = %d", rt.Notifications.UnreadCount())
	}
	if cur, err := m.Current(); err != nil || cur != rt {
		t.Fatalf("Current = %v, %v", cur, err)
	}

	rec, err := store.FindLatest(context.Background())
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if strings.Contains(rec.Credential, tok) || rec.Salt == "" {
		t.Fatal("credential must be stored encrypted with a salt")
	}
	if got, err := open(rec, secret, time.Now()); err != nil || got != tok {
		t.Fatalf("open = %v", err)
	}
}

func TestCurrentNotBlockedByLoginInProgress(t *testing.T) {
	r := newRemote(t)
	m := NewManager(r.config(), Deps{})
	defer m.Close()

	first, err := m.Login(context.Background(), token(t, time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	second := token(t, time.Now().Add(2*time.Hour))
	started, release := r.holdConversations()
	type result struct {
		rt  *Runtime
		err error
	}
	done := make(chan result, 1)
	go func() {
		rt, err := m.Login(context.Background(), second)
		done <- result{rt, err}
	}()
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		release()
		t.Fatal("second login never reached the initial load")
	}

	current := make(chan *Runtime, 1)
	go func() {
		cur, _ := m.Current()
		current <- cur
	}()
	select {
	case cur := <-current:
		if cur != first {
			t.Fatal("previous session must keep serving until the new one is ready")
		}
	case <-time.After(time.Second):
		release()
		t.Fatal("Current blocked while login was in progress")
	}

	release()
	res := <-done
	if res.err != nil {
		t.Fatalf("second Login: %v", res.err)
	}
	if cur, _ := m.Current(); cur != res.rt {
		t.Fatal("new session not installed")
	}
}

func TestRestoreAfterRestart(t *testing.T) {
	r := newRemote(t)
	store := newMemStore()
	first := NewManager(r.config(), Deps{Store: store})
	if _, err := first.Login(context.Background(), token(t, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Login: %v", err)
	}
	first.Close()
	if store.count() != 1 {
		t.Fatal("Close must keep the persisted session")
	}

	second := NewManager(r.config(), Deps{Store: store})
	defer second.Close()
	rt, err := second.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if rt.Session.UserID != "u1" {
		t.Fatalf("restored user = %s", rt.Session.UserID)
	}
}

func TestRestoreWithoutPersistence(t *testing.T) {
	r := newRemote(t)
	m := NewManager(r.config(), Deps{})
	if _, err := m.Restore(context.Background()); !errorx.IsNotFound(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestLogoutDeletesRecord(t *testing.T) {
	r := newRemote(t)
	store := newMemStore()
	m := NewManager(r.config(), Deps{Store: store})
	rt, err := m.Login(context.Background(), token(t, time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if store.count() != 0 {
		t.Fatal("record not deleted")
	}
	if rt.Transport.Connected() {
		t.Fatal("transport still connected")
	}
	if _, err := m.Current(); !errorx.HasCode(err, errorx.CodeUnauthorized) {
		t.Fatalf("Current err = %v", err)
	}
	if err := m.Logout(context.Background()); !errorx.HasCode(err, errorx.CodeSessionClosed) {
		t.Fatalf("second Logout err = %v", err)
	}
}

func TestLoginRejectsExpiredCredential(t *testing.T) {
	r := newRemote(t)
	m := NewManager(r.config(), Deps{})
	_, err := m.Login(context.Background(), token(t, time.Now().Add(-time.Minute)))
	if !errorx.HasCode(err, errorx.CodeAuthRejected) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoginFailsWhenInitialLoadUnauthorized(t *testing.T) {
	r := newRemote(t)
	r.rejectREST.Store(true)
	m := NewManager(r.config(), Deps{})
	_, err := m.Login(context.Background(), token(t, time.Now().Add(time.Hour)))
	if !errorx.HasCode(err, errorx.CodeUnauthorized) {
		t.Fatalf("err = %v", err)
	}
	if _, err := m.Current(); err == nil {
		t.Fatal("no session expected")
	}
}

func TestSessionExpiredDuringReconnectTerminates(t *testing.T) {
	r := newRemote(t)
	store := newMemStore()
	m := NewManager(r.config(), Deps{Store: store})
	defer m.Close()
	if _, err := m.Login(context.Background(), token(t, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Login: %v", err)
	}

	r.rejectSocket.Store(true)
	r.dropConnections()

	waitFor(t, "session termination", func() bool {
		_, err := m.Current()
		return err != nil
	})
	waitFor(t, "record removal", func() bool { return store.count() == 0 })
}

func TestSealOpen(t *testing.T) {
	sess := model.Session{UserID: "u1", Token: "opaque", ExpiresAt: time.Now().Add(time.Hour)}
	rec, err := seal(sess, secret)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := open(rec, "other-secret", time.Now()); !errorx.HasCode(err, errorx.CodeAuthRejected) {
		t.Fatalf("wrong secret err = %v", err)
	}
	if _, err := open(rec, secret, time.Now().Add(2*time.Hour)); !errorx.HasCode(err, errorx.CodeAuthRejected) {
		t.Fatalf("expired err = %v", err)
	}
	got, err := open(rec, secret, time.Now())
	if err != nil || got != "opaque" {
		t.Fatalf("open = %q, %v", got, err)
	}
}
