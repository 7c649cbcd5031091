// Package websocket 实现与远端社交服务之间的实时事件通道
// transport.go
// 核心职责：
// 1. 每个会话维护一条到服务端的 WebSocket 连接 (Connect/Disconnect)
// 2. 读协程把入站消息解码后投递到事件通道，心跳协程维持连接
// 3. 连接意外断开时按指数退避重连，成功后先投递 Reconnected 再恢复读取
// 4. 重连时凭证被拒绝则投递 SessionExpired 并停止
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"kama_social_client/internal/config"
	"kama_social_client/internal/dto/request"
	"kama_social_client/internal/infrastructure/metrics"
	"kama_social_client/internal/model"
	"kama_social_client/pkg/constants"
	"kama_social_client/pkg/errorx"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options 连接与重连参数
type Options struct {
	BackoffBase   time.Duration // 首次重连等待
	BackoffMax    time.Duration // 等待上限
	BackoffFactor float64       // 等待倍数
	PingInterval  time.Duration // 心跳间隔，0 表示不发心跳也不设读超时
	WriteTimeout  time.Duration // 单次写超时
	EventBuffer   int           // 入站事件缓冲
}

// DefaultOptions base 1s，factor 2，cap 30s
func DefaultOptions() Options {
	return Options{
		BackoffBase:   time.Second,
		BackoffMax:    30 * time.Second,
		BackoffFactor: 2,
		PingInterval:  25 * time.Second,
		WriteTimeout:  10 * time.Second,
		EventBuffer:   constants.EVENT_BUFFER_SIZE,
	}
}

// OptionsFromConfig 由配置生成参数
func OptionsFromConfig(c config.TransportConfig) Options {
	o := DefaultOptions()
	if c.BackoffBaseMs > 0 {
		o.BackoffBase = time.Duration(c.BackoffBaseMs) * time.Millisecond
	}
	if c.BackoffMaxMs > 0 {
		o.BackoffMax = time.Duration(c.BackoffMaxMs) * time.Millisecond
	}
	if c.BackoffFactor > 0 {
		o.BackoffFactor = c.BackoffFactor
	}
	if c.PingIntervalSec > 0 {
		o.PingInterval = time.Duration(c.PingIntervalSec) * time.Second
	}
	if c.WriteTimeoutSec > 0 {
		o.WriteTimeout = time.Duration(c.WriteTimeoutSec) * time.Second
	}
	if c.EventBuffer > 0 {
		o.EventBuffer = c.EventBuffer
	}
	return o
}

// NewBackOff 重连退避策略：不加随机抖动，不限制总时长
func (o Options) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.BackoffBase
	b.Multiplier = o.BackoffFactor
	b.MaxInterval = o.BackoffMax
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Transport 实时事件通道
// Events 返回的通道在整个生命周期内唯一，Disconnect 后关闭且不可重启
type Transport struct {
	url    string
	opts   Options
	dialer *websocket.Dialer

	events chan model.Event
	ctx    context.Context // Disconnect 时取消
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    *websocket.Conn // 当前活动连接，断开或重连期间为 nil
	token   string
	running bool
	closed  bool

	writeMu   sync.Mutex // gorilla 连接只允许一个并发写者
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewTransport 创建实时事件通道
func NewTransport(url string, opts Options) *Transport {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = constants.EVENT_BUFFER_SIZE
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		url:  url,
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
			ReadBufferSize:   2048,
			WriteBufferSize:  2048,
		},
		events: make(chan model.Event, opts.EventBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Events 入站事件序列
func (t *Transport) Events() <-chan model.Event {
	return t.events
}

// Connected 当前是否有活动连接
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Connect 使用会话凭证建立连接
// 凭证被拒绝返回 CodeAuthRejected，其余失败返回 CodeNetworkUnavailable；
// 连接已建立或正在重连时直接返回 nil
func (t *Transport) Connect(ctx context.Context, session model.Session) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errorx.ErrSessionClosed
	}
	if t.running {
		t.mu.Unlock()
		return nil
	}
	t.token = session.Token
	t.mu.Unlock()

	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed || t.running {
		t.mu.Unlock()
		_ = conn.Close()
		if t.closed {
			return errorx.ErrSessionClosed
		}
		return nil
	}
	t.conn = conn
	t.running = true
	t.wg.Add(1)
	t.mu.Unlock()

	zap.L().Info("transport connected", zap.String("url", t.url), zap.String("user", session.UserID))
	go t.run(conn)
	return nil
}

// Disconnect 关闭连接并取消挂起的重连，可重复调用
// 返回后不会再有事件投递，事件通道被关闭
func (t *Transport) Disconnect() {
	t.closeOnce.Do(func() {
		t.cancel()

		t.mu.Lock()
		t.closed = true
		conn := t.conn
		t.conn = nil
		t.mu.Unlock()

		if conn != nil {
			t.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout"),
				time.Now().Add(time.Second))
			t.writeMu.Unlock()
			_ = conn.Close()
		}

		t.wg.Wait()
		for {
			select {
			case <-t.events:
				continue
			default:
			}
			break
		}
		close(t.events)
		zap.L().Info("transport disconnected", zap.String("url", t.url))
	})
}

// Send 发送一条出站事件
// 没有活动连接时返回 CodeNotConnected
func (t *Transport) Send(eventType model.EventType, payload any) error {
	data, err := json.Marshal(request.EventRequest{Event: string(eventType), Data: payload})
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeInvalidParam, "encode %s", eventType)
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errorx.Newf(errorx.CodeNotConnected, "send %s: no active connection", eventType)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// 关闭后读协程会感知断开并进入重连
		_ = conn.Close()
		return errorx.Wrapf(err, errorx.CodeNotConnected, "send %s", eventType)
	}
	return nil
}

// dial 建立一次连接并映射握手错误
func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	token := t.token
	t.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, errorx.Wrapf(err, errorx.CodeAuthRejected, "connect %s: credential rejected", t.url)
		}
		return nil, errorx.Wrapf(err, errorx.CodeNetworkUnavailable, "connect %s", t.url)
	}
	return conn, nil
}

// run 连接生命周期循环：读取 → 断开 → 退避重连 → Reconnected → 读取
func (t *Transport) run(conn *websocket.Conn) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	for {
		err := t.serve(conn)
		if t.ctx.Err() != nil {
			return
		}
		zap.L().Warn("transport connection lost", zap.Error(err))
		t.setConn(nil)
		_ = conn.Close()
		if !t.emit(model.DisconnectedEvent{Err: err}) {
			return
		}

		next, attempts, err := t.reconnect()
		if err != nil {
			if errorx.HasCode(err, errorx.CodeAuthRejected) {
				zap.L().Error("transport credential rejected on reconnect", zap.Error(err))
				t.emit(model.SessionExpiredEvent{Err: err})
			}
			return
		}
		if !t.setConn(next) {
			_ = next.Close()
			return
		}
		metrics.Reconnects.Inc()
		zap.L().Info("transport reconnected", zap.Int("attempts", attempts))
		if !t.emit(model.ReconnectedEvent{Attempts: attempts}) {
			return
		}
		conn = next
	}
}

// reconnect 按退避策略反复拨号，直到成功、凭证被拒或 Disconnect
func (t *Transport) reconnect() (*websocket.Conn, int, error) {
	b := t.opts.NewBackOff()
	attempts := 0
	for {
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return nil, attempts, errorx.New(errorx.CodeNetworkUnavailable, "reconnect: backoff exhausted")
		}
		timer := time.NewTimer(wait)
		select {
		case <-t.ctx.Done():
			timer.Stop()
			return nil, attempts, t.ctx.Err()
		case <-timer.C:
		}

		attempts++
		metrics.ReconnectAttempts.Inc()
		conn, err := t.dial(t.ctx)
		if err == nil {
			return conn, attempts, nil
		}
		if errorx.HasCode(err, errorx.CodeAuthRejected) || t.ctx.Err() != nil {
			return nil, attempts, err
		}
		zap.L().Debug("transport reconnect attempt failed",
			zap.Int("attempt", attempts), zap.Duration("waited", wait), zap.Error(err))
	}
}

// serve 读取一条连接上的所有消息，返回导致断开的错误
func (t *Transport) serve(conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)

	if t.opts.PingInterval > 0 {
		pongWait := 2 * t.opts.PingInterval
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go t.keepalive(conn, stop)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if t.opts.PingInterval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(2 * t.opts.PingInterval))
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			zap.L().Warn("transport dropped malformed event", zap.Error(err), zap.ByteString("raw", truncate(data)))
			continue
		}
		metrics.EventsReceived.WithLabelValues(string(ev.Type())).Inc()
		if !t.emit(ev) {
			return t.ctx.Err()
		}
	}
}

// keepalive 定时发送 ping
func (t *Transport) keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(t.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.opts.WriteTimeout))
			t.writeMu.Unlock()
			if err != nil {
				zap.L().Debug("transport ping failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

// emit 投递事件，Disconnect 后返回 false
func (t *Transport) emit(ev model.Event) bool {
	select {
	case <-t.ctx.Done():
		return false
	default:
	}
	select {
	case t.events <- ev:
		return true
	case <-t.ctx.Done():
		return false
	}
}

// setConn 更新活动连接，Disconnect 之后拒绝设置新连接
func (t *Transport) setConn(conn *websocket.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed && conn != nil {
		return false
	}
	t.conn = conn
	return true
}

func truncate(b []byte) []byte {
	if len(b) > 256 {
		return b[:256]
	}
	return b
}
