// Package broker 实现本地状态变更事件的广播
// broker.go
// 核心职责：定义变更代理接口
// 存储层发布变更，本地视图 WebSocket、Redis 镜像等订阅方各自消费；
// 支持 Channel（进程内）和 Kafka（跨进程）两种实现
package broker

import (
	"context"
	"sync"
	"time"

	"kama_social_client/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher 变更发布方只依赖此接口
type Publisher interface {
	// Publish 发布一次变更，ID 与时间为空时自动补齐
	Publish(ctx context.Context, ev model.ChangeEvent) error
}

// ChangeBroker 变更代理
type ChangeBroker interface {
	Publisher
	// Subscribe 注册订阅方，返回事件通道与取消函数
	Subscribe(buffer int) (<-chan model.ChangeEvent, func())
	// Start 启动分发循环，阻塞直到 Close
	Start()
	// Close 关闭代理并关闭所有订阅通道
	Close()
}

// stamp 补齐事件 ID 与时间
func stamp(ev model.ChangeEvent) model.ChangeEvent {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	return ev
}

// hub 订阅方集合
// 广播不阻塞：订阅方缓冲已满时丢弃该事件，订阅方按需回查最新状态
type hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan model.ChangeEvent
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan model.ChangeEvent)}
}

func (h *hub) subscribe(buffer int) (<-chan model.ChangeEvent, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan model.ChangeEvent, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

func (h *hub) broadcast(ev model.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			zap.L().Warn("change subscriber lagging, event dropped",
				zap.Int("subscriber", id), zap.String("kind", string(ev.Kind)))
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
