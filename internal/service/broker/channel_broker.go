// Package broker 实现本地状态变更事件的广播
// channel_broker.go
// 核心职责：单机模式下的变更代理
// 发布方写入 Transmit 通道，分发循环取出后广播给所有订阅方，不依赖外部消息队列
package broker

import (
	"context"
	"sync"
	"sync/atomic"

	"kama_social_client/internal/model"
	"kama_social_client/pkg/constants"
	"kama_social_client/pkg/errorx"
)

// ChannelBroker 进程内变更代理
type ChannelBroker struct {
	// Transmit 待分发的变更
	Transmit chan model.ChangeEvent

	hub       *hub
	started   atomic.Bool
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewChannelBroker 创建进程内变更代理
func NewChannelBroker() *ChannelBroker {
	return &ChannelBroker{
		Transmit: make(chan model.ChangeEvent, constants.CHANNEL_SIZE),
		hub:      newHub(),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Publish 写入分发通道，通道满时等待直到 ctx 结束
func (b *ChannelBroker) Publish(ctx context.Context, ev model.ChangeEvent) error {
	select {
	case <-b.quit:
		return errorx.ErrSessionClosed
	default:
	}
	select {
	case b.Transmit <- stamp(ev):
		return nil
	case <-b.quit:
		return errorx.ErrSessionClosed
	case <-ctx.Done():
		return errorx.Wrap(ctx.Err(), errorx.CodeServerBusy, "publish change")
	}
}

// Subscribe 注册订阅方
func (b *ChannelBroker) Subscribe(buffer int) (<-chan model.ChangeEvent, func()) {
	return b.hub.subscribe(buffer)
}

// Start 分发主循环
func (b *ChannelBroker) Start() {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	defer close(b.done)
	for {
		select {
		case ev := <-b.Transmit:
			b.hub.broadcast(ev)
		case <-b.quit:
			b.drain()
			return
		}
	}
}

// Close 停止分发循环并关闭订阅通道
// 已入队的变更在关闭前发完；未调用 Start 时由 Close 自行发完
func (b *ChannelBroker) Close() {
	b.closeOnce.Do(func() {
		close(b.quit)
		if b.started.CompareAndSwap(false, true) {
			b.drain()
			close(b.done)
			return
		}
		<-b.done
	})
}

func (b *ChannelBroker) drain() {
	for {
		select {
		case ev := <-b.Transmit:
			b.hub.broadcast(ev)
		default:
			b.hub.close()
			return
		}
	}
}
