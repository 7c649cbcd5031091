// Package reconciler 连接实时通道与本地存储
// reconciler.go
// 核心职责：
// 1. 在单个协程中按到达顺序消费实时事件，分发到在线状态、会话、通知存储
// 2. 断线时清空在线状态；重连后重新加入当前会话，并全量同步当前会话历史与通知
// 3. 凭证失效类错误交给会话终止回调
package reconciler

import (
	"context"
	"errors"
	"sync"

	"kama_social_client/internal/infrastructure/metrics"
	"kama_social_client/internal/model"
	"kama_social_client/internal/service/broker"
	"kama_social_client/internal/service/conversation"
	"kama_social_client/pkg/errorx"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Conversations 会话存储中被分发调用的部分
type Conversations interface {
	ApplyIncomingMessage(msg model.Message) error
	ApplyReadReceipt(conversationID, readerID string, messageIDs []string) error
	LoadHistory(ctx context.Context, conversationID string) error
	Active() string
	RejoinActive()
}

// Notifications 通知存储中被分发调用的部分
type Notifications interface {
	ApplyIncoming(n model.Notification) error
	LoadAll(ctx context.Context) error
}

// Presence 在线状态
type Presence interface {
	OnPresenceSnapshot(userIDs []string)
	Join(userID string) bool
	Leave(userID string) bool
	Reset()
}

// Reconciler 事件分发与重连同步
type Reconciler struct {
	events        <-chan model.Event
	conversations Conversations
	notifications Notifications
	presence      Presence
	publisher     broker.Publisher
	onFatal       func(error)

	fatalOnce sync.Once
	wg        sync.WaitGroup
}

// New 创建分发器
// onFatal 至多调用一次，且在独立协程中调用，可以安全地在其中结束会话
func New(events <-chan model.Event, conversations Conversations, notifications Notifications,
	presence Presence, publisher broker.Publisher, onFatal func(error)) *Reconciler {
	return &Reconciler{
		events:        events,
		conversations: conversations,
		notifications: notifications,
		presence:      presence,
		publisher:     publisher,
		onFatal:       onFatal,
	}
}

// Run 消费事件直到通道关闭或 ctx 结束，返回前等待进行中的同步完成
func (r *Reconciler) Run(ctx context.Context) {
	defer r.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.events:
			if !ok {
				zap.L().Info("event feed closed, reconciler stopped")
				return
			}
			r.Handle(ctx, ev)
		}
	}
}

// Handle 分发单个事件
func (r *Reconciler) Handle(ctx context.Context, ev model.Event) {
	switch e := ev.(type) {
	case model.OnlineUsersEvent:
		r.presence.OnPresenceSnapshot(e.UserIDs)
		r.publish(model.ChangeEvent{Kind: model.ChangePresence})

	case model.UserOnlineEvent:
		if r.presence.Join(e.UserID) {
			r.publish(model.ChangeEvent{Kind: model.ChangePresence, UserID: e.UserID, Online: true})
		}

	case model.UserOfflineEvent:
		if r.presence.Leave(e.UserID) {
			r.publish(model.ChangeEvent{Kind: model.ChangePresence, UserID: e.UserID})
		}

	case model.NewMessageEvent:
		if err := r.conversations.ApplyIncomingMessage(e.Message); err != nil {
			zap.L().Warn("incoming message dropped", zap.String("message", e.Message.ID), zap.Error(err))
		}

	case model.NewNotificationEvent:
		if err := r.notifications.ApplyIncoming(e.Notification); err != nil {
			zap.L().Warn("incoming notification dropped", zap.String("notification", e.Notification.ID), zap.Error(err))
		}

	case model.MessagesReadEvent:
		if err := r.conversations.ApplyReadReceipt(e.ConversationID, e.ReaderID, e.MessageIDs); err != nil {
			zap.L().Debug("read receipt ignored", zap.String("conversation", e.ConversationID), zap.Error(err))
		}

	case model.DisconnectedEvent:
		r.presence.Reset()
		r.publish(model.ChangeEvent{Kind: model.ChangePresence})

	case model.ReconnectedEvent:
		zap.L().Info("reconnected, starting resync", zap.Int("attempts", e.Attempts))
		r.conversations.RejoinActive()
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.resync(ctx)
		}()

	case model.SessionExpiredEvent:
		r.fatal(errorx.Wrap(e.Err, errorx.CodeAuthRejected, "session expired"))

	default:
		zap.L().Debug("unknown event ignored", zap.String("type", string(ev.Type())))
	}
}

// resync 重连后的全量同步：当前会话历史与通知并行拉取，各调用一次
func (r *Reconciler) resync(ctx context.Context) {
	var g errgroup.Group
	if active := r.conversations.Active(); active != "" {
		g.Go(func() error {
			err := r.conversations.LoadHistory(ctx, active)
			if errors.Is(err, conversation.ErrSuperseded) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		return r.notifications.LoadAll(ctx)
	})

	if err := g.Wait(); err != nil {
		metrics.Resyncs.WithLabelValues("failed").Inc()
		zap.L().Warn("resync failed", zap.Error(err))
		if errorx.IsFatal(err) {
			r.fatal(err)
		}
		return
	}
	metrics.Resyncs.WithLabelValues("ok").Inc()
}

func (r *Reconciler) fatal(err error) {
	zap.L().Error("session terminated", zap.Error(err))
	r.publish(model.ChangeEvent{Kind: model.ChangeSessionTerminated})
	if r.onFatal == nil {
		return
	}
	r.fatalOnce.Do(func() {
		go r.onFatal(err)
	})
}

func (r *Reconciler) publish(ev model.ChangeEvent) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(context.Background(), ev); err != nil {
		zap.L().Warn("publish change failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
