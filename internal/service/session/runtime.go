package session

import (
	"context"
	"sync"

	"kama_social_client/internal/config"
	myredis "kama_social_client/internal/dao/redis"
	"kama_social_client/internal/gateway/rest"
	gateway "kama_social_client/internal/gateway/websocket"
	"kama_social_client/internal/model"
	"kama_social_client/internal/service/broker"
	"kama_social_client/internal/service/conversation"
	"kama_social_client/internal/service/notification"
	"kama_social_client/internal/service/presence"
	"kama_social_client/internal/service/reconciler"
	"kama_social_client/pkg/constants"
	"kama_social_client/pkg/errorx"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runtime 一个已登录会话拥有的全部状态
// 连接、存储、分发器都随会话创建，随会话销毁，不存在进程级单例
type Runtime struct {
	Session       model.Session
	Transport     *gateway.Transport
	Conversations *conversation.Store
	Notifications *notification.Store
	Presence      *presence.Tracker
	Broker        broker.ChangeBroker

	reconciler *reconciler.Reconciler
	mirror     *myredis.ViewMirror
	mirrorFeed <-chan model.ChangeEvent

	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
	terminated bool // 发生过致命错误，由 Manager.mu 保护
}

// newRuntime 组装会话内的各组件，不建立连接
func newRuntime(conf *config.Config, sess model.Session, deps Deps, onFatal func(*Runtime, error)) *Runtime {
	api := rest.NewClient(conf.BaseURL, sess.Token, conf.RequestTimeout())
	transport := gateway.NewTransport(conf.SocketURL, gateway.OptionsFromConfig(conf.TransportConfig))
	changes := deps.NewBroker()
	tracker := presence.NewTracker()
	self := model.UserRef{ID: sess.UserID, Username: sess.Username}

	rt := &Runtime{
		Session:       sess,
		Transport:     transport,
		Conversations: conversation.NewStore(api, transport, changes, self),
		Notifications: notification.NewStore(api, changes),
		Presence:      tracker,
		Broker:        changes,
	}
	rt.reconciler = reconciler.New(transport.Events(), rt.Conversations, rt.Notifications, tracker, changes,
		func(err error) { onFatal(rt, err) })

	if deps.Cache != nil {
		rt.mirror = myredis.NewViewMirror(deps.Cache, sess.UserID, tracker.Snapshot)
		rt.mirrorFeed, _ = changes.Subscribe(constants.CHANNEL_SIZE)
	}
	return rt
}

// start 建立实时连接，启动分发，并做首次全量加载
// 首次加载的非致命错误只记录日志，会话照常可用
func (rt *Runtime) start(ctx context.Context) error {
	if err := rt.Transport.Connect(ctx, rt.Session); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel

	rt.wg.Add(2)
	go func() {
		defer rt.wg.Done()
		rt.Broker.Start()
	}()
	go func() {
		defer rt.wg.Done()
		rt.reconciler.Run(runCtx)
	}()
	if rt.mirror != nil {
		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			rt.mirror.Run(runCtx, rt.mirrorFeed)
		}()
	}

	var g errgroup.Group
	g.Go(func() error { return rt.Conversations.LoadConversations(ctx) })
	g.Go(func() error { return rt.Notifications.LoadAll(ctx) })
	if err := g.Wait(); err != nil {
		if errorx.IsFatal(err) {
			return err
		}
		zap.L().Warn("initial load incomplete", zap.String("user", rt.Session.UserID), zap.Error(err))
	}
	return nil
}

// close 断开连接并等待所有会话协程退出，可重复调用
func (rt *Runtime) close() {
	rt.closeOnce.Do(func() {
		rt.Transport.Disconnect()
		if rt.cancel != nil {
			rt.cancel()
		}
		rt.Broker.Close()
		rt.wg.Wait()
	})
}
