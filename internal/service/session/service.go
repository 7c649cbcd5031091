// Package session 管理登录会话的生命周期
// service.go
// 核心职责：
// 1. Login：解析凭证声明，建立实时连接，组装会话内的存储与分发器，按配置持久化凭证
// 2. Restore：进程重启后从持久化记录恢复会话
// 3. Logout / 致命错误：拆除会话内全部组件并删除持久化记录
package session

import (
	"context"
	"sync"
	"time"

	"kama_social_client/internal/config"
	myredis "kama_social_client/internal/dao/redis"
	"kama_social_client/internal/model"
	"kama_social_client/internal/service/broker"
	"kama_social_client/pkg/errorx"
	"kama_social_client/pkg/util/jwt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RecordStore 会话记录的持久化，Redis 与 MySQL 实现同一接口
type RecordStore interface {
	Save(ctx context.Context, rec *model.SessionRecord) error
	FindLatest(ctx context.Context) (*model.SessionRecord, error)
	DeleteByUserId(ctx context.Context, userID string) error
}

// Deps 会话依赖的外部设施
type Deps struct {
	Store     RecordStore                 // nil 表示不持久化
	Cache     myredis.AsyncCacheService   // nil 表示不做视图镜像
	NewBroker func() broker.ChangeBroker // 每个会话一个变更代理
}

// Manager 会话管理器，同一时刻至多一个会话
type Manager struct {
	conf *config.Config
	deps Deps
	now  func() time.Time

	loginMu sync.Mutex // 串行化 Login，建连与首次加载期间不占用 mu

	mu      sync.Mutex
	current *Runtime
}

// NewManager 创建会话管理器
func NewManager(conf *config.Config, deps Deps) *Manager {
	if deps.NewBroker == nil {
		deps.NewBroker = func() broker.ChangeBroker { return broker.NewChannelBroker() }
	}
	return &Manager{conf: conf, deps: deps, now: time.Now}
}

// Current 当前会话，没有会话时返回 CodeUnauthorized
func (m *Manager) Current() (*Runtime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, errorx.ErrUnauthorized
	}
	return m.current, nil
}

// Login 用凭证建立会话，新会话就绪后替换旧会话
func (m *Manager) Login(ctx context.Context, token string) (*Runtime, error) {
	claims, err := jwt.ParseToken(token, m.now())
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeAuthRejected, "凭证无效")
	}
	sess := model.Session{
		UserID:    claims.Identity(),
		Username:  claims.Username,
		Token:     token,
		ExpiresAt: claims.Expiry(),
	}

	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	// 新会话在锁外建立，期间旧会话照常服务
	rt := newRuntime(m.conf, sess, m.deps, m.terminate)
	if err := rt.start(ctx); err != nil {
		rt.close()
		return nil, err
	}

	m.mu.Lock()
	if rt.terminated {
		m.mu.Unlock()
		rt.close()
		return nil, errorx.New(errorx.CodeAuthRejected, "会话在建立过程中失效")
	}
	old := m.current
	m.current = rt
	m.mu.Unlock()

	if old != nil {
		zap.L().Info("replacing active session", zap.String("user", old.Session.UserID))
		old.close()
	}
	m.persist(ctx, sess)

	zap.L().Info("session started", zap.String("user", sess.UserID), zap.String("username", sess.Username))
	return rt, nil
}

// Restore 从持久化记录恢复会话
// 记录已过期或无法解密时删除该记录
func (m *Manager) Restore(ctx context.Context) (*Runtime, error) {
	if m.deps.Store == nil || m.conf.Secret == "" {
		return nil, errorx.Newf(errorx.CodeNotFound, "session persistence disabled")
	}
	rec, err := m.deps.Store.FindLatest(ctx)
	if err != nil {
		return nil, err
	}
	token, err := open(rec, m.conf.Secret, m.now())
	if err != nil {
		if delErr := m.deps.Store.DeleteByUserId(ctx, rec.UserId); delErr != nil {
			zap.L().Warn("delete unusable session record failed", zap.Error(delErr))
		}
		return nil, err
	}
	return m.Login(ctx, token)
}

// Logout 结束当前会话并删除持久化记录
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	rt := m.current
	m.current = nil
	m.mu.Unlock()
	if rt == nil {
		return errorx.ErrSessionClosed
	}

	rt.close()
	err := m.forget(ctx, rt)
	zap.L().Info("session logged out", zap.String("user", rt.Session.UserID))
	return err
}

// Close 进程退出时结束会话，保留持久化记录以便下次恢复
func (m *Manager) Close() {
	m.mu.Lock()
	rt := m.current
	m.current = nil
	m.mu.Unlock()
	if rt != nil {
		rt.close()
	}
}

// terminate 会话内发生致命错误（凭证失效）时由分发器回调
// 会话尚未切换为当前会话时只做标记，由 Login 负责收尾
func (m *Manager) terminate(rt *Runtime, cause error) {
	m.mu.Lock()
	rt.terminated = true
	if m.current != rt {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.mu.Unlock()

	rt.close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.forget(ctx, rt); err != nil {
		zap.L().Warn("cleanup after termination failed", zap.Error(err))
	}
	zap.L().Warn("session terminated", zap.String("user", rt.Session.UserID), zap.Error(cause))
}

// persist 按配置写入加密后的凭证，失败只记录日志
func (m *Manager) persist(ctx context.Context, sess model.Session) {
	if m.deps.Store == nil {
		return
	}
	if m.conf.Secret == "" {
		zap.L().Warn("session secret not configured, credential not persisted")
		return
	}
	rec, err := seal(sess, m.conf.Secret)
	if err == nil {
		err = m.deps.Store.Save(ctx, rec)
	}
	if err != nil {
		zap.L().Warn("persist session failed", zap.String("user", sess.UserID), zap.Error(err))
	}
}

// forget 删除持久化记录与视图镜像
func (m *Manager) forget(ctx context.Context, rt *Runtime) error {
	var err error
	if m.deps.Store != nil {
		err = multierr.Append(err, m.deps.Store.DeleteByUserId(ctx, rt.Session.UserID))
	}
	if rt.mirror != nil {
		err = multierr.Append(err, rt.mirror.Clear(ctx))
	}
	return err
}
