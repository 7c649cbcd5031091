// Package service 提供业务逻辑层
// 本文件实现 Service 层的依赖注入和聚合
package service

import (
	"context"

	"kama_social_client/internal/model"
	"kama_social_client/internal/service/session"
)

// Scope 当前会话的全部视图服务
// 随会话创建与销毁，Handler 每个请求重新获取
type Scope struct {
	Session       model.Session
	Conversations ConversationService
	Notifications NotificationService
	Presence      PresenceService
	Changes       ChangeFeed
}

// Services 聚合所有 Service 实例
// 作为依赖注入的入口，Handler 层通过此结构访问各个 Service
type Services struct {
	Session SessionService
}

// NewServices 创建并注入所有 Service 实例
func NewServices(manager *session.Manager) *Services {
	return &Services{Session: &sessionService{manager: manager}}
}

// sessionService 把会话管理器的 Runtime 转换为 Scope
type sessionService struct {
	manager *session.Manager
}

func (s *sessionService) Login(ctx context.Context, token string) (*Scope, error) {
	rt, err := s.manager.Login(ctx, token)
	if err != nil {
		return nil, err
	}
	return scopeOf(rt), nil
}

func (s *sessionService) Logout(ctx context.Context) error {
	return s.manager.Logout(ctx)
}

func (s *sessionService) Current() (*Scope, error) {
	rt, err := s.manager.Current()
	if err != nil {
		return nil, err
	}
	return scopeOf(rt), nil
}

func scopeOf(rt *session.Runtime) *Scope {
	return &Scope{
		Session:       rt.Session,
		Conversations: rt.Conversations,
		Notifications: rt.Notifications,
		Presence:      rt.Presence,
		Changes:       rt.Broker,
	}
}
