// Package service 定义业务层接口
// 本文件定义 Handler 层依赖的 Service 接口
// 各会话内存储天然满足这些接口，Handler 不直接依赖具体实现
package service

import (
	"context"
	"iter"

	"kama_social_client/internal/model"
	"kama_social_client/internal/service/notification"
)

// SessionService 会话生命周期接口
type SessionService interface {
	// Login 使用远端凭证登录
	Login(ctx context.Context, token string) (*Scope, error)
	// Logout 结束当前会话
	Logout(ctx context.Context) error
	// Current 当前会话的视图服务，未登录时返回 CodeUnauthorized
	Current() (*Scope, error)
}

// ConversationService 会话与消息接口
type ConversationService interface {
	// Conversations 按最近活动排序的会话列表
	Conversations() []model.Conversation
	// Conversation 按 ID 查询会话
	Conversation(id string) (model.Conversation, bool)
	// Messages 会话内按时间排序的消息
	Messages(conversationID string) ([]model.Message, error)
	// Active 当前正在查看的会话
	Active() string
	// SetActive 切换当前会话
	SetActive(conversationID string) error
	// LoadHistory 拉取会话历史
	LoadHistory(ctx context.Context, conversationID string) error
	// SendMessage 发送消息，立即返回临时消息
	SendMessage(ctx context.Context, conversationID, content string, media []model.Attachment, gif *model.GifRef) (model.Message, error)
	// ResendMessage 重发失败消息
	ResendMessage(ctx context.Context, conversationID, failedID string) (model.Message, error)
	// StartConversation 与指定用户开始会话
	StartConversation(participants []model.UserRef) (model.Conversation, error)
	// MarkConversationRead 会话标记已读
	MarkConversationRead(ctx context.Context, conversationID string) error
}

// NotificationService 通知接口
type NotificationService interface {
	// UnreadCount 未读数
	UnreadCount() int
	// Filter 按条件过滤的惰性视图
	Filter(pred notification.Predicate) iter.Seq[model.Notification]
	// MarkRead 单条标记已读
	MarkRead(ctx context.Context, id string) error
	// MarkAllRead 全部标记已读
	MarkAllRead(ctx context.Context) error
}

// PresenceService 在线状态接口
type PresenceService interface {
	IsOnline(userID string) bool
	Snapshot() []string
}

// ChangeFeed 本地变更订阅
type ChangeFeed interface {
	Subscribe(buffer int) (<-chan model.ChangeEvent, func())
}
