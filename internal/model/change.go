// Package model 定义客户端本地状态使用的领域模型
// 本文件定义本地状态变更事件，供展示层订阅
package model

import "time"

// ChangeKind 变更类型
type ChangeKind string

const (
	ChangeConversationsLoaded ChangeKind = "conversations.loaded"
	ChangeConversationUpdated ChangeKind = "conversation.updated"
	ChangeConversationPromote ChangeKind = "conversation.promoted"
	ChangeHistoryLoaded       ChangeKind = "history.loaded"
	ChangeMessageUpserted     ChangeKind = "message.upserted"
	ChangeMessageFailed       ChangeKind = "message.failed"
	ChangeNotificationsLoaded ChangeKind = "notifications.loaded"
	ChangeNotificationAdded   ChangeKind = "notification.added"
	ChangeNotificationRead    ChangeKind = "notification.read"
	ChangePresence            ChangeKind = "presence.changed"
	ChangeSessionTerminated   ChangeKind = "session.terminated"
)

// ChangeEvent 一次本地状态变更
// 只携带定位信息，订阅方按需回查最新状态
type ChangeEvent struct {
	ID             string     `json:"id"`
	Kind           ChangeKind `json:"kind"`
	ConversationID string     `json:"conversationId,omitempty"`
	PreviousID     string     `json:"previousId,omitempty"` // 临时 ID 被替换时的旧 ID
	MessageID      string     `json:"messageId,omitempty"`
	NotificationID string     `json:"notificationId,omitempty"`
	UserID         string     `json:"userId,omitempty"`
	Online         bool       `json:"online,omitempty"`
	Unread         int        `json:"unread"`
	At             time.Time  `json:"at"`
}
