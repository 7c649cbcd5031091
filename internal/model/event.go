// Package model 定义客户端本地状态使用的领域模型
// 本文件定义实时通道上的事件：服务端推送事件、连接生命周期的合成事件，以及发往服务端的事件名
package model

import "encoding/json"

// EventType 事件名，与线上协议的 event 字段一致
type EventType string

// 入站事件
const (
	EventOnlineUsers     EventType = "onlineUsers"
	EventUserOnline      EventType = "userOnline"
	EventUserOffline     EventType = "userOffline"
	EventNewMessage      EventType = "newMessage"
	EventNewNotification EventType = "newNotification"
	EventMessagesRead    EventType = "messagesRead"
)

// 连接生命周期合成事件，不经过网络
const (
	EventReconnected    EventType = "reconnected"
	EventDisconnected   EventType = "disconnected"
	EventSessionExpired EventType = "sessionExpired"
)

// 出站事件
const (
	EventJoinConversation  EventType = "joinConversation"
	EventLeaveConversation EventType = "leaveConversation"
	EventSendMessage       EventType = "sendMessage"
)

// Event 入站事件的封闭变体
// 只有本包内的类型能实现该接口
type Event interface {
	Type() EventType
	isEvent()
}

// OnlineUsersEvent 在线用户全量快照
type OnlineUsersEvent struct {
	UserIDs []string
}

// UserOnlineEvent 单个用户上线
type UserOnlineEvent struct {
	UserID string
}

// UserOfflineEvent 单个用户下线
type UserOfflineEvent struct {
	UserID string
}

// NewMessageEvent 新消息（也包括自己发送消息的回显）
type NewMessageEvent struct {
	Message Message
}

// NewNotificationEvent 新通知
type NewNotificationEvent struct {
	Notification Notification
}

// MessagesReadEvent 已读回执
// MessageIDs 为空表示会话内所有消息
type MessagesReadEvent struct {
	ConversationID string
	ReaderID       string
	MessageIDs     []string
}

// ReconnectedEvent 重连成功，先于恢复后的任何其他事件送达
type ReconnectedEvent struct {
	Attempts int
}

// DisconnectedEvent 连接意外断开，随后开始重连
type DisconnectedEvent struct {
	Err error
}

// SessionExpiredEvent 重连时凭证被拒绝，会话必须终止
type SessionExpiredEvent struct {
	Err error
}

// UnknownEvent 未识别的事件名，按空操作处理
type UnknownEvent struct {
	Name string
	Raw  json.RawMessage
}

func (OnlineUsersEvent) Type() EventType     { return EventOnlineUsers }
func (UserOnlineEvent) Type() EventType      { return EventUserOnline }
func (UserOfflineEvent) Type() EventType     { return EventUserOffline }
func (NewMessageEvent) Type() EventType      { return EventNewMessage }
func (NewNotificationEvent) Type() EventType { return EventNewNotification }
func (MessagesReadEvent) Type() EventType    { return EventMessagesRead }
func (ReconnectedEvent) Type() EventType     { return EventReconnected }
func (DisconnectedEvent) Type() EventType    { return EventDisconnected }
func (SessionExpiredEvent) Type() EventType  { return EventSessionExpired }
func (e UnknownEvent) Type() EventType       { return EventType(e.Name) }

func (OnlineUsersEvent) isEvent()     {}
func (UserOnlineEvent) isEvent()      {}
func (UserOfflineEvent) isEvent()     {}
func (NewMessageEvent) isEvent()      {}
func (NewNotificationEvent) isEvent() {}
func (MessagesReadEvent) isEvent()    {}
func (ReconnectedEvent) isEvent()     {}
func (DisconnectedEvent) isEvent()    {}
func (SessionExpiredEvent) isEvent()  {}
func (UnknownEvent) isEvent()         {}
