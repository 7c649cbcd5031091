// Package respond 定义响应结构
// 本文件定义本地视图 API 返回给展示层的结构
package respond

import "time"

// UserView 用户展示信息
type UserView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Online   bool   `json:"online"`
}

// LastMessageView 会话列表中的最后一条消息
type LastMessageView struct {
	Text      string    `json:"text"`
	SenderID  string    `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
	Time      string    `json:"time"` // 24 小时内显示时分，否则显示日期
}

// ConversationView 会话列表项
type ConversationView struct {
	ID           string           `json:"id"`
	Participants []UserView       `json:"participants"`
	Other        UserView         `json:"other"`
	LastMessage  *LastMessageView `json:"lastMessage,omitempty"`
	UnreadCount  int              `json:"unreadCount"`
	Provisional  bool             `json:"provisional"`
	Active       bool             `json:"active"`
}

// AttachmentView 附件
type AttachmentView struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// MessageView 消息
type MessageView struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversationId"`
	Sender         UserView         `json:"sender"`
	Text           string           `json:"text"`
	Media          []AttachmentView `json:"media,omitempty"`
	GifURL         string           `json:"gifUrl,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	Edited         bool             `json:"edited"`
	ReadBy         []string         `json:"readBy"`
	ReadByLabel    string           `json:"readByLabel,omitempty"` // 例如 "Read by 2"
	Status         string           `json:"status"`
	Own            bool             `json:"own"`
}

// NotificationView 通知
type NotificationView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Icon      string    `json:"icon"`
	Link      string    `json:"link"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
	FromUser  *UserView `json:"fromUser,omitempty"`
}

// NotificationListView 通知列表
type NotificationListView struct {
	Unread int                `json:"unread"`
	Items  []NotificationView `json:"items"`
}

// PresenceView 在线状态
type PresenceView struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// SessionView 当前登录会话
type SessionView struct {
	UserID              string    `json:"userId"`
	Username            string    `json:"username"`
	ExpiresAt           time.Time `json:"expiresAt"`
	UnreadNotifications int       `json:"unreadNotifications"`
	Online              int       `json:"online"`
}
