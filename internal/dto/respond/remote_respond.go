// Package respond 定义响应结构
// 本文件定义远端社交服务返回的 JSON 结构，并负责转换为本地领域模型
package respond

import (
	"bytes"
	"encoding/json"
	"time"

	"kama_social_client/internal/model"
)

// UserRespond 远端用户引用
// 服务端有时内嵌完整对象，有时只给出 ID 字符串，两种形式都接受
type UserRespond struct {
	ID             string `json:"_id"`
	Username       string `json:"username,omitempty"`
	Name           string `json:"name,omitempty"`
	Avatar         string `json:"avatar,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// UnmarshalJSON 兼容字符串 ID 与对象两种形式
func (u *UserRespond) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &u.ID)
	}
	type plain UserRespond
	var p struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*u = UserRespond(p.plain)
	if u.ID == "" {
		u.ID = p.AltID
	}
	return nil
}

// ToModel 转换为领域模型
func (u UserRespond) ToModel() model.UserRef {
	avatar := u.Avatar
	if avatar == "" {
		avatar = u.ProfilePicture
	}
	return model.UserRef{ID: u.ID, Username: u.Username, Name: u.Name, Avatar: avatar}
}

// MediaRespond 消息或帖子附件
type MediaRespond struct {
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
	Filename  string `json:"filename,omitempty"`
	Size      int64  `json:"size,omitempty"`
}

// GifRespond GIF 附件
type GifRespond struct {
	URL string `json:"url"`
}

// MessageRespond 远端消息
type MessageRespond struct {
	ID             string         `json:"_id"`
	ClientID       string         `json:"clientId,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	Conversation   string         `json:"conversation,omitempty"`
	Text           string         `json:"text"`
	Sender         UserRespond    `json:"sender"`
	Media          []MediaRespond `json:"media,omitempty"`
	Gif            *GifRespond    `json:"gif,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	Edited         bool           `json:"edited,omitempty"`
	ReadBy         []UserRespond  `json:"readBy,omitempty"`
}

// ToModel 转换为领域模型，远端消息一律视为已送达服务端
func (m MessageRespond) ToModel() model.Message {
	msg := model.Message{
		ID:             m.ID,
		ClientID:       m.ClientID,
		ConversationID: m.ConversationID,
		Sender:         m.Sender.ToModel(),
		Content:        m.Text,
		Media:          toAttachments(m.Media),
		CreatedAt:      m.CreatedAt,
		Edited:         m.Edited,
		Status:         model.StatusSent,
	}
	if msg.ConversationID == "" {
		msg.ConversationID = m.Conversation
	}
	if m.Gif != nil && m.Gif.URL != "" {
		msg.Gif = &model.GifRef{URL: m.Gif.URL}
	}
	for _, r := range m.ReadBy {
		msg.AddReader(r.ID)
	}
	if len(msg.ReadBy) > 0 {
		msg.Status = model.StatusRead
	}
	return msg
}

// LastMessageRespond 会话列表中的最后一条消息
type LastMessageRespond struct {
	Text      string      `json:"text"`
	Sender    UserRespond `json:"sender"`
	CreatedAt time.Time   `json:"createdAt"`
}

// ConversationRespond 远端会话
type ConversationRespond struct {
	ID           string              `json:"_id"`
	Participants []UserRespond       `json:"participants"`
	LastMessage  *LastMessageRespond `json:"lastMessage,omitempty"`
	UnreadCount  int                 `json:"unreadCount"`
}

// ToModel 转换为领域模型
func (c ConversationRespond) ToModel() model.Conversation {
	conv := model.Conversation{
		ID:          c.ID,
		UnreadCount: c.UnreadCount,
	}
	for _, p := range c.Participants {
		conv.Participants = append(conv.Participants, p.ToModel())
	}
	if c.LastMessage != nil {
		conv.LastMessage = &model.MessageSummary{
			Content:   c.LastMessage.Text,
			SenderID:  c.LastMessage.Sender.ID,
			CreatedAt: c.LastMessage.CreatedAt,
		}
	}
	return conv
}

// RefRespond 帖子、快拍等被引用对象，同样兼容字符串 ID
type RefRespond struct {
	ID      string         `json:"_id"`
	Caption string         `json:"caption,omitempty"`
	Media   []MediaRespond `json:"media,omitempty"`
}

// UnmarshalJSON 兼容字符串 ID 与对象两种形式
func (r *RefRespond) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	type plain RefRespond
	return json.Unmarshal(data, (*plain)(r))
}

// NotificationRespond 远端通知
// 不同接口分别使用 isRead 和 read 表示已读
type NotificationRespond struct {
	ID        string       `json:"_id"`
	Type      string       `json:"type"`
	FromUser  *UserRespond `json:"fromUser,omitempty"`
	Post      *RefRespond  `json:"post,omitempty"`
	Story     *RefRespond  `json:"story,omitempty"`
	IsRead    *bool        `json:"isRead,omitempty"`
	Read      *bool        `json:"read,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	Message   string       `json:"message,omitempty"`
}

// ToModel 转换为领域模型
// 空引用（没有 ID 的对象）视为不存在
func (n NotificationRespond) ToModel() model.Notification {
	out := model.Notification{
		ID:        n.ID,
		Type:      model.NotificationType(n.Type),
		Read:      (n.IsRead != nil && *n.IsRead) || (n.Read != nil && *n.Read),
		CreatedAt: n.CreatedAt,
		Message:   n.Message,
	}
	if n.FromUser != nil && n.FromUser.ID != "" {
		u := n.FromUser.ToModel()
		out.FromUser = &u
	}
	if n.Post != nil && n.Post.ID != "" {
		out.Post = &model.PostRef{ID: n.Post.ID, Caption: n.Post.Caption, Media: toAttachments(n.Post.Media)}
	}
	if n.Story != nil && n.Story.ID != "" {
		out.Story = &model.StoryRef{ID: n.Story.ID}
	}
	return out
}

// ReadReceiptRespond messagesRead 事件载荷
type ReadReceiptRespond struct {
	ConversationID string   `json:"conversationId"`
	ReaderID       string   `json:"readerId,omitempty"`
	UserID         string   `json:"userId,omitempty"`
	MessageIDs     []string `json:"messageIds,omitempty"`
}

// Reader 兼容 readerId / userId
func (r ReadReceiptRespond) Reader() string {
	if r.ReaderID != "" {
		return r.ReaderID
	}
	return r.UserID
}

// PresenceRespond userOnline / userOffline 事件载荷
type PresenceRespond struct {
	UserID string `json:"userId"`
}

// UnmarshalJSON 兼容裸字符串
func (p *PresenceRespond) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &p.UserID)
	}
	type plain PresenceRespond
	return json.Unmarshal(data, (*plain)(p))
}

// OnlineUsersRespond onlineUsers 事件载荷
// 可能是 ID 数组，也可能是 {"userIds": [...]}
type OnlineUsersRespond struct {
	UserIDs []string
}

// UnmarshalJSON 兼容数组与对象两种形式
func (o *OnlineUsersRespond) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &o.UserIDs)
	}
	var wrapped struct {
		UserIDs []string `json:"userIds"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	o.UserIDs = wrapped.UserIDs
	return nil
}

// EventRespond 实时事件信封
type EventRespond struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func toAttachments(media []MediaRespond) []model.Attachment {
	if len(media) == 0 {
		return nil
	}
	out := make([]model.Attachment, 0, len(media))
	for _, m := range media {
		t := model.MediaType(m.MediaType)
		if t != model.MediaImage && t != model.MediaVideo {
			t = model.MediaFile
		}
		out = append(out, model.Attachment{Type: t, URL: m.URL, Filename: m.Filename, Size: m.Size})
	}
	return out
}
