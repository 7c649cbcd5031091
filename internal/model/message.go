// Package model 定义客户端本地状态使用的领域模型
// 本文件定义消息模型及其发送状态机
package model

import (
	"strings"
	"time"

	"kama_social_client/pkg/constants"
)

// MessageStatus 消息发送状态
// pending → sent → delivered → read；pending → failed
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return -1
}

// CanTransition 判断状态是否允许迁移到 to
// failed 是终态，只能由用户重发产生新的 pending 消息
func (s MessageStatus) CanTransition(to MessageStatus) bool {
	if s == StatusFailed {
		return false
	}
	if to == StatusFailed {
		return s == StatusPending
	}
	return to.rank() > s.rank()
}

// MediaType 附件类型
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaFile  MediaType = "file"
)

// Attachment 消息附件
type Attachment struct {
	Type     MediaType
	URL      string
	Filename string
	Size     int64
}

// GifRef GIF 附件引用
type GifRef struct {
	URL string
}

// Message 会话中的一条消息
// 会话内按 (CreatedAt, ID) 全序排列
type Message struct {
	ID             string
	ClientID       string // 发送方生成的临时 ID，用于匹配服务端回显
	ConversationID string
	Sender         UserRef
	Content        string
	Media          []Attachment
	Gif            *GifRef
	CreatedAt      time.Time
	Edited         bool
	ReadBy         []string
	Status         MessageStatus
}

// Less 按 (CreatedAt, ID) 升序比较
func (m *Message) Less(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// IsProvisional 是否仍持有本地临时 ID
func (m *Message) IsProvisional() bool {
	return strings.HasPrefix(m.ID, constants.TEMP_MESSAGE_PREFIX)
}

// IsReadBy 指定用户是否已读
func (m *Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// AddReader 追加已读用户，已存在时返回 false
func (m *Message) AddReader(userID string) bool {
	if userID == "" || m.IsReadBy(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}

// Summary 生成会话列表使用的最后消息摘要
func (m *Message) Summary() *MessageSummary {
	return &MessageSummary{
		Content:   m.Preview(),
		SenderID:  m.Sender.ID,
		CreatedAt: m.CreatedAt,
	}
}

// Preview 纯附件消息用附件类型代替文本
func (m *Message) Preview() string {
	if m.Content != "" {
		return m.Content
	}
	if m.Gif != nil {
		return "GIF"
	}
	if len(m.Media) > 0 {
		switch m.Media[0].Type {
		case MediaImage:
			return "Photo"
		case MediaVideo:
			return "Video"
		default:
			return "Attachment"
		}
	}
	return ""
}

// SameContent 判断两条消息的内容是否一致，用于无 clientId 的回显匹配
func (m *Message) SameContent(o *Message) bool {
	if m.Content != o.Content || len(m.Media) != len(o.Media) {
		return false
	}
	for i := range m.Media {
		if m.Media[i].URL != o.Media[i].URL {
			return false
		}
	}
	if (m.Gif == nil) != (o.Gif == nil) {
		return false
	}
	return m.Gif == nil || m.Gif.URL == o.Gif.URL
}

// Clone 深拷贝，供对外查询返回
func (m Message) Clone() Message {
	if m.Media != nil {
		m.Media = append([]Attachment(nil), m.Media...)
	}
	if m.ReadBy != nil {
		m.ReadBy = append([]string(nil), m.ReadBy...)
	}
	if m.Gif != nil {
		g := *m.Gif
		m.Gif = &g
	}
	return m
}
