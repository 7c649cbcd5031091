// Package model 定义客户端本地状态使用的领域模型
// 本文件定义通知模型
package model

import "time"

// NotificationType 通知类型
type NotificationType string

const (
	NotificationLike          NotificationType = "like"
	NotificationComment       NotificationType = "comment"
	NotificationFollow        NotificationType = "follow"
	NotificationShare         NotificationType = "share"
	NotificationMention       NotificationType = "mention"
	NotificationMessage       NotificationType = "message"
	NotificationPost          NotificationType = "post"
	NotificationStory         NotificationType = "story"
	NotificationFriendRequest NotificationType = "friend_request"
	NotificationEvent         NotificationType = "event"
)

// NotificationTypes 全部已知通知类型
var NotificationTypes = []NotificationType{
	NotificationLike, NotificationComment, NotificationFollow, NotificationShare, NotificationMention,
	NotificationMessage, NotificationPost, NotificationStory, NotificationFriendRequest, NotificationEvent,
}

// Valid 是否为已知类型
func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// PostRef 通知关联的帖子
type PostRef struct {
	ID      string
	Caption string
	Media   []Attachment
}

// StoryRef 通知关联的快拍
type StoryRef struct {
	ID string
}

// Notification 与会话用户相关的一条通知
// 展示顺序为 CreatedAt 降序
type Notification struct {
	ID        string
	Type      NotificationType
	FromUser  *UserRef
	Post      *PostRef
	Story     *StoryRef
	Read      bool
	CreatedAt time.Time
	Message   string // 服务端给出的文案，可能为空
}

// Before 展示顺序比较：新的在前，时间相同按 ID 降序
func (n *Notification) Before(o *Notification) bool {
	if !n.CreatedAt.Equal(o.CreatedAt) {
		return n.CreatedAt.After(o.CreatedAt)
	}
	return n.ID > o.ID
}

// Clone 深拷贝
func (n Notification) Clone() Notification {
	if n.FromUser != nil {
		u := *n.FromUser
		n.FromUser = &u
	}
	if n.Post != nil {
		p := *n.Post
		p.Media = append([]Attachment(nil), p.Media...)
		n.Post = &p
	}
	if n.Story != nil {
		s := *n.Story
		n.Story = &s
	}
	return n
}
