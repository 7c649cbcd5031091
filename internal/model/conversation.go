// Package model 定义客户端本地状态使用的领域模型
// 本文件定义会话模型
package model

import (
	"strings"
	"time"

	"kama_social_client/pkg/constants"
)

// MessageSummary 会话列表展示的最后一条消息
type MessageSummary struct {
	Content   string
	SenderID  string
	CreatedAt time.Time
}

// Conversation 一对一或群聊会话
// 参与者非空，创建后不再变化
type Conversation struct {
	ID           string
	Participants []UserRef
	LastMessage  *MessageSummary
	UnreadCount  int
}

// IsProvisional 是否仍为本地临时会话
func (c *Conversation) IsProvisional() bool {
	return strings.HasPrefix(c.ID, constants.TEMP_CONVERSATION_PREFIX)
}

// HasParticipant 判断用户是否为会话参与者
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// SameParticipants 参与者集合相同（忽略顺序）
func (c *Conversation) SameParticipants(ids []string) bool {
	if len(c.Participants) != len(uniq(ids)) {
		return false
	}
	for _, id := range ids {
		if !c.HasParticipant(id) {
			return false
		}
	}
	return true
}

// ParticipantIDs 参与者 ID 列表
func (c *Conversation) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}

// LastActivity 最后活动时间，用于会话列表排序
func (c *Conversation) LastActivity() time.Time {
	if c.LastMessage == nil {
		return time.Time{}
	}
	return c.LastMessage.CreatedAt
}

// Clone 深拷贝
func (c Conversation) Clone() Conversation {
	c.Participants = append([]UserRef(nil), c.Participants...)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		c.LastMessage = &lm
	}
	return c
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
