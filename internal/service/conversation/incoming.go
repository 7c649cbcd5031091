// Package conversation 维护会话与消息的本地视图
// incoming.go
// 核心职责：处理实时通道推送的新消息与已读回执
package conversation

import (
	"strings"

	"kama_social_client/internal/model"
	"kama_social_client/pkg/constants"
	"kama_social_client/pkg/errorx"

	"go.uber.org/zap"
)

// ApplyIncomingMessage 写入一条推送消息
// 1. 同 ID 已存在：原位替换，不产生重复
// 2. 自己发送消息的回显：按 clientId（缺失时按内容）匹配临时消息，原位替换为正式 ID
// 3. 其余情况有序插入；会话不存在时由发送者和自己创建
// 只有新消息、非当前会话、且不是自己发的，才增加未读数
func (s *Store) ApplyIncomingMessage(msg model.Message) error {
	if msg.ID == "" || msg.ConversationID == "" {
		return errorx.Newf(errorx.CodeInvalidParam, "incoming message missing id or conversation")
	}
	if msg.Status == "" {
		msg.Status = model.StatusSent
	}

	var changes []model.ChangeEvent
	s.mu.Lock()
	s.applySeq++
	seq := s.applySeq

	t, ok := s.threads[msg.ConversationID]
	if prov, prevID := s.promoteByClientID(msg); prov != nil {
		t = prov
		changes = append(changes, model.ChangeEvent{
			Kind:           model.ChangeConversationPromote,
			ConversationID: t.conv.ID,
			PreviousID:     prevID,
		})
	} else if !ok {
		t = newThread(model.Conversation{
			ID:           msg.ConversationID,
			Participants: s.participantsFor(msg.Sender),
		})
		s.threads[t.conv.ID] = t
		zap.L().Info("conversation created by incoming message",
			zap.String("conversation", t.conv.ID), zap.String("sender", msg.Sender.ID))
	}

	previousID := ""
	isNew := false
	switch i := t.find(msg.ID); {
	case i >= 0:
		cur := t.messages[i]
		for _, r := range cur.ReadBy {
			msg.AddReader(r)
		}
		if msg.Status.CanTransition(cur.Status) {
			msg.Status = cur.Status
		}
		msg.ClientID = firstNonEmpty(msg.ClientID, cur.ClientID)
		t.replaceAt(i, msg)
	default:
		if j := s.matchEcho(t, &msg); j >= 0 {
			previousID = t.messages[j].ID
			msg.ClientID = firstNonEmpty(msg.ClientID, t.messages[j].ClientID)
			delete(t.applied, previousID)
			t.replaceAt(j, msg)
		} else {
			t.insert(msg)
			isNew = true
		}
	}
	t.applied[msg.ID] = seq
	t.refreshLast()

	if isNew && msg.Sender.ID != s.self.ID && t.conv.ID != s.active {
		t.conv.UnreadCount++
	}
	unread := t.conv.UnreadCount
	convID := t.conv.ID
	s.mu.Unlock()

	changes = append(changes,
		model.ChangeEvent{Kind: model.ChangeMessageUpserted, ConversationID: convID, MessageID: msg.ID, PreviousID: previousID},
		model.ChangeEvent{Kind: model.ChangeConversationUpdated, ConversationID: convID, Unread: unread},
	)
	s.publish(changes...)
	return nil
}

// ApplyReadReceipt 处理已读回执
// messageIDs 为空表示会话内全部消息；读者为自己时（其他设备已读）清零未读数
func (s *Store) ApplyReadReceipt(conversationID, readerID string, messageIDs []string) error {
	if readerID == "" {
		return errorx.Newf(errorx.CodeInvalidParam, "read receipt without reader")
	}
	want := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		want[id] = struct{}{}
	}

	s.mu.Lock()
	t, ok := s.threads[conversationID]
	if !ok {
		s.mu.Unlock()
		return errorx.Newf(errorx.CodeNotFound, "conversation %s not found", conversationID)
	}
	var changed []string
	for i := range t.messages {
		m := &t.messages[i]
		if len(want) > 0 {
			if _, ok := want[m.ID]; !ok {
				continue
			}
		}
		if m.Sender.ID == readerID || !m.AddReader(readerID) {
			continue
		}
		if m.Sender.ID == s.self.ID && m.Status.CanTransition(model.StatusRead) {
			m.Status = model.StatusRead
		}
		changed = append(changed, m.ID)
	}
	if readerID == s.self.ID {
		t.conv.UnreadCount = 0
	}
	unread := t.conv.UnreadCount
	s.mu.Unlock()

	evs := make([]model.ChangeEvent, 0, len(changed)+1)
	for _, id := range changed {
		evs = append(evs, model.ChangeEvent{Kind: model.ChangeMessageUpserted, ConversationID: conversationID, MessageID: id})
	}
	evs = append(evs, model.ChangeEvent{Kind: model.ChangeConversationUpdated, ConversationID: conversationID, Unread: unread})
	s.publish(evs...)
	return nil
}

// matchEcho 查找与回显对应的临时消息
// 优先 clientId；没有 clientId 时取自己发送的、内容相同的最早一条 pending 临时消息
func (s *Store) matchEcho(t *thread, msg *model.Message) int {
	if i := t.findClient(msg.ClientID); i >= 0 && t.messages[i].IsProvisional() {
		return i
	}
	if msg.ClientID != "" || msg.Sender.ID != s.self.ID {
		return -1
	}
	for i := range t.messages {
		m := &t.messages[i]
		if m.IsProvisional() && m.Status == model.StatusPending && m.SameContent(msg) {
			return i
		}
	}
	return -1
}

// promoteByClientID 回显命中临时会话中的消息时，把临时会话改名为服务端分配的 ID
// 调用方持有锁
func (s *Store) promoteByClientID(msg model.Message) (*thread, string) {
	if msg.ClientID == "" {
		return nil, ""
	}
	for id, t := range s.threads {
		if !t.conv.IsProvisional() || t.findClient(msg.ClientID) < 0 {
			continue
		}
		return s.promote(t, id, msg.ConversationID), id
	}
	return nil, ""
}

// promote 临时会话改名为正式 ID，返回改名后的会话；调用方持有锁
// 正式会话已存在时（例如先收到会话列表）把临时会话的消息并入
func (s *Store) promote(t *thread, from, to string) *thread {
	delete(s.threads, from)
	if existing, ok := s.threads[to]; ok {
		for _, m := range t.messages {
			m.ConversationID = to
			if existing.find(m.ID) < 0 {
				existing.insert(m)
				existing.applied[m.ID] = t.applied[m.ID]
			}
		}
		existing.refreshLast()
		t = existing
	} else {
		t.conv.ID = to
		for i := range t.messages {
			t.messages[i].ConversationID = to
		}
		s.threads[to] = t
	}
	if s.active == from {
		s.active = to
	}
	zap.L().Info("conversation promoted", zap.String("from", from), zap.String("to", to))
	return t
}

// participantsFor 推送消息所在会话未知时，由发送者与自己组成参与者
func (s *Store) participantsFor(sender model.UserRef) []model.UserRef {
	if sender.ID == "" || sender.ID == s.self.ID {
		return []model.UserRef{s.self}
	}
	return []model.UserRef{sender, s.self}
}

func isProvisionalID(id string) bool {
	return strings.HasPrefix(id, constants.TEMP_CONVERSATION_PREFIX)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
