// Package conversation 维护会话与消息的本地视图
// outgoing.go
// 核心职责：用户发起的写操作
// 1. 发送消息：临时消息 → 实时通道发送（不可用时走 REST）→ 确认后原位替换为正式 ID
// 2. 失败消息保留为 failed，重发产生新的临时消息
// 3. 发起新会话、标记会话已读（乐观更新，失败回滚）
package conversation

import (
	"context"

	"kama_social_client/internal/dto/request"
	"kama_social_client/internal/infrastructure/metrics"
	"kama_social_client/internal/model"
	"kama_social_client/pkg/constants"
	"kama_social_client/pkg/errorx"
	"kama_social_client/pkg/util/snowflake"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SendMessage 在会话中发送一条消息
// 实时通道写入成功时返回 pending 消息，等待回显确认；
// REST 确认时返回已替换为正式 ID 的消息；
// 失败时消息标记为 failed 并返回 CodeNotConnected 或 CodeRejectedByServer
func (s *Store) SendMessage(ctx context.Context, conversationID, content string, media []model.Attachment, gif *model.GifRef) (model.Message, error) {
	if content == "" && len(media) == 0 && gif == nil {
		return model.Message{}, errorx.Newf(errorx.CodeInvalidParam, "empty message")
	}

	s.mu.Lock()
	t, ok := s.threads[conversationID]
	if !ok {
		s.mu.Unlock()
		return model.Message{}, errorx.Newf(errorx.CodeNotFound, "conversation %s not found", conversationID)
	}
	msg := s.appendProvisional(t, content, media, gif)
	participants := s.pendingParticipants(t)
	s.mu.Unlock()

	s.publish(
		model.ChangeEvent{Kind: model.ChangeMessageUpserted, ConversationID: conversationID, MessageID: msg.ID},
		model.ChangeEvent{Kind: model.ChangeConversationUpdated, ConversationID: conversationID},
	)
	return s.deliver(ctx, msg, participants)
}

// ResendMessage 重发一条失败的消息
// 失败消息保留不动，以相同内容生成新的临时消息
func (s *Store) ResendMessage(ctx context.Context, conversationID, failedID string) (model.Message, error) {
	s.mu.Lock()
	t, ok := s.threads[conversationID]
	if !ok {
		s.mu.Unlock()
		return model.Message{}, errorx.Newf(errorx.CodeNotFound, "conversation %s not found", conversationID)
	}
	i := t.find(failedID)
	if i < 0 {
		s.mu.Unlock()
		return model.Message{}, errorx.Newf(errorx.CodeNotFound, "message %s not found", failedID)
	}
	failed := t.messages[i].Clone()
	if failed.Status != model.StatusFailed {
		s.mu.Unlock()
		return model.Message{}, errorx.Newf(errorx.CodeInvalidParam, "message %s is %s, only failed messages can be resent", failedID, failed.Status)
	}
	msg := s.appendProvisional(t, failed.Content, failed.Media, failed.Gif)
	participants := s.pendingParticipants(t)
	s.mu.Unlock()

	zap.L().Info("resending message", zap.String("conversation", conversationID), zap.String("failed", failedID), zap.String("tmp", msg.ID))
	s.publish(model.ChangeEvent{Kind: model.ChangeMessageUpserted, ConversationID: conversationID, MessageID: msg.ID})
	return s.deliver(ctx, msg, participants)
}

// StartConversation 与指定用户发起会话
// 参与者集合相同的会话已存在时直接返回，否则创建临时会话，首条消息确认后改为正式 ID
func (s *Store) StartConversation(participants []model.UserRef) (model.Conversation, error) {
	seen := make(map[string]struct{}, len(participants)+1)
	users := make([]model.UserRef, 0, len(participants)+1)
	for _, p := range participants {
		if p.ID == "" {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		users = append(users, p)
	}
	if len(users) == 0 {
		return model.Conversation{}, errorx.Newf(errorx.CodeInvalidParam, "conversation needs at least one participant")
	}
	if _, ok := seen[s.self.ID]; !ok {
		users = append(users, s.self)
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}

	s.mu.Lock()
	for _, t := range s.threads {
		if t.conv.SameParticipants(ids) {
			conv := t.conv.Clone()
			s.mu.Unlock()
			return conv, nil
		}
	}
	t := newThread(model.Conversation{
		ID:           constants.TEMP_CONVERSATION_PREFIX + uuid.NewString(),
		Participants: users,
	})
	s.threads[t.conv.ID] = t
	conv := t.conv.Clone()
	s.mu.Unlock()

	zap.L().Info("provisional conversation created", zap.String("conversation", conv.ID), zap.Strings("participants", ids))
	s.publish(model.ChangeEvent{Kind: model.ChangeConversationUpdated, ConversationID: conv.ID})
	return conv, nil
}

// MarkConversationRead 标记会话已读
// 先在本地清零，REST 失败时把清零前的未读数加回去；可重复调用
func (s *Store) MarkConversationRead(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	t, ok := s.threads[conversationID]
	if !ok {
		s.mu.Unlock()
		return errorx.Newf(errorx.CodeNotFound, "conversation %s not found", conversationID)
	}
	prev := t.conv.UnreadCount
	t.conv.UnreadCount = 0
	provisional := t.conv.IsProvisional()
	s.mu.Unlock()

	if prev > 0 {
		s.publish(model.ChangeEvent{Kind: model.ChangeConversationUpdated, ConversationID: conversationID})
	}
	if provisional {
		return nil
	}

	err := s.api.MarkConversationRead(ctx, conversationID)
	if err == nil {
		return nil
	}

	s.mu.Lock()
	unread := 0
	if t, ok := s.threads[conversationID]; ok {
		t.conv.UnreadCount += prev
		unread = t.conv.UnreadCount
	}
	s.mu.Unlock()

	metrics.Rollbacks.WithLabelValues("conversation_read").Inc()
	zap.L().Warn("mark conversation read failed, rolled back",
		zap.String("conversation", conversationID), zap.Int("unread", unread), zap.Error(err))
	s.publish(model.ChangeEvent{Kind: model.ChangeConversationUpdated, ConversationID: conversationID, Unread: unread})
	return err
}

// ==================== 发送流程 ====================

// appendProvisional 生成临时消息并有序插入，调用方持有锁
func (s *Store) appendProvisional(t *thread, content string, media []model.Attachment, gif *model.GifRef) model.Message {
	id := constants.TEMP_MESSAGE_PREFIX + snowflake.GenerateIDString()
	msg := model.Message{
		ID:             id,
		ClientID:       id,
		ConversationID: t.conv.ID,
		Sender:         s.self,
		Content:        content,
		Media:          append([]model.Attachment(nil), media...),
		CreatedAt:      nowFunc(),
		Status:         model.StatusPending,
	}
	if len(msg.Media) == 0 {
		msg.Media = nil
	}
	if gif != nil {
		g := *gif
		msg.Gif = &g
	}
	s.applySeq++
	t.insert(msg)
	t.applied[msg.ID] = s.applySeq
	t.refreshLast()
	return msg
}

// pendingParticipants 临时会话没有服务端 ID，发送时改为携带对端参与者
func (s *Store) pendingParticipants(t *thread) []string {
	if !t.conv.IsProvisional() {
		return nil
	}
	out := make([]string, 0, len(t.conv.Participants))
	for _, p := range t.conv.Participants {
		if p.ID != s.self.ID {
			out = append(out, p.ID)
		}
	}
	if len(out) == 0 {
		out = append(out, s.self.ID)
	}
	return out
}

// deliver 优先实时通道，不可用时回退 REST
func (s *Store) deliver(ctx context.Context, msg model.Message, participants []string) (model.Message, error) {
	req := request.NewSendMessageRequest(&msg, participants)

	var err error = errorx.ErrNotConnected
	if s.sender != nil {
		err = s.sender.Send(model.EventSendMessage, req)
	}
	if err == nil {
		return msg, nil
	}
	zap.L().Debug("transport send unavailable, falling back to rest", zap.String("tmp", msg.ID), zap.Error(err))

	acked, err := s.api.SendMessage(ctx, req)
	if err != nil {
		kind, label := errorx.CodeRejectedByServer, "rejected"
		if errorx.HasCode(err, errorx.CodeNetworkError) {
			kind, label = errorx.CodeNotConnected, "not_connected"
		}
		if errorx.IsFatal(err) {
			label = "unauthorized"
		}
		failed := s.markFailed(msg.ClientID)
		metrics.SendFailures.WithLabelValues(label).Inc()
		zap.L().Warn("send message failed", zap.String("tmp", msg.ID), zap.Error(err))
		if errorx.IsFatal(err) {
			return failed, err
		}
		return failed, errorx.Wrap(err, kind, "send message")
	}
	return s.acknowledge(msg.ClientID, acked), nil
}

// acknowledge REST 确认后把临时消息原位替换为正式消息
// 回显可能先于确认到达，此时只补齐状态
func (s *Store) acknowledge(clientID string, acked model.Message) model.Message {
	var changes []model.ChangeEvent
	s.mu.Lock()
	t, i := s.locateClient(clientID)
	if t == nil {
		s.mu.Unlock()
		return acked
	}
	if acked.ConversationID != "" && acked.ConversationID != t.conv.ID && t.conv.IsProvisional() {
		from := t.conv.ID
		t = s.promote(t, from, acked.ConversationID)
		i = t.findClient(clientID)
		changes = append(changes, model.ChangeEvent{Kind: model.ChangeConversationPromote, ConversationID: t.conv.ID, PreviousID: from})
	}
	acked.ConversationID = t.conv.ID
	acked.ClientID = clientID
	if acked.Status == "" {
		acked.Status = model.StatusSent
	}

	previousID := ""
	if j := t.find(acked.ID); j >= 0 {
		cur := &t.messages[j]
		if cur.Status.CanTransition(model.StatusSent) {
			cur.Status = model.StatusSent
		}
		if i >= 0 && i != j && t.messages[i].IsProvisional() {
			previousID = t.messages[i].ID
			delete(t.applied, previousID)
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
		}
		acked = t.messages[t.find(acked.ID)].Clone()
	} else if i >= 0 {
		previousID = t.messages[i].ID
		for _, r := range t.messages[i].ReadBy {
			acked.AddReader(r)
		}
		s.applySeq++
		delete(t.applied, previousID)
		t.applied[acked.ID] = s.applySeq
		t.replaceAt(i, acked)
	}
	t.refreshLast()
	convID := t.conv.ID
	s.mu.Unlock()

	changes = append(changes, model.ChangeEvent{Kind: model.ChangeMessageUpserted, ConversationID: convID, MessageID: acked.ID, PreviousID: previousID})
	s.publish(changes...)
	return acked
}

// markFailed 把仍未确认的临时消息标记为 failed 并返回其副本
func (s *Store) markFailed(clientID string) model.Message {
	s.mu.Lock()
	t, i := s.locateClient(clientID)
	if t == nil || i < 0 {
		s.mu.Unlock()
		return model.Message{ID: clientID, ClientID: clientID, Status: model.StatusFailed}
	}
	m := &t.messages[i]
	if m.IsProvisional() && m.Status.CanTransition(model.StatusFailed) {
		m.Status = model.StatusFailed
	}
	out := m.Clone()
	s.mu.Unlock()

	s.publish(model.ChangeEvent{Kind: model.ChangeMessageFailed, ConversationID: out.ConversationID, MessageID: out.ID})
	return out
}

// locateClient 跨会话按 ClientID 查找消息，会话可能已被改名；调用方持有锁
func (s *Store) locateClient(clientID string) (*thread, int) {
	for _, t := range s.threads {
		if i := t.findClient(clientID); i >= 0 {
			return t, i
		}
	}
	return nil, -1
}
