// Package conversation 维护会话与消息的本地视图
// store.go
// 核心职责：
// 1. 保存会话列表与每个会话按 (CreatedAt, ID) 有序的消息序列
// 2. 合并 REST 拉取的历史与实时通道推送的消息，按 ID 去重
// 3. 维护每个会话的未读数与当前查看的会话
// 互斥锁只保护内存状态，REST 与实时通道调用都在锁外进行
package conversation

import (
	"context"
	"errors"
	"sort"
	"sync"

	"kama_social_client/internal/dto/request"
	"kama_social_client/internal/model"
	"kama_social_client/internal/service/broker"
	"kama_social_client/pkg/errorx"

	"go.uber.org/zap"
)

// API 会话相关的远端接口
type API interface {
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	SendMessage(ctx context.Context, req request.SendMessageRequest) (model.Message, error)
	MarkConversationRead(ctx context.Context, conversationID string) error
}

// Sender 实时通道的发送能力
type Sender interface {
	Send(eventType model.EventType, payload any) error
}

// ErrSuperseded 历史请求已被更新的请求或会话切换取代，结果被丢弃
var ErrSuperseded = errors.New("history request superseded")

// thread 单个会话的状态
type thread struct {
	conv     model.Conversation
	messages []model.Message  // 按 (CreatedAt, ID) 升序
	applied  map[string]int64 // 消息 ID → 写入序号，用于判断历史请求发出后到达的消息

	loadGen    uint64 // 历史请求代数，只增不减
	loadCancel context.CancelFunc
}

// Store 会话存储
type Store struct {
	api       API
	sender    Sender
	publisher broker.Publisher
	self      model.UserRef

	mu       sync.Mutex
	threads  map[string]*thread
	active   string
	applySeq int64
}

// NewStore 创建会话存储
// publisher 可为 nil，此时不广播变更
func NewStore(api API, sender Sender, publisher broker.Publisher, self model.UserRef) *Store {
	return &Store{
		api:       api,
		sender:    sender,
		publisher: publisher,
		self:      self,
		threads:   make(map[string]*thread),
	}
}

// Self 会话用户
func (s *Store) Self() model.UserRef {
	return s.self
}

// ==================== 查询 ====================

// Conversations 会话列表，按最后活动时间降序
func (s *Store) Conversations() []model.Conversation {
	s.mu.Lock()
	out := make([]model.Conversation, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t.conv.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].LastActivity(), out[j].LastActivity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Conversation 查询单个会话
func (s *Store) Conversation(id string) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return model.Conversation{}, false
	}
	return t.conv.Clone(), true
}

// Messages 会话内的消息，按 (CreatedAt, ID) 升序
func (s *Store) Messages(id string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, errorx.Newf(errorx.CodeNotFound, "conversation %s not found", id)
	}
	out := make([]model.Message, len(t.messages))
	for i := range t.messages {
		out[i] = t.messages[i].Clone()
	}
	return out, nil
}

// Active 当前查看的会话，没有时为空
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ==================== 拉取 ====================

// LoadConversations 拉取会话列表并按 ID 合并
// 本地临时会话与仅由推送创建的会话保留
func (s *Store) LoadConversations(ctx context.Context) error {
	convs, err := s.api.ListConversations(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, c := range convs {
		if c.ID == "" || len(c.Participants) == 0 {
			continue
		}
		t, ok := s.threads[c.ID]
		if !ok {
			s.threads[c.ID] = newThread(c)
			continue
		}
		if t.conv.LastMessage == nil || (c.LastMessage != nil && !c.LastMessage.CreatedAt.Before(t.conv.LastMessage.CreatedAt)) {
			t.conv.LastMessage = c.LastMessage
		}
		t.conv.UnreadCount = c.UnreadCount
		if c.ID == s.active {
			t.conv.UnreadCount = 0
		}
	}
	n := len(s.threads)
	s.mu.Unlock()

	zap.L().Info("conversations loaded", zap.Int("remote", len(convs)), zap.Int("local", n))
	s.publish(model.ChangeEvent{Kind: model.ChangeConversationsLoaded})
	return nil
}

// LoadHistory 拉取会话历史并替换本地消息序列
// 每次调用递增该会话的请求代数并取消上一次未完成的请求，
// 返回时代数已变化说明结果过期，直接丢弃并返回 ErrSuperseded。
// 合并时保留本地仍未确认的临时消息，以及请求发出之后才写入的消息
func (s *Store) LoadHistory(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	t, ok := s.threads[conversationID]
	if !ok {
		s.mu.Unlock()
		return errorx.Newf(errorx.CodeNotFound, "conversation %s not found", conversationID)
	}
	if t.conv.IsProvisional() {
		s.mu.Unlock()
		return nil
	}
	t.loadGen++
	gen := t.loadGen
	if t.loadCancel != nil {
		t.loadCancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	t.loadCancel = cancel
	startSeq := s.applySeq
	s.mu.Unlock()
	defer cancel()

	msgs, err := s.api.ListMessages(reqCtx, conversationID)

	s.mu.Lock()
	t, ok = s.threads[conversationID]
	if !ok || t.loadGen != gen {
		s.mu.Unlock()
		zap.L().Debug("stale history discarded", zap.String("conversation", conversationID))
		return ErrSuperseded
	}
	t.loadCancel = nil
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.applySeq++
	t.mergeHistory(msgs, s.self.ID, startSeq, s.applySeq)
	count := len(t.messages)
	s.mu.Unlock()

	zap.L().Debug("history loaded", zap.String("conversation", conversationID), zap.Int("messages", count))
	s.publish(model.ChangeEvent{Kind: model.ChangeHistoryLoaded, ConversationID: conversationID})
	return nil
}

// ==================== 当前会话 ====================

// SetActive 切换当前查看的会话，id 为空表示离开
// 取消离开会话尚未返回的历史请求，不影响任何发送中的消息
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	prev := s.active
	if prev == id {
		s.mu.Unlock()
		return nil
	}
	if id != "" {
		if _, ok := s.threads[id]; !ok {
			s.mu.Unlock()
			return errorx.Newf(errorx.CodeNotFound, "conversation %s not found", id)
		}
	}
	if t, ok := s.threads[prev]; ok {
		t.loadGen++
		if t.loadCancel != nil {
			t.loadCancel()
			t.loadCancel = nil
		}
	}
	s.active = id
	s.mu.Unlock()

	if prev != "" && !isProvisionalID(prev) {
		s.sendRoom(model.EventLeaveConversation, prev)
	}
	if id != "" && !isProvisionalID(id) {
		s.sendRoom(model.EventJoinConversation, id)
	}
	return nil
}

// RejoinActive 重连后重新加入当前会话的房间
func (s *Store) RejoinActive() {
	active := s.Active()
	if active != "" && !isProvisionalID(active) {
		s.sendRoom(model.EventJoinConversation, active)
	}
}

// sendRoom 房间事件失败只记录日志，重连后由 RejoinActive 补发
func (s *Store) sendRoom(ev model.EventType, id string) {
	if s.sender == nil {
		return
	}
	if err := s.sender.Send(ev, request.ConversationRoomRequest{ConversationID: id}); err != nil {
		zap.L().Debug("room event not sent", zap.String("event", string(ev)), zap.String("conversation", id), zap.Error(err))
	}
}

// ==================== 内部工具 ====================

func newThread(c model.Conversation) *thread {
	return &thread{conv: c, applied: make(map[string]int64)}
}

// publish 广播变更，只在锁外调用
func (s *Store) publish(evs ...model.ChangeEvent) {
	if s.publisher == nil {
		return
	}
	for _, ev := range evs {
		if err := s.publisher.Publish(context.Background(), ev); err != nil {
			zap.L().Warn("publish change failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	}
}

// mergeHistory 用服务端历史替换本地序列
// 服务端历史不带 clientId 时，自己发送的、本地未见过的消息按内容与 pending 临时消息配对，各配对一次
func (t *thread) mergeHistory(remote []model.Message, selfID string, startSeq, seq int64) {
	byID := make(map[string]struct{}, len(remote))
	byClient := make(map[string]struct{})
	merged := make([]model.Message, 0, len(remote)+4)
	var unmatched []int // merged 中可与临时消息配对的下标
	for _, m := range remote {
		if m.ID == "" {
			continue
		}
		if _, dup := byID[m.ID]; dup {
			continue
		}
		m.ConversationID = t.conv.ID
		local := t.find(m.ID)
		if local >= 0 {
			for _, r := range t.messages[local].ReadBy {
				m.AddReader(r)
			}
			if m.Status.CanTransition(t.messages[local].Status) {
				m.Status = t.messages[local].Status
			}
			m.ClientID = firstNonEmpty(m.ClientID, t.messages[local].ClientID)
		}
		byID[m.ID] = struct{}{}
		if m.ClientID != "" {
			byClient[m.ClientID] = struct{}{}
		} else if local < 0 && m.Sender.ID == selfID {
			unmatched = append(unmatched, len(merged))
		}
		merged = append(merged, m)
	}
	sort.SliceStable(unmatched, func(i, j int) bool { return merged[unmatched[i]].Less(&merged[unmatched[j]]) })

	// claim 取最早一条内容相同的未配对消息，并记下临时消息的 clientId
	claim := func(p *model.Message) bool {
		for k, idx := range unmatched {
			if !merged[idx].SameContent(p) {
				continue
			}
			merged[idx].ClientID = p.ClientID
			unmatched = append(unmatched[:k], unmatched[k+1:]...)
			return true
		}
		return false
	}

	applied := make(map[string]int64, len(merged))
	for _, m := range t.messages {
		if _, ok := byID[m.ID]; ok {
			continue
		}
		keep := false
		switch {
		case m.IsProvisional():
			_, echoed := byClient[m.ClientID]
			if !echoed && m.Status == model.StatusPending {
				echoed = claim(&m)
			}
			keep = !echoed
		case t.applied[m.ID] > startSeq:
			keep = true
		}
		if keep {
			merged = append(merged, m)
			applied[m.ID] = t.applied[m.ID]
			byID[m.ID] = struct{}{}
		}
	}
	for _, m := range merged {
		if _, ok := applied[m.ID]; !ok {
			applied[m.ID] = seq
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Less(&merged[j]) })
	t.messages = merged
	t.applied = applied
	t.refreshLast()
}

// find 按 ID 查找，找不到返回 -1
func (t *thread) find(id string) int {
	for i := range t.messages {
		if t.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// findClient 按 ClientID 查找，找不到返回 -1
func (t *thread) findClient(clientID string) int {
	if clientID == "" {
		return -1
	}
	for i := range t.messages {
		if t.messages[i].ClientID == clientID {
			return i
		}
	}
	return -1
}

// insert 有序插入并返回位置
func (t *thread) insert(m model.Message) int {
	i := sort.Search(len(t.messages), func(i int) bool { return m.Less(&t.messages[i]) })
	t.messages = append(t.messages, model.Message{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = m
	return i
}

// replaceAt 原位替换；新时间戳破坏顺序时才移动到正确位置
func (t *thread) replaceAt(i int, m model.Message) {
	t.messages[i] = m
	if (i > 0 && m.Less(&t.messages[i-1])) || (i+1 < len(t.messages) && t.messages[i+1].Less(&m)) {
		t.messages = append(t.messages[:i], t.messages[i+1:]...)
		t.insert(m)
	}
}

// refreshLast 用最后一条消息更新会话摘要
func (t *thread) refreshLast() {
	if len(t.messages) == 0 {
		return
	}
	last := &t.messages[len(t.messages)-1]
	if t.conv.LastMessage == nil || !last.CreatedAt.Before(t.conv.LastMessage.CreatedAt) {
		t.conv.LastMessage = last.Summary()
	}
}
