package handler

import (
	"fmt"
	"time"

	"kama_social_client/internal/dto/respond"
	"kama_social_client/internal/model"
	"kama_social_client/internal/service"
	"kama_social_client/internal/service/conversation"
	"kama_social_client/internal/service/notification"
)

// 领域模型 → 展示结构

func userView(u model.UserRef, presence service.PresenceService) respond.UserView {
	v := respond.UserView{ID: u.ID, Username: u.DisplayName(), Avatar: u.Avatar}
	if presence != nil && u.ID != "" {
		v.Online = presence.IsOnline(u.ID)
	}
	return v
}

func conversationView(scope *service.Scope, conv model.Conversation, active string, now time.Time) respond.ConversationView {
	v := respond.ConversationView{
		ID:           conv.ID,
		Participants: make([]respond.UserView, 0, len(conv.Participants)),
		Other:        userView(conversation.SelectOtherParticipant(conv, scope.Session.UserID), scope.Presence),
		UnreadCount:  conv.UnreadCount,
		Provisional:  conv.IsProvisional(),
		Active:       conv.ID == active,
	}
	for _, p := range conv.Participants {
		v.Participants = append(v.Participants, userView(p, scope.Presence))
	}
	if lm := conv.LastMessage; lm != nil {
		v.LastMessage = &respond.LastMessageView{
			Text:      lm.Content,
			SenderID:  lm.SenderID,
			CreatedAt: lm.CreatedAt,
			Time:      conversation.FormatTime(lm.CreatedAt, now),
		}
	}
	return v
}

func messageView(scope *service.Scope, msg model.Message) respond.MessageView {
	v := respond.MessageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         userView(msg.Sender, scope.Presence),
		Text:           msg.Content,
		CreatedAt:      msg.CreatedAt,
		Edited:         msg.Edited,
		ReadBy:         make([]string, 0, len(msg.ReadBy)),
		Status:         string(msg.Status),
		Own:            msg.Sender.ID == scope.Session.UserID,
	}
	for _, m := range msg.Media {
		v.Media = append(v.Media, respond.AttachmentView{Type: string(m.Type), URL: m.URL, Filename: m.Filename, Size: m.Size})
	}
	if msg.Gif != nil {
		v.GifURL = msg.Gif.URL
	}
	readers := 0
	for _, id := range msg.ReadBy {
		v.ReadBy = append(v.ReadBy, id)
		if id != scope.Session.UserID {
			readers++
		}
	}
	if v.Own && readers > 0 {
		v.ReadByLabel = fmt.Sprintf("Read by %d", readers)
	}
	return v
}

func notificationView(n model.Notification) respond.NotificationView {
	v := respond.NotificationView{
		ID:        n.ID,
		Type:      string(n.Type),
		Text:      notification.Describe(&n),
		Icon:      notification.Icon(n.Type),
		Link:      notification.Link(&n),
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
	if n.FromUser != nil {
		u := userView(*n.FromUser, nil)
		v.FromUser = &u
	}
	return v
}

func sessionView(scope *service.Scope) respond.SessionView {
	return respond.SessionView{
		UserID:              scope.Session.UserID,
		Username:            scope.Session.Username,
		ExpiresAt:           scope.Session.ExpiresAt,
		UnreadNotifications: scope.Notifications.UnreadCount(),
		Online:              len(scope.Presence.Snapshot()),
	}
}
