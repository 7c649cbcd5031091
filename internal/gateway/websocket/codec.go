// Package websocket 实现与远端社交服务之间的实时事件通道
// codec.go
// 核心职责：把线上 {"event": ..., "data": ...} 信封解码为封闭的事件变体
package websocket

import (
	"encoding/json"
	"fmt"

	"kama_social_client/internal/dto/respond"
	"kama_social_client/internal/model"
)

// DecodeEvent 解码一条入站事件
// 未知事件名返回 UnknownEvent 而不是错误，调用方按空操作处理
func DecodeEvent(data []byte) (model.Event, error) {
	var env respond.EventRespond
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch model.EventType(env.Event) {
	case model.EventOnlineUsers:
		var p respond.OnlineUsersRespond
		if err := unmarshalData(env, &p); err != nil {
			return nil, err
		}
		return model.OnlineUsersEvent{UserIDs: p.UserIDs}, nil

	case model.EventUserOnline, model.EventUserOffline:
		var p respond.PresenceRespond
		if err := unmarshalData(env, &p); err != nil {
			return nil, err
		}
		if model.EventType(env.Event) == model.EventUserOnline {
			return model.UserOnlineEvent{UserID: p.UserID}, nil
		}
		return model.UserOfflineEvent{UserID: p.UserID}, nil

	case model.EventNewMessage:
		var p respond.MessageRespond
		if err := unmarshalData(env, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("decode %s: message without _id", env.Event)
		}
		return model.NewMessageEvent{Message: p.ToModel()}, nil

	case model.EventNewNotification:
		var p respond.NotificationRespond
		if err := unmarshalData(env, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("decode %s: notification without _id", env.Event)
		}
		return model.NewNotificationEvent{Notification: p.ToModel()}, nil

	case model.EventMessagesRead:
		var p respond.ReadReceiptRespond
		if err := unmarshalData(env, &p); err != nil {
			return nil, err
		}
		return model.MessagesReadEvent{
			ConversationID: p.ConversationID,
			ReaderID:       p.Reader(),
			MessageIDs:     p.MessageIDs,
		}, nil
	}

	return model.UnknownEvent{Name: env.Event, Raw: env.Data}, nil
}

func unmarshalData(env respond.EventRespond, out any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("decode %s: missing data", env.Event)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s: %w", env.Event, err)
	}
	return nil
}
