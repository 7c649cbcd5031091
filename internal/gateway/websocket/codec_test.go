package websocket

import (
	"testing"

	"kama_social_client/internal/model"
)

func TestDecodeEvent(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		check func(t *testing.T, ev model.Event)
	}{
		{
			name: "online users array",
			raw:  `{"event":"onlineUsers","data":["u1","u2"]}`,
			check: func(t *testing.T, ev model.Event) {
				e := ev.(model.OnlineUsersEvent)
				if len(e.UserIDs) != 2 || e.UserIDs[1] != "u2" {
					t.Fatalf("ids = %v", e.UserIDs)
				}
			},
		},
		{
			name: "user offline",
			raw:  `{"event":"userOffline","data":{"userId":"u3"}}`,
			check: func(t *testing.T, ev model.Event) {
				if e := ev.(model.UserOfflineEvent); e.UserID != "u3" {
					t.Fatalf("user = %s", e.UserID)
				}
			},
		},
		{
			name: "new message",
			raw: `{"event":"newMessage","data":{"_id":"m1","clientId":"tmp_9","conversationId":"c1",
				"text":"hello","sender":{"_id":"u2","username":"john"},"createdAt":"2024-05-01T10:00:00Z"}}`,
			check: func(t *testing.T, ev model.Event) {
				m := ev.(model.NewMessageEvent).Message
				if m.ID != "m1" || m.ClientID != "tmp_9" || m.ConversationID != "c1" || m.Sender.Username != "john" {
					t.Fatalf("msg = %+v", m)
				}
			},
		},
		{
			name: "new notification",
			raw:  `{"event":"newNotification","data":{"_id":"n1","type":"comment","fromUser":{"_id":"f1","username":"amy"},"post":{"_id":"p1"}}}`,
			check: func(t *testing.T, ev model.Event) {
				n := ev.(model.NewNotificationEvent).Notification
				if n.ID != "n1" || n.Type != model.NotificationComment || n.Read || n.Post == nil {
					t.Fatalf("notification = %+v", n)
				}
			},
		},
		{
			name: "messages read",
			raw:  `{"event":"messagesRead","data":{"conversationId":"c1","readerId":"u2","messageIds":["m1"]}}`,
			check: func(t *testing.T, ev model.Event) {
				e := ev.(model.MessagesReadEvent)
				if e.ConversationID != "c1" || e.ReaderID != "u2" || len(e.MessageIDs) != 1 {
					t.Fatalf("receipt = %+v", e)
				}
			},
		},
		{
			name: "unknown",
			raw:  `{"event":"typing","data":{}}`,
			check: func(t *testing.T, ev model.Event) {
				if e := ev.(model.UnknownEvent); e.Name != "typing" {
					t.Fatalf("name = %s", e.Name)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tc.raw))
			if err != nil {
				t.Fatalf("DecodeEvent: %v", err)
			}
			tc.check(t, ev)
		})
	}
}

func TestDecodeEventRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`{`,
		`{"event":"newMessage"}`,
		`{"event":"newMessage","data":{"text":"no id"}}`,
		`{"event":"newNotification","data":{"type":"like"}}`,
	} {
		if _, err := DecodeEvent([]byte(raw)); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}
}
