package conversation

import (
	"time"

	"kama_social_client/internal/model"
	"kama_social_client/pkg/constants"
)

var nowFunc = time.Now

// SelectOtherParticipant 会话列表与聊天窗口展示的对端
// 依次取：第一个不是自己的参与者 → 第一个参与者 → 占位用户
func SelectOtherParticipant(conv model.Conversation, selfID string) model.UserRef {
	for _, p := range conv.Participants {
		if p.ID != selfID {
			return p
		}
	}
	if len(conv.Participants) > 0 {
		return conv.Participants[0]
	}
	return model.UserRef{Username: constants.UNKNOWN_USER_NAME}
}

// FormatTime 会话列表时间：24 小时内显示时分，否则显示日期
func FormatTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	if now.Sub(t) < 24*time.Hour {
		return t.Format("15:04")
	}
	return t.Format("2006-01-02")
}
