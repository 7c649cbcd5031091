// Package request 定义请求结构
// 本文件定义本地视图 API 的请求参数
package request

import "kama_social_client/internal/model"

// AttachmentRequest 本地发送消息时附带的附件
type AttachmentRequest struct {
	Type     string `json:"type" binding:"required,oneof=image video file"`
	URL      string `json:"url" binding:"required,url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size" binding:"gte=0"`
}

// PostMessageRequest POST /conversations/:id/messages
type PostMessageRequest struct {
	Text   string              `json:"text" binding:"max=5000"`
	Media  []AttachmentRequest `json:"media" binding:"omitempty,dive"`
	GifURL string              `json:"gifUrl" binding:"omitempty,url"`
}

// Empty 文本、附件、GIF 均为空
func (r *PostMessageRequest) Empty() bool {
	return r.Text == "" && len(r.Media) == 0 && r.GifURL == ""
}

// Attachments 转换为领域模型附件
func (r *PostMessageRequest) Attachments() []model.Attachment {
	if len(r.Media) == 0 {
		return nil
	}
	out := make([]model.Attachment, 0, len(r.Media))
	for _, m := range r.Media {
		out = append(out, model.Attachment{
			Type:     model.MediaType(m.Type),
			URL:      m.URL,
			Filename: m.Filename,
			Size:     m.Size,
		})
	}
	return out
}

// ParticipantRequest 新会话的参与者
type ParticipantRequest struct {
	ID       string `json:"id" binding:"required"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// StartConversationRequest POST /conversations
type StartConversationRequest struct {
	Participants []ParticipantRequest `json:"participants" binding:"required,min=1,dive"`
}

// NotificationListRequest GET /notifications
type NotificationListRequest struct {
	Filter string `form:"filter"`
}
