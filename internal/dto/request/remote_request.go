// Package request 定义请求结构
// 本文件定义发往远端社交服务的请求体与实时事件载荷
package request

import "kama_social_client/internal/model"

// EventRequest 出站实时事件信封
type EventRequest struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ConversationRoomRequest joinConversation / leaveConversation 载荷
type ConversationRoomRequest struct {
	ConversationID string `json:"conversationId"`
}

// MediaRequest 附件
type MediaRequest struct {
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
	Filename  string `json:"filename,omitempty"`
	Size      int64  `json:"size,omitempty"`
}

// GifRequest GIF 附件
type GifRequest struct {
	URL string `json:"url"`
}

// SendMessageRequest sendMessage 事件与 POST /messages/send 共用的载荷
// 会话尚未在服务端创建时 ConversationID 为空，由 Participants 指定对端
type SendMessageRequest struct {
	ConversationID string         `json:"conversationId,omitempty"`
	Participants   []string       `json:"participants,omitempty"`
	Text           string         `json:"text"`
	Media          []MediaRequest `json:"media,omitempty"`
	Gif            *GifRequest    `json:"gif,omitempty"`
	ClientID       string         `json:"clientId"`
}

// NewSendMessageRequest 由本地临时消息构造发送载荷
func NewSendMessageRequest(msg *model.Message, participants []string) SendMessageRequest {
	req := SendMessageRequest{
		Text:     msg.Content,
		ClientID: msg.ClientID,
	}
	if participants != nil {
		req.Participants = participants
	} else {
		req.ConversationID = msg.ConversationID
	}
	for _, m := range msg.Media {
		req.Media = append(req.Media, MediaRequest{
			MediaType: string(m.Type),
			URL:       m.URL,
			Filename:  m.Filename,
			Size:      m.Size,
		})
	}
	if msg.Gif != nil {
		req.Gif = &GifRequest{URL: msg.Gif.URL}
	}
	return req
}
