// Package rest 访问远端社交服务的 REST 接口
// client.go
// 核心职责：
// 1. 基于 fasthttp 发送带 Bearer 凭证的 JSON 请求
// 2. 把 HTTP 状态与网络错误映射为 errorx 错误码
// 3. 把响应体解码为领域模型
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kama_social_client/internal/dto/request"
	"kama_social_client/internal/dto/respond"
	"kama_social_client/internal/model"
	"kama_social_client/pkg/constants"
	"kama_social_client/pkg/errorx"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Client 远端 REST 客户端，每个会话一个实例
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *fasthttp.Client
}

// NewClient 创建 REST 客户端
// timeout 为 0 时使用默认 10 秒
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = constants.REQUEST_TIMEOUT_SECONDS * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                "kama_social_client",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

// ==================== 会话与消息 ====================

// ListConversations GET /conversations
func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var body []respond.ConversationRespond
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &body); err != nil {
		return nil, err
	}
	out := make([]model.Conversation, 0, len(body))
	for _, conv := range body {
		out = append(out, conv.ToModel())
	}
	return out, nil
}

// ListMessages GET /conversations/{id}/messages
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var body []respond.MessageRespond
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil, &body); err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(body))
	for _, m := range body {
		msg := m.ToModel()
		if msg.ConversationID == "" {
			msg.ConversationID = conversationID
		}
		out = append(out, msg)
	}
	return out, nil
}

// SendMessage POST /messages/send，返回服务端确认后的消息
func (c *Client) SendMessage(ctx context.Context, req request.SendMessageRequest) (model.Message, error) {
	var body respond.MessageRespond
	if err := c.do(ctx, http.MethodPost, "/messages/send", req, &body); err != nil {
		return model.Message{}, err
	}
	msg := body.ToModel()
	if msg.ClientID == "" {
		msg.ClientID = req.ClientID
	}
	if msg.ConversationID == "" {
		msg.ConversationID = req.ConversationID
	}
	return msg, nil
}

// MarkConversationRead PUT /conversations/{id}/read
func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPut, "/conversations/"+url.PathEscape(conversationID)+"/read", nil, nil)
}

// ==================== 通知 ====================

// ListNotifications GET /notifications
func (c *Client) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	var body []respond.NotificationRespond
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, &body); err != nil {
		return nil, err
	}
	out := make([]model.Notification, 0, len(body))
	for _, n := range body {
		out = append(out, n.ToModel())
	}
	return out, nil
}

// MarkNotificationRead PUT /notifications/{id}/read
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// MarkAllNotificationsRead PUT /notifications/read-all
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil)
}

// ==================== 请求执行 ====================

type result struct {
	status int
	body   []byte
	err    error
}

// do 执行请求并解码响应
// fasthttp 不接受 context，这里在独立协程中执行并与 ctx 竞争；
// 请求对象由该协程自行归还，ctx 提前结束不会导致复用冲突
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return errorx.Wrapf(err, errorx.CodeInvalidParam, "encode %s %s", method, path)
		}
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	done := make(chan result, 1)
	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(c.baseURL + path)
		req.Header.SetMethod(method)
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.SetContentType("application/json")
			req.SetBodyRaw(payload)
		}

		err := c.http.DoDeadline(req, resp, deadline)
		done <- result{
			status: resp.StatusCode(),
			body:   append([]byte(nil), resp.Body()...),
			err:    err,
		}
	}()

	var res result
	select {
	case <-ctx.Done():
		return errorx.Wrapf(ctx.Err(), errorx.CodeNetworkError, "%s %s", method, path)
	case res = <-done:
	}

	if res.err != nil {
		zap.L().Warn("rest request failed", zap.String("method", method), zap.String("path", path), zap.Error(res.err))
		return errorx.Wrapf(res.err, errorx.CodeNetworkError, "%s %s", method, path)
	}
	if err := statusError(method, path, res.status, res.body); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := decodeBody(res.body, out); err != nil {
		return errorx.Wrapf(err, errorx.CodeRejectedByServer, "decode %s %s", method, path)
	}
	return nil
}

// statusError 把非 2xx 状态映射为错误码
// 401 对会话是致命的，由调用方向上传递
func statusError(method, path string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return errorx.Newf(errorx.CodeUnauthorized, "%s %s: unauthorized", method, path)
	case status == http.StatusNotFound:
		return errorx.Newf(errorx.CodeNotFound, "%s %s: not found", method, path)
	default:
		return errorx.Newf(errorx.CodeRejectedByServer, "%s %s: status %d: %s", method, path, status, serverMessage(body))
	}
}

// serverMessage 尽量取出服务端返回的错误描述
func serverMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		for _, s := range []string{e.Message, e.Msg, e.Error} {
			if s != "" {
				return s
			}
		}
	}
	if len(body) > 128 {
		body = body[:128]
	}
	return string(body)
}

// decodeBody 兼容裸 JSON 与 {"data": ...} 包装两种响应
func decodeBody(body []byte, out any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	if body[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if json.Unmarshal(body, &env) == nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
			return json.Unmarshal(env.Data, out)
		}
	}
	return json.Unmarshal(body, out)
}
