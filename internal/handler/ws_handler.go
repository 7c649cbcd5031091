// Package handler 提供 HTTP 请求处理器
// 本文件处理本地变更推送的 WebSocket 连接
package handler

import (
	"net/http"
	"time"

	"kama_social_client/internal/model"
	"kama_social_client/internal/service"
	"kama_social_client/pkg/constants"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = feedPongWait * 9 / 10
)

// 展示层与本地服务同机运行，不限制来源
var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WsHandler 变更推送处理器
type WsHandler struct {
	sessionService service.SessionService
}

// NewWsHandler 创建变更推送处理器实例
func NewWsHandler(sessionService service.SessionService) *WsHandler {
	return &WsHandler{sessionService: sessionService}
}

// ChangeFeed 订阅当前会话的本地变更
// GET /ws
// 每条消息是一个 model.ChangeEvent，展示层收到后回查对应接口
// 会话结束时推送 session.terminated 并关闭连接
func (h *WsHandler) ChangeFeed(c *gin.Context) {
	scope, ok := currentScope(c, h.sessionService)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Error("change feed upgrade failed", zap.Error(err))
		return
	}
	changes, cancel := scope.Changes.Subscribe(constants.CHANNEL_SIZE)
	feed := &changeFeed{conn: conn, changes: changes, done: make(chan struct{})}
	zap.L().Info("change feed connected", zap.String("user", scope.Session.UserID), zap.String("remote", c.ClientIP()))

	go feed.read()
	feed.write()
	cancel()
	_ = conn.Close()
	zap.L().Info("change feed closed", zap.String("user", scope.Session.UserID))
}

// changeFeed 一条变更推送连接
type changeFeed struct {
	conn    *websocket.Conn
	changes <-chan model.ChangeEvent
	done    chan struct{}
}

// read 只处理控制帧，对端关闭时结束写循环
func (f *changeFeed) read() {
	defer close(f.done)
	f.conn.SetReadLimit(512)
	_ = f.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	f.conn.SetPongHandler(func(string) error {
		return f.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := f.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *changeFeed) write() {
	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-f.changes:
			_ = f.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				// 会话内的变更代理已关闭
				_ = f.conn.WriteJSON(model.ChangeEvent{Kind: model.ChangeSessionTerminated, At: time.Now()})
				_ = f.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := f.conn.WriteJSON(ev); err != nil {
				zap.L().Debug("change feed write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = f.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-f.done:
			return
		}
	}
}
