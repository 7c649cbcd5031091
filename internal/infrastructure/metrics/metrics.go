// Package metrics 定义实时通道与本地状态的 Prometheus 指标
// 指标注册在默认 Registry，本地视图服务通过 /metrics 暴露
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kama_social_client"

var (
	// EventsReceived 按事件类型统计入站事件
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_received_total",
		Help:      "Inbound realtime events by type.",
	}, []string{"type"})

	// Reconnects 成功重连次数
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_reconnects_total",
		Help:      "Successful transport reconnects.",
	})

	// ReconnectAttempts 重连尝试次数（含失败）
	ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_reconnect_attempts_total",
		Help:      "Transport reconnect attempts.",
	})

	// Resyncs 重连后的全量同步，按结果区分
	Resyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resyncs_total",
		Help:      "Full resynchronizations after reconnect.",
	}, []string{"result"})

	// SendFailures 发送失败的消息
	SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "message_send_failures_total",
		Help:      "Messages marked failed, by error kind.",
	}, []string{"kind"})

	// Rollbacks 乐观更新被回滚的次数
	Rollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "optimistic_rollbacks_total",
		Help:      "Optimistic local mutations rolled back after a failed call.",
	}, []string{"operation"})

	// ChangePublishFailures 异步写入 Kafka 失败的变更数
	ChangePublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "change_publish_failures_total",
		Help:      "Change events the kafka writer failed to deliver.",
	})

	// OnlineUsers 当前在线用户数
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "presence_online_users",
		Help:      "Users currently tracked as online.",
	})

	// UnreadNotifications 未读通知数
	UnreadNotifications = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notifications_unread",
		Help:      "Unread notifications for the session user.",
	})
)

// Handler 返回 Prometheus 抓取端点
func Handler() http.Handler {
	return promhttp.Handler()
}
