// Package broker 实现本地状态变更事件的广播
// kafka_broker.go
// 核心职责：分布式模式下的变更代理
// 1. 变更以 JSON 写入 Kafka 主题，Key 为会话 ID，保证同一会话的变更有序
// 2. 写入为异步批量，Publish 不等待 Kafka 确认，失败在 Completion 中记录
// 3. 消费循环从主题读取变更后广播给本进程的订阅方
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"kama_social_client/internal/config"
	"kama_social_client/internal/infrastructure/metrics"
	"kama_social_client/internal/model"
	"kama_social_client/pkg/errorx"

	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// publishBatchTimeout 异步批量的最长等待
const publishBatchTimeout = 10 * time.Millisecond

// KafkaBroker Kafka 变更代理
type KafkaBroker struct {
	Producer *kafka.Writer // 生产者：负责写入变更
	Consumer *kafka.Reader // 消费者：负责读取变更

	hub       *hub
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewKafkaBroker 根据配置创建 Kafka 变更代理
func NewKafkaBroker(conf config.KafkaConfig) *KafkaBroker {
	timeout := time.Duration(conf.Timeout) * time.Second
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaBroker{
		Producer: &kafka.Writer{
			Addr:                   kafka.TCP(conf.HostPort),
			Topic:                  conf.ChangeTopic,
			Balancer:               &kafka.Hash{},
			WriteTimeout:           timeout,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: false,
			BatchTimeout:           publishBatchTimeout,
			Async:                  true,
			Completion:             logPublishFailure,
		},
		Consumer: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        []string{conf.HostPort},
			Topic:          conf.ChangeTopic,
			CommitInterval: timeout,
			GroupID:        conf.GroupID,
			StartOffset:    kafka.LastOffset,
		}),
		hub:    newHub(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Publish 写入 Kafka 主题
// 异步写入：只在编码失败或取分区元数据失败时返回错误
func (b *KafkaBroker) Publish(ctx context.Context, ev model.ChangeEvent) error {
	msg, err := encodeChange(stamp(ev))
	if err != nil {
		return err
	}
	if err := b.Producer.WriteMessages(ctx, msg); err != nil {
		return errorx.Wrapf(err, errorx.CodeServerBusy, "publish %s", ev.Kind)
	}
	return nil
}

// Subscribe 注册订阅方
func (b *KafkaBroker) Subscribe(buffer int) (<-chan model.ChangeEvent, func()) {
	return b.hub.subscribe(buffer)
}

// Start 消费循环，读取失败时记录日志后继续
func (b *KafkaBroker) Start() {
	defer close(b.done)
	defer b.hub.close()
	for {
		m, err := b.Consumer.ReadMessage(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			zap.L().Error("kafka read change failed", zap.Error(err))
			select {
			case <-b.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		zap.L().Debug("kafka change received",
			zap.String("topic", m.Topic), zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset))

		ev, err := decodeChange(m)
		if err != nil {
			zap.L().Warn("kafka change dropped", zap.Error(err))
			continue
		}
		b.hub.broadcast(ev)
	}
}

// Close 停止消费并释放连接
func (b *KafkaBroker) Close() {
	b.closeOnce.Do(func() {
		b.cancel()
		err := multierr.Combine(b.Producer.Close(), b.Consumer.Close())
		if err != nil {
			zap.L().Error("kafka broker close", zap.Error(err))
		}
		select {
		case <-b.done:
		case <-time.After(5 * time.Second):
			b.hub.close()
		}
	})
}

// logPublishFailure 异步写入的结果回调
func logPublishFailure(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	metrics.ChangePublishFailures.Add(float64(len(msgs)))
	zap.L().Error("kafka publish change failed", zap.Int("count", len(msgs)), zap.Error(err))
}

func encodeChange(ev model.ChangeEvent) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, errorx.Wrapf(err, errorx.CodeInvalidParam, "encode %s", ev.Kind)
	}
	key := ev.ConversationID
	if key == "" {
		key = string(ev.Kind)
	}
	return kafka.Message{Key: []byte(key), Value: value}, nil
}

func decodeChange(m kafka.Message) (model.ChangeEvent, error) {
	var ev model.ChangeEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return ev, err
	}
	if ev.Kind == "" {
		return ev, errors.New("change without kind")
	}
	return ev, nil
}
