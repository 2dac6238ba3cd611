package feed

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"feed-handler/internal/config"
	"feed-handler/internal/core/model"
	"feed-handler/internal/util/backoff"
)

// KafkaSource 从 Kafka topic 消费行情消息
// 单分区 topic 才能保证序列号的到达顺序
type KafkaSource struct {
	cfg    config.KafkaSourceConfig
	logger *zap.Logger
	counters

	reader  *kafka.Reader
	backoff *backoff.Backoff
}

// NewKafkaSource 创建 Kafka 行情源
func NewKafkaSource(cfg config.KafkaSourceConfig, logger *zap.Logger) *KafkaSource {
	return &KafkaSource{
		cfg:    cfg,
		logger: logger.Named("feed.kafka"),
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		backoff: backoff.NewDefault(),
	}
}

// Name 实现 Source
func (s *KafkaSource) Name() string { return config.SourceKafka }

// Run 消费循环，读取失败按退避重试
func (s *KafkaSource) Run(ctx context.Context, out chan<- model.Message) error {
	s.logger.Info("开始消费",
		zap.Strings("brokers", s.cfg.Brokers),
		zap.String("topic", s.cfg.Topic),
		zap.String("group_id", s.cfg.GroupID))

	for {
		m, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			atomic.AddInt64(&s.reconnects, 1)
			s.logger.Warn("读取 Kafka 消息失败", zap.Error(err), zap.Int("attempt", s.backoff.Attempt()))
			if s.backoff.Wait(ctx) != nil {
				return nil
			}
			continue
		}
		s.backoff.Reset()

		if err := s.decodeAndEmit(ctx, s.logger.With(zap.Int64("offset", m.Offset)), out, m.Value); err != nil {
			return nil
		}
	}
}

// Close 关闭 reader，进行中的 ReadMessage 返回 io.EOF
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

// Metrics 实现 Source
func (s *KafkaSource) Metrics() ConnectionMetrics { return s.snapshot() }
