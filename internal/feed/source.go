package feed

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"feed-handler/internal/config"
	"feed-handler/internal/core/model"
	"feed-handler/internal/util/timeutil"
)

// Source 行情源
// Run 按到达顺序把消息写入 out，直到数据结束、ctx 取消或 Close；不关闭 out。
type Source interface {
	// Name 行情源名称，用于日志与指标
	Name() string
	// Run 阻塞运行
	Run(ctx context.Context, out chan<- model.Message) error
	// Close 关闭底层连接
	Close() error
	// Metrics 连接指标
	Metrics() ConnectionMetrics
}

// ConnectionMetrics 行情源连接指标
type ConnectionMetrics struct {
	// Messages 已投递的消息数
	Messages int64 `json:"messages"`
	// ParseErrors 解析失败次数
	ParseErrors int64 `json:"parse_errors"`
	// Reconnects 重连次数
	Reconnects int64 `json:"reconnects"`
	// LastMessageAgeMs 最后一条消息距今时间（毫秒）
	LastMessageAgeMs int64 `json:"last_message_age_ms"`
}

// New 按配置创建行情源
func New(cfg config.SourceConfig, logger *zap.Logger) (Source, error) {
	switch cfg.Kind {
	case config.SourceFile:
		return NewFileSource(cfg.File, logger), nil
	case config.SourceWebSocket:
		return NewWebSocketSource(cfg.WebSocket, logger), nil
	case config.SourceKafka:
		return NewKafkaSource(cfg.Kafka, logger), nil
	default:
		return nil, fmt.Errorf("未知的行情源类型: %s", cfg.Kind)
	}
}

// counters 各行情源共用的计数器
type counters struct {
	messages    int64
	parseErrors int64
	reconnects  int64
	lastMsgNs   int64
}

func (c *counters) snapshot() ConnectionMetrics {
	m := ConnectionMetrics{
		Messages:    atomic.LoadInt64(&c.messages),
		ParseErrors: atomic.LoadInt64(&c.parseErrors),
		Reconnects:  atomic.LoadInt64(&c.reconnects),
	}
	if last := atomic.LoadInt64(&c.lastMsgNs); last > 0 {
		m.LastMessageAgeMs = timeutil.SinceNano(last).Milliseconds()
	}
	return m
}

// emit 投递消息
// 通道满时阻塞而不是丢弃：丢弃会破坏序列连续性
func (c *counters) emit(ctx context.Context, out chan<- model.Message, msg model.Message) error {
	select {
	case out <- msg:
		atomic.AddInt64(&c.messages, 1)
		atomic.StoreInt64(&c.lastMsgNs, timeutil.NowNano())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// decodeAndEmit 解码并投递，解析失败只计数并记录日志
func (c *counters) decodeAndEmit(ctx context.Context, logger *zap.Logger, out chan<- model.Message, data []byte) error {
	msg, err := Decode(data)
	if err != nil {
		atomic.AddInt64(&c.parseErrors, 1)
		sample := data
		if len(sample) > 200 {
			sample = sample[:200]
		}
		logger.Warn("解析行情消息失败", zap.Error(err), zap.ByteString("data", sample))
		return nil
	}
	return c.emit(ctx, out, msg)
}
