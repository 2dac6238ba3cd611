// Package config 负责加载和验证配置。
// 先读取 YAML 配置文件，再用 .env 与环境变量（前缀 FEED_）覆盖，最后填充默认值并验证。
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 行情源类型
const (
	// SourceFile JSONL 文件回放
	SourceFile = "file"
	// SourceWebSocket WebSocket 推送
	SourceWebSocket = "websocket"
	// SourceKafka Kafka 主题
	SourceKafka = "kafka"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "FEED_"

// Config 应用配置根结构
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app" envPrefix:"APP_"`
	// Source 行情源配置
	Source SourceConfig `yaml:"source" envPrefix:"SOURCE_"`
	// Stream 流处理配置
	Stream StreamConfig `yaml:"stream" envPrefix:"STREAM_"`
	// Output 输出配置
	Output OutputConfig `yaml:"output" envPrefix:"OUTPUT_"`
	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name" env:"NAME"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// SourceConfig 行情源配置
type SourceConfig struct {
	// Kind 行情源类型: file, websocket, kafka
	Kind string `yaml:"kind" env:"KIND"`
	// File 文件回放配置
	File FileSourceConfig `yaml:"file" envPrefix:"FILE_"`
	// WebSocket WebSocket 配置
	WebSocket WebSocketSourceConfig `yaml:"websocket" envPrefix:"WS_"`
	// Kafka Kafka 配置
	Kafka KafkaSourceConfig `yaml:"kafka" envPrefix:"KAFKA_"`
}

// FileSourceConfig 文件回放配置
type FileSourceConfig struct {
	// Path JSONL 文件路径，每行一条消息
	Path string `yaml:"path" env:"PATH"`
}

// WebSocketSourceConfig WebSocket 行情源配置
type WebSocketSourceConfig struct {
	// URL WebSocket 连接地址
	URL string `yaml:"url" env:"URL"`
	// Subscribe 连接建立后发送的订阅消息（原样发送，可为空）
	Subscribe string `yaml:"subscribe" env:"SUBSCRIBE"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms" env:"PING_INTERVAL_MS"`
	// ReadTimeoutMs 读取超时（毫秒），超时视为断线
	ReadTimeoutMs int `yaml:"read_timeout_ms" env:"READ_TIMEOUT_MS"`
}

// KafkaSourceConfig Kafka 行情源配置
type KafkaSourceConfig struct {
	// Brokers broker 地址列表
	Brokers []string `yaml:"brokers" env:"BROKERS" envSeparator:","`
	// Topic 主题（单分区以保证顺序）
	Topic string `yaml:"topic" env:"TOPIC"`
	// GroupID 消费组
	GroupID string `yaml:"group_id" env:"GROUP_ID"`
}

// StreamConfig 流处理配置
type StreamConfig struct {
	// ResyncOnGap 已同步状态下检测到序列号不连续时是否主动进入断线并等待快照
	ResyncOnGap bool `yaml:"resync_on_gap" env:"RESYNC_ON_GAP"`
	// ResyncTimeoutMs 断线后等待快照的告警阈值（毫秒），0 表示不告警
	ResyncTimeoutMs int `yaml:"resync_timeout_ms" env:"RESYNC_TIMEOUT_MS"`
	// ChannelSize 行情源到处理器的消息通道容量
	ChannelSize int `yaml:"channel_size" env:"CHANNEL_SIZE"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir" env:"DIR"`
	// ErrorsEnabled 是否输出错误报告文件
	ErrorsEnabled bool `yaml:"errors_enabled" env:"ERRORS_ENABLED"`
	// BookEnabled 是否输出订单簿快照文件
	BookEnabled bool `yaml:"book_enabled" env:"BOOK_ENABLED"`
	// BookIntervalMs 订单簿快照输出间隔（毫秒）
	BookIntervalMs int `yaml:"book_interval_ms" env:"BOOK_INTERVAL_MS"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size" env:"BUFFER_SIZE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// Enabled 是否启动 /metrics HTTP 服务
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Addr 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
}

// Load 从文件加载配置，叠加环境变量后验证
// 参数 path: 配置文件路径，为空时只使用环境变量
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	// .env 不存在时忽略
	_ = godotenv.Load()

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "feed-handler"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	if c.Source.Kind == "" {
		c.Source.Kind = SourceFile
	}
	if c.Source.WebSocket.PingIntervalMs == 0 {
		c.Source.WebSocket.PingIntervalMs = 20000 // 20 秒
	}
	if c.Source.WebSocket.ReadTimeoutMs == 0 {
		c.Source.WebSocket.ReadTimeoutMs = 30000 // 30 秒
	}
	if c.Source.Kafka.GroupID == "" {
		c.Source.Kafka.GroupID = c.App.Name
	}

	if c.Stream.ChannelSize == 0 {
		c.Stream.ChannelSize = 1024
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.BookIntervalMs == 0 {
		c.Output.BookIntervalMs = 10000 // 10 秒
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9102"
	}
}

// Validate 验证配置合法性
// 返回: 若配置无效则返回汇总了全部问题的错误
func (c *Config) Validate() error {
	var errs []string

	switch c.Source.Kind {
	case SourceFile:
		if c.Source.File.Path == "" {
			errs = append(errs, "source.file.path: 文件路径不能为空")
		}
	case SourceWebSocket:
		if c.Source.WebSocket.URL == "" {
			errs = append(errs, "source.websocket.url: WebSocket 地址不能为空")
		}
		if c.Source.WebSocket.PingIntervalMs <= 0 {
			errs = append(errs, "source.websocket.ping_interval_ms: 心跳间隔必须为正数")
		}
		if c.Source.WebSocket.ReadTimeoutMs <= 0 {
			errs = append(errs, "source.websocket.read_timeout_ms: 读取超时必须为正数")
		}
	case SourceKafka:
		if len(c.Source.Kafka.Brokers) == 0 {
			errs = append(errs, "source.kafka.brokers: 至少需要一个 broker")
		}
		if c.Source.Kafka.Topic == "" {
			errs = append(errs, "source.kafka.topic: 主题不能为空")
		}
	default:
		errs = append(errs, fmt.Sprintf("source.kind: 无效的行情源类型 '%s'，有效值: file, websocket, kafka", c.Source.Kind))
	}

	if c.Stream.ResyncTimeoutMs < 0 {
		errs = append(errs, "stream.resync_timeout_ms: 超时不能为负数")
	}
	if c.Stream.ChannelSize <= 0 {
		errs = append(errs, "stream.channel_size: 通道容量必须为正数")
	}

	if c.Output.BookIntervalMs <= 0 {
		errs = append(errs, "output.book_interval_ms: 输出间隔必须为正数")
	}
	if c.Output.BufferSize <= 0 {
		errs = append(errs, "output.buffer_size: 缓冲区大小必须为正数")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr: 启用指标时监听地址不能为空")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
