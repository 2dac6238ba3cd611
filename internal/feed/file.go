package feed

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"feed-handler/internal/config"
	"feed-handler/internal/core/model"
)

// FileSource 从 JSONL 文件按行回放消息
// 空行与 # 开头的注释行被忽略
type FileSource struct {
	cfg    config.FileSourceConfig
	logger *zap.Logger
	counters
}

// NewFileSource 创建文件行情源
func NewFileSource(cfg config.FileSourceConfig, logger *zap.Logger) *FileSource {
	return &FileSource{
		cfg:    cfg,
		logger: logger.Named("feed.file"),
	}
}

// Name 实现 Source
func (s *FileSource) Name() string { return config.SourceFile }

// Run 读取整个文件后返回 nil
func (s *FileSource) Run(ctx context.Context, out chan<- model.Message) error {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("打开回放文件失败: %w", err)
	}
	defer f.Close()

	s.logger.Info("开始回放", zap.String("path", s.cfg.Path))

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 || data[0] == '#' {
			continue
		}
		if err := s.decodeAndEmit(ctx, s.logger.With(zap.Int("line", line)), out, data); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("读取回放文件失败: %w", err)
	}

	m := s.Metrics()
	s.logger.Info("回放结束", zap.Int("lines", line), zap.Int64("messages", m.Messages), zap.Int64("parse_errors", m.ParseErrors))
	return nil
}

// Close 实现 Source
func (s *FileSource) Close() error { return nil }

// Metrics 实现 Source
func (s *FileSource) Metrics() ConnectionMetrics { return s.snapshot() }
