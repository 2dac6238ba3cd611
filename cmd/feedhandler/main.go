// Package main 是订单簿行情处理器的入口点。
// 从配置的行情源（文件/WebSocket/Kafka）读取快照与增量事件，
// 维护本地订单簿，断线期间缓存事件并在收到新快照后回放。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"feed-handler/internal/config"
	"feed-handler/internal/core/model"
	"feed-handler/internal/core/stream"
	"feed-handler/internal/feed"
	"feed-handler/internal/output/jsonl"
	"feed-handler/internal/stats/latency"
	"feed-handler/internal/stats/metrics"
	"feed-handler/internal/util/timeutil"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel).With(zap.String("app", cfg.App.Name))
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	collector := metrics.New()
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("指标服务退出", zap.Error(err))
			}
		}()
		logger.Info("指标服务已启动", zap.String("addr", cfg.Metrics.Addr))
	}

	var errorsWriter *jsonl.Writer
	var bookWriter *jsonl.Writer
	if cfg.Output.ErrorsEnabled {
		errorsWriter, err = jsonl.NewWriter(filepath.Join(cfg.Output.Dir, jsonl.ErrorsFile), cfg.Output.BufferSize, logger)
		if err != nil {
			logger.Error("创建 errors writer 失败", zap.Error(err))
			os.Exit(1)
		}
	}
	if cfg.Output.BookEnabled {
		bookWriter, err = jsonl.NewWriter(filepath.Join(cfg.Output.Dir, jsonl.BookFile), cfg.Output.BufferSize, logger)
		if err != nil {
			logger.Error("创建 book writer 失败", zap.Error(err))
			os.Exit(1)
		}
	}

	proc := stream.NewProcessor(cfg.Stream, logger)
	proc.SetObserver(collector)
	if errorsWriter != nil {
		proc.SetReporter(errorsWriter)
	}
	logger.Info("处理器已创建", zap.String("session", proc.Session()))

	src, err := feed.New(cfg.Source, logger)
	if err != nil {
		logger.Error("创建行情源失败", zap.Error(err))
		os.Exit(1)
	}

	msgCh := make(chan model.Message, cfg.Stream.ChannelSize)
	go func() {
		defer close(msgCh)
		if err := src.Run(ctx, msgCh); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("行情源退出", zap.String("source", src.Name()), zap.Error(err))
		}
	}()

	latTracker := latency.NewTracker(10000)
	w := &worker{
		logger:     logger,
		proc:       proc,
		src:        src,
		collector:  collector,
		latTracker: latTracker,
		bookWriter: bookWriter,
		interval:   time.Duration(cfg.Output.BookIntervalMs) * time.Millisecond,
	}
	w.run(ctx, msgCh)

	// 输出最后一条订单簿快照（便于离线复盘）
	w.dumpBook()
	st := proc.State()
	logger.Info("处理结束",
		zap.Int64("seq", st.Seq),
		zap.Bool("connected", st.Connected),
		zap.Int("pending", st.Pending),
		zap.Int("bids", st.Bids),
		zap.Int("asks", st.Asks),
		zap.Float64("process_p99_ms", latTracker.Stats(latency.KindProcess).P99Ms))

	// 优雅关闭（10s 超时）
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = src.Close()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		if errorsWriter != nil {
			_ = errorsWriter.Close()
		}
		if bookWriter != nil {
			_ = bookWriter.Close()
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("关闭超时，强制退出")
	case <-done:
		logger.Info("关闭完成")
	}
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// worker 单 goroutine 消费消息，保证处理顺序与到达顺序一致
type worker struct {
	logger     *zap.Logger
	proc       *stream.Processor
	src        feed.Source
	collector  *metrics.Collector
	latTracker *latency.Tracker
	bookWriter *jsonl.Writer
	interval   time.Duration
}

// run 处理消息直到通道关闭或 ctx 取消
func (w *worker) run(ctx context.Context, msgCh <-chan model.Message) {
	interval := w.interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			w.handle(msg)

		case <-ticker.C:
			w.tick()
		}
	}
}

// handle 处理一条消息并记录耗时；失败已由处理器记录与上报
func (w *worker) handle(msg model.Message) {
	var disconnectedFor time.Duration
	if _, ok := msg.(model.Snapshot); ok {
		disconnectedFor, _ = w.proc.ResyncOverdue()
	}

	start := timeutil.NowNano()
	_ = w.proc.ProcessMessage(msg)
	w.latTracker.AddProcess(timeutil.SinceNano(start))

	if disconnectedFor > 0 && w.proc.Connected() {
		w.latTracker.AddResync(disconnectedFor)
	}
}

// tick 定时刷新指标、检查重新同步超时并输出订单簿
func (w *worker) tick() {
	w.collector.ObserveSource(w.src.Name(), w.src.Metrics())
	w.collector.ObserveLatency(w.latTracker.Stats(latency.KindProcess))
	w.collector.ObserveLatency(w.latTracker.Stats(latency.KindResync))

	if d, overdue := w.proc.ResyncOverdue(); overdue {
		w.collector.ResyncOverdue()
		st := w.proc.State()
		w.logger.Warn("断线后长时间未收到快照",
			zap.Duration("disconnected_for", d),
			zap.Int64("seq", st.Seq),
			zap.Int("pending", st.Pending))
	}

	w.dumpBook()
}

// dumpBook 将当前订单簿写入 book.jsonl
func (w *worker) dumpBook() {
	if w.bookWriter == nil {
		return
	}
	st := w.proc.State()
	rec := jsonl.BookRecord{
		Session:   w.proc.Session(),
		TsUnixNs:  timeutil.NowNano(),
		Seq:       st.Seq,
		Connected: st.Connected,
		Pending:   st.Pending,
		Book:      w.proc.Book(),
	}
	if err := w.bookWriter.Write(rec); err != nil {
		w.logger.Warn("写入订单簿快照失败", zap.Error(err))
		return
	}
	_ = w.bookWriter.Flush()
}
