package feed

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"feed-handler/internal/config"
	"feed-handler/internal/core/model"
	"feed-handler/internal/util/backoff"
)

// WebSocketSource WebSocket 行情源
//
// 每个文本帧是一条 JSON 消息。连接断开时向下游投递一条 DISCONNECT 事件，
// 使处理器进入断线状态并缓存后续事件，直到服务端在重连后推送新快照。
type WebSocketSource struct {
	cfg    config.WebSocketSourceConfig
	logger *zap.Logger
	counters

	// conn WebSocket 连接
	conn *websocket.Conn
	// connMu 连接锁，串行化写入
	connMu sync.Mutex
	// backoff 重连退避
	backoff *backoff.Backoff
	// closed 是否已关闭
	closed int32
}

// NewWebSocketSource 创建 WebSocket 行情源
func NewWebSocketSource(cfg config.WebSocketSourceConfig, logger *zap.Logger) *WebSocketSource {
	return &WebSocketSource{
		cfg:     cfg,
		logger:  logger.Named("feed.websocket"),
		backoff: backoff.NewDefault(),
	}
}

// Name 实现 Source
func (s *WebSocketSource) Name() string { return config.SourceWebSocket }

// connect 建立连接并发送订阅消息
func (s *WebSocketSource) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("User-Agent", "feed-handler/1.0")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("连接 WebSocket 失败: %w", err)
	}

	s.extendDeadline(conn)
	conn.SetPongHandler(func(string) error {
		s.extendDeadline(conn)
		return nil
	})

	if s.cfg.Subscribe != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(s.cfg.Subscribe)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("发送订阅消息失败: %w", err)
		}
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.backoff.Reset()
	s.logger.Info("WebSocket 连接成功", zap.String("url", s.cfg.URL))
	return conn, nil
}

// Run 读取循环，断线后按退避重连，直到 ctx 取消或 Close
func (s *WebSocketSource) Run(ctx context.Context, out chan<- model.Message) error {
	go s.heartbeatLoop(ctx)

	for {
		if ctx.Err() != nil || atomic.LoadInt32(&s.closed) == 1 {
			return nil
		}

		conn, err := s.connect(ctx)
		if err != nil {
			s.logger.Warn("WebSocket 连接失败", zap.Error(err), zap.Int("attempt", s.backoff.Attempt()))
			if s.backoff.Wait(ctx) != nil {
				return nil
			}
			continue
		}

		readErr := s.readLoop(ctx, conn, out)
		s.closeConn()
		if ctx.Err() != nil || atomic.LoadInt32(&s.closed) == 1 {
			return nil
		}

		atomic.AddInt64(&s.reconnects, 1)
		s.logger.Warn("WebSocket 断开，等待重连", zap.Error(readErr))
		// 断线事件不携带有效序列号，处理器只用它切换状态
		if err := s.emit(ctx, out, model.Disconnect(0)); err != nil {
			return nil
		}
		if s.backoff.Wait(ctx) != nil {
			return nil
		}
	}
}

// readLoop 读取直到出错
func (s *WebSocketSource) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- model.Message) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.extendDeadline(conn)

		if msgType != websocket.TextMessage {
			continue
		}
		if err := s.decodeAndEmit(ctx, s.logger, out, data); err != nil {
			return err
		}
	}
}

// extendDeadline 延长读超时，ReadTimeoutMs 为 0 时不设超时
func (s *WebSocketSource) extendDeadline(conn *websocket.Conn) {
	if s.cfg.ReadTimeoutMs <= 0 {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(time.Duration(s.cfg.ReadTimeoutMs) * time.Millisecond))
}

// heartbeatLoop 按间隔发送 ping，pong 由 PongHandler 延长读超时
func (s *WebSocketSource) heartbeatLoop(ctx context.Context) {
	if s.cfg.PingIntervalMs <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(s.cfg.PingIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&s.closed) == 1 {
				return
			}
			s.connMu.Lock()
			conn := s.conn
			if conn != nil {
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					s.logger.Warn("发送 ping 失败", zap.Error(err))
				}
			}
			s.connMu.Unlock()
		}
	}
}

// closeConn 关闭当前连接
func (s *WebSocketSource) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Close 关闭行情源，Run 随后返回
func (s *WebSocketSource) Close() error {
	atomic.StoreInt32(&s.closed, 1)
	s.closeConn()
	s.logger.Info("WebSocket 行情源已关闭")
	return nil
}

// Metrics 实现 Source
func (s *WebSocketSource) Metrics() ConnectionMetrics { return s.snapshot() }
