package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"feed-handler/internal/config"
	"feed-handler/internal/core/model"
)

// newFeedServer 每个连接先校验订阅消息，再推送 frames 后关闭
func newFeedServer(t *testing.T, subscribe string, frames ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if subscribe != "" {
			_, msg, err := conn.ReadMessage()
			if err != nil || string(msg) != subscribe {
				return
			}
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func recv(t *testing.T, ch <-chan model.Message) model.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatalf("等待消息超时")
		return nil
	}
}

func TestWebSocketSource_DisconnectOnClose(t *testing.T) {
	const sub = `{"op":"subscribe","channel":"book"}`
	srv := newFeedServer(t, sub,
		`{"type":"snapshot","as_of_seq":1,"bids":[{"price":"1","qty":2}],"asks":[]}`,
		`bad frame`,
		`{"type":"event","event":"ADD","seq":1,"price":"2","qty":5,"is_buy":true}`,
	)

	src := NewWebSocketSource(config.WebSocketSourceConfig{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		Subscribe:      sub,
		PingIntervalMs: 1000,
		ReadTimeoutMs:  5000,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.Message, 16)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	_, ok := recv(t, out).(model.Snapshot)
	require.True(t, ok)

	ev := recv(t, out).(model.Event)
	require.Equal(t, model.EventAdd, ev.Kind)

	// 服务端关闭连接后应收到合成的 DISCONNECT
	ev = recv(t, out).(model.Event)
	require.Equal(t, model.EventDisconnect, ev.Kind)

	// 重连后服务端重新推送快照
	_, ok = recv(t, out).(model.Snapshot)
	require.True(t, ok)

	cancel()
	require.NoError(t, src.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Run 未退出")
	}

	m := src.Metrics()
	require.GreaterOrEqual(t, m.Reconnects, int64(1))
	require.GreaterOrEqual(t, m.ParseErrors, int64(1))
}

func TestWebSocketSource_DialFailureStopsOnCancel(t *testing.T) {
	src := NewWebSocketSource(config.WebSocketSourceConfig{URL: "ws://127.0.0.1:1/feed"}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, src.Run(ctx, make(chan model.Message, 1)))
	require.Zero(t, src.Metrics().Messages)
}
