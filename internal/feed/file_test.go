package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"feed-handler/internal/config"
	"feed-handler/internal/core/model"
	"feed-handler/internal/core/stream"
)

// runFile 运行文件行情源并收集全部消息
func runFile(t *testing.T, path string) ([]model.Message, *FileSource) {
	t.Helper()
	src := NewFileSource(config.FileSourceConfig{Path: path}, zap.NewNop())
	out := make(chan model.Message, 64)

	err := src.Run(context.Background(), out)
	require.NoError(t, err)
	close(out)

	var msgs []model.Message
	for m := range out {
		msgs = append(msgs, m)
	}
	return msgs, src
}

func TestFileSource_Scenario(t *testing.T) {
	msgs, src := runFile(t, filepath.Join("testdata", "scenario.jsonl"))
	require.Len(t, msgs, 5)
	require.Equal(t, int64(5), src.Metrics().Messages)
	require.Zero(t, src.Metrics().ParseErrors)

	p := stream.NewProcessor(config.StreamConfig{}, zap.NewNop())
	for _, m := range msgs {
		require.NoError(t, p.ProcessMessage(m))
	}

	want := model.OrderBook{
		Bids: []model.Level{model.NewLevel("5", 5)},
		Asks: []model.Level{model.NewLevel("7", 3)},
	}
	require.True(t, p.Book().Equal(want), "book=%+v", p.Book())
	require.True(t, p.Connected())
	require.Equal(t, int64(3), p.Seq())
}

func TestFileSource_ParseErrorsSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.jsonl")
	data := `{"type":"snapshot","as_of_seq":0}
not json
{"type":"heartbeat"}
{"type":"event","event":"ADD","seq":1,"price":"1","qty":1,"is_buy":true}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	msgs, src := runFile(t, path)
	require.Len(t, msgs, 2)

	m := src.Metrics()
	require.Equal(t, int64(2), m.Messages)
	require.Equal(t, int64(2), m.ParseErrors)
	require.GreaterOrEqual(t, m.LastMessageAgeMs, int64(0))
}

func TestFileSource_MissingFile(t *testing.T) {
	src := NewFileSource(config.FileSourceConfig{Path: filepath.Join(t.TempDir(), "missing.jsonl")}, zap.NewNop())
	err := src.Run(context.Background(), make(chan model.Message, 1))
	require.Error(t, err)
}

func TestFileSource_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewFileSource(config.FileSourceConfig{Path: filepath.Join("testdata", "scenario.jsonl")}, zap.NewNop())
	// 无缓冲且无人读取，投递只能因 ctx 取消而返回
	err := src.Run(ctx, make(chan model.Message))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNew_SourceKinds(t *testing.T) {
	logger := zap.NewNop()

	src, err := New(config.SourceConfig{Kind: config.SourceFile}, logger)
	require.NoError(t, err)
	require.Equal(t, config.SourceFile, src.Name())

	src, err = New(config.SourceConfig{Kind: config.SourceWebSocket}, logger)
	require.NoError(t, err)
	require.Equal(t, config.SourceWebSocket, src.Name())

	src, err = New(config.SourceConfig{Kind: config.SourceKafka, Kafka: config.KafkaSourceConfig{
		Brokers: []string{"localhost:9092"}, Topic: "book", GroupID: "feed-handler",
	}}, logger)
	require.NoError(t, err)
	require.Equal(t, config.SourceKafka, src.Name())
	require.NoError(t, src.Close())

	_, err = New(config.SourceConfig{Kind: "udp"}, logger)
	require.Error(t, err)
}

func TestFileSource_OutOfRangePriceCounted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.jsonl")
	data := `{"type":"snapshot","as_of_seq":0}
{"type":"event","event":"ADD","seq":1,"price":"1e30000000","qty":1,"is_buy":true}
{"type":"event","event":"ADD","seq":1,"price":"2","qty":1,"is_buy":true}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	msgs, src := runFile(t, path)
	require.Len(t, msgs, 2)
	require.Equal(t, int64(1), src.Metrics().ParseErrors)
}
