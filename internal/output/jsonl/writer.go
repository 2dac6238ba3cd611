// Package jsonl 实现异步 JSONL 文件写入。
// 处理器的错误报告与订单簿定时快照都经由 Writer 落盘，
// 使用带缓冲的 channel 保证处理器锁内的上报不做文件 I/O。
package jsonl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"feed-handler/internal/core/model"
)

const (
	// ErrorsFile 错误报告输出文件名
	ErrorsFile = "errors.jsonl"
	// BookFile 订单簿快照输出文件名
	BookFile = "book.jsonl"
)

// ErrClosed 写入器已关闭
var ErrClosed = errors.New("writer 已关闭")

// BookRecord 订单簿定时快照记录
type BookRecord struct {
	// Session 会话 ID
	Session string `json:"session"`
	// TsUnixNs 记录时间（纳秒）
	TsUnixNs int64 `json:"ts_unix_ns"`
	// Seq 当前序列号
	Seq int64 `json:"seq"`
	// Connected 是否已同步
	Connected bool `json:"connected"`
	// Pending 断线缓存中的事件数
	Pending int `json:"pending"`
	// Book 排序后的订单簿
	Book model.OrderBook `json:"book"`
}

type opType int

const (
	opWrite opType = iota
	opFlush
	opClose
)

type op struct {
	typ  opType
	val  any
	done chan error
}

// Writer 异步 JSONL 写入器
// Write 只负责投递，实际 JSON 编码与文件 I/O 在后台 goroutine 完成。
type Writer struct {
	// path 输出文件路径
	path string
	// ch 操作通道
	ch chan op
	// logger 记录编码与写入失败
	logger *zap.Logger

	// written 成功写入的记录数
	written int64
	// failed 编码或写入失败的记录数
	failed int64

	closeOnce sync.Once
	closeErr  error
	closed    int32

	sendMu sync.Mutex

	wg sync.WaitGroup
}

// NewWriter 创建 JSONL 写入器
// 参数 path: 输出文件路径
// 参数 bufferSize: 写入缓冲区大小（channel capacity）
// 参数 logger: 日志记录器，可为 nil
func NewWriter(path string, bufferSize int, logger *zap.Logger) (*Writer, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败: %w", err)
	}

	w := &Writer{
		path:   path,
		ch:     make(chan op, bufferSize),
		logger: logger.Named("jsonl").With(zap.String("path", path)),
	}

	w.wg.Add(1)
	go w.loop(f)

	return w, nil
}

// Path 返回输出文件路径
func (w *Writer) Path() string { return w.path }

// Write 异步写入一条 JSONL 记录
// 缓冲区满时阻塞
func (w *Writer) Write(v any) error {
	if w == nil {
		return fmt.Errorf("writer 为空")
	}
	if atomic.LoadInt32(&w.closed) == 1 {
		return ErrClosed
	}
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if atomic.LoadInt32(&w.closed) == 1 {
		return ErrClosed
	}
	w.ch <- op{typ: opWrite, val: v}
	return nil
}

// Report 写入一条错误报告，可直接作为 stream.Reporter 使用
func (w *Writer) Report(r model.ErrorReport) {
	if w == nil {
		return
	}
	if err := w.Write(r); err != nil {
		w.logger.Warn("写入错误报告失败", zap.Error(err), zap.Int64("seq", r.Seq))
	}
}

// Flush 强制 flush 文件缓冲区
func (w *Writer) Flush() error {
	if w == nil {
		return nil
	}
	if atomic.LoadInt32(&w.closed) == 1 {
		return nil
	}
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if atomic.LoadInt32(&w.closed) == 1 {
		return nil
	}
	done := make(chan error, 1)
	w.ch <- op{typ: opFlush, done: done}
	return <-done
}

// Close 关闭写入器（会先 flush）
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.closeOnce.Do(func() {
		atomic.StoreInt32(&w.closed, 1)
		w.sendMu.Lock()
		defer w.sendMu.Unlock()
		done := make(chan error, 1)
		w.ch <- op{typ: opClose, done: done}
		w.closeErr = <-done
		close(w.ch)
	})
	w.wg.Wait()
	return w.closeErr
}

// Stats 返回成功与失败的记录数
func (w *Writer) Stats() (written, failed int64) {
	return atomic.LoadInt64(&w.written), atomic.LoadInt64(&w.failed)
}

func (w *Writer) loop(f *os.File) {
	defer w.wg.Done()
	defer f.Close()

	bw := bufio.NewWriterSize(f, 1<<20) // 1MB buffer
	reply := func(err error, done chan error) {
		if done != nil {
			done <- err
		}
	}

	for req := range w.ch {
		switch req.typ {
		case opWrite:
			if err := writeLine(bw, req.val); err != nil {
				atomic.AddInt64(&w.failed, 1)
				w.logger.Warn("写入记录失败", zap.Error(err))
				continue
			}
			atomic.AddInt64(&w.written, 1)
		case opFlush:
			reply(bw.Flush(), req.done)
		case opClose:
			reply(bw.Flush(), req.done)
			return
		}
	}
}

func writeLine(bw *bufio.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := bw.Write(b); err != nil {
		return err
	}
	return bw.WriteByte('\n')
}
