// Package latency 实现处理耗时与重新同步耗时的滚动窗口统计。
package latency

import (
	"sort"
	"sync"
	"time"
)

const (
	// KindProcess 单条消息的处理耗时
	KindProcess = "process"
	// KindResync 从断线到快照完成回放的耗时
	KindResync = "resync"
)

// LatencyStats 时延统计快照（滚动窗口）
// 单位：毫秒。
type LatencyStats struct {
	// Kind 统计类型: process 或 resync
	Kind string
	// Count 样本总数（累计）
	Count int64

	// P50Ms P50 时延（毫秒）
	P50Ms float64
	// P90Ms P90 时延（毫秒）
	P90Ms float64
	// P99Ms P99 时延（毫秒）
	P99Ms float64
	// MaxMs 窗口内最大时延（毫秒）
	MaxMs float64
}

type rollingWindow struct {
	size  int
	buf   []int64
	pos   int
	count int64
	full  bool

	mu sync.Mutex
}

func newRollingWindow(size int) *rollingWindow {
	return &rollingWindow{size: size, buf: make([]int64, 0, size)}
}

func (w *rollingWindow) add(v int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.count++
	if w.size <= 0 {
		return
	}

	if !w.full {
		w.buf = append(w.buf, v)
		if len(w.buf) == w.size {
			w.full = true
			w.pos = 0
		}
		return
	}

	w.buf[w.pos] = v
	w.pos++
	if w.pos >= w.size {
		w.pos = 0
	}
}

// snapshotQuantiles 返回累计样本数与各分位数
// q>=1 即窗口最大值
func (w *rollingWindow) snapshotQuantiles(qs ...float64) (count int64, values []int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	count = w.count
	if len(w.buf) == 0 {
		return count, make([]int64, len(qs))
	}

	tmp := make([]int64, len(w.buf))
	copy(tmp, w.buf)
	sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })

	values = make([]int64, len(qs))
	n := len(tmp)
	for i, q := range qs {
		switch {
		case q <= 0:
			values[i] = tmp[0]
		case q >= 1:
			values[i] = tmp[n-1]
		default:
			values[i] = tmp[int(float64(n-1)*q)]
		}
	}
	return count, values
}

// Tracker 时延追踪器
// 处理耗时与重新同步耗时各自维护一个滚动窗口。
type Tracker struct {
	process *rollingWindow
	resync  *rollingWindow
}

// NewTracker 创建时延追踪器
// 参数 windowSize: 滚动窗口大小（建议 10000），用于 P50/P90/P99。
func NewTracker(windowSize int) *Tracker {
	return &Tracker{
		process: newRollingWindow(windowSize),
		resync:  newRollingWindow(windowSize),
	}
}

// AddProcess 记录一条消息的处理耗时，负值忽略
func (t *Tracker) AddProcess(d time.Duration) {
	if d < 0 {
		return
	}
	t.process.add(d.Nanoseconds())
}

// AddResync 记录一次重新同步的耗时，负值忽略
func (t *Tracker) AddResync(d time.Duration) {
	if d < 0 {
		return
	}
	t.resync.add(d.Nanoseconds())
}

// Stats 获取指定类型的统计快照
// 参数 kind: process 或 resync
func (t *Tracker) Stats(kind string) LatencyStats {
	var w *rollingWindow
	switch kind {
	case KindProcess:
		w = t.process
	case KindResync:
		w = t.resync
	default:
		return LatencyStats{Kind: kind}
	}

	count, qs := w.snapshotQuantiles(0.50, 0.90, 0.99, 1)
	return LatencyStats{
		Kind:  kind,
		Count: count,
		P50Ms: float64(qs[0]) / 1_000_000.0,
		P90Ms: float64(qs[1]) / 1_000_000.0,
		P99Ms: float64(qs[2]) / 1_000_000.0,
		MaxMs: float64(qs[3]) / 1_000_000.0,
	}
}
