package stream

import (
	"feed-handler/internal/core/gate"
	"feed-handler/internal/core/model"
)

// State 处理器状态摘要
type State struct {
	Seq       int64 `json:"seq"`
	Connected bool  `json:"connected"`
	Pending   int   `json:"pending"`
	Bids      int   `json:"bids"`
	Asks      int   `json:"asks"`
}

// Observer 处理过程的观测回调，均在处理器锁内同步调用，实现方不得回调处理器
type Observer interface {
	// OnEvent 每个被应用的事件（含回放）调用一次，err 为该事件的处理错误
	OnEvent(kind model.EventKind, err error)
	// OnSnapshot 每次应用快照时调用
	OnSnapshot(asOfSeq int64)
	// OnResync 断线后收到快照并完成回放时调用
	OnResync(r gate.ReplayResult)
	// OnDisconnect 进入断线状态时调用
	OnDisconnect(reason string)
	// OnState 每条消息处理完成后调用
	OnState(s State)
}

// Reporter 接收单条消息的失败报告
type Reporter interface {
	Report(r model.ErrorReport)
}

// ReporterFunc 函数适配器
type ReporterFunc func(r model.ErrorReport)

// Report 实现 Reporter
func (f ReporterFunc) Report(r model.ErrorReport) { f(r) }

type nopObserver struct{}

func (nopObserver) OnEvent(model.EventKind, error) {}
func (nopObserver) OnSnapshot(int64)               {}
func (nopObserver) OnResync(gate.ReplayResult)     {}
func (nopObserver) OnDisconnect(string)            {}
func (nopObserver) OnState(State)                  {}
