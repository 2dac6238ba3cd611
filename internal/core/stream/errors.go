package stream

import (
	"fmt"

	"feed-handler/internal/core/model"
)

// MalformedEventError 事件缺少其类型所需的字段，或类型无法识别
type MalformedEventError struct {
	Seq    int64
	Kind   model.EventKind
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s event seq=%d: %s", e.Kind, e.Seq, e.Reason)
}

// SequenceGapError 已同步状态下收到的序列号不连续（仅在 resync_on_gap 开启时产生）
type SequenceGapError struct {
	Expected int64
	Got      int64
}

func (e *SequenceGapError) Error() string {
	return fmt.Sprintf("sequence gap: expected %d, got %d", e.Expected, e.Got)
}

// StaleEventError 已同步状态下收到序列号不大于当前值的重复事件（仅在 resync_on_gap 开启时产生）
// 事件被丢弃，序列号不变，不触发断线
type StaleEventError struct {
	Seq     int64
	Current int64
}

func (e *StaleEventError) Error() string {
	return fmt.Sprintf("stale event: seq %d <= current %d", e.Seq, e.Current)
}

// MalformedSnapshotError 快照档位不合法，整条快照被拒绝
type MalformedSnapshotError struct {
	AsOfSeq int64
	Err     error
}

func (e *MalformedSnapshotError) Error() string {
	return fmt.Sprintf("malformed snapshot as_of_seq=%d: %v", e.AsOfSeq, e.Err)
}

func (e *MalformedSnapshotError) Unwrap() error {
	return e.Err
}

// EventError 将单个事件与其处理错误绑定，用于按事件上报
type EventError struct {
	Event model.Event
	Err   error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("%s seq=%d: %v", e.Event.Kind, e.Event.Seq, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}
