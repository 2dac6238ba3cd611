package model

import (
	"github.com/shopspring/decimal"
)

// EventKind 增量事件类型
type EventKind uint8

const (
	// EventUnknown 未识别的事件类型
	EventUnknown EventKind = iota
	// EventDisconnect 上游断线
	EventDisconnect
	// EventAdd 新增档位（覆盖写）
	EventAdd
	// EventChange 修改档位：负数为增量，非负为绝对值
	EventChange
	// EventDelete 删除档位
	EventDelete
)

var eventKindNames = map[EventKind]string{
	EventDisconnect: "DISCONNECT",
	EventAdd:        "ADD",
	EventChange:     "CHANGE",
	EventDelete:     "DELETE",
}

// String 返回事件类型名称
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseEventKind 解析事件类型名称，未知名称返回 EventUnknown
func ParseEventKind(name string) EventKind {
	for k, v := range eventKindNames {
		if v == name {
			return k
		}
	}
	return EventUnknown
}

// Qty 可选数量
type Qty struct {
	Value int64
	Valid bool
}

// Message 处理器可接收的消息：Event 或 Snapshot
type Message interface {
	isMessage()
}

// Event 增量事件
// DISCONNECT 不携带价格、数量与方向
type Event struct {
	// Kind 事件类型
	Kind EventKind
	// Seq 序列号
	Seq int64
	// Side 方向，缺失时为 SideNone
	Side Side
	// Price 价格，可缺失
	Price decimal.NullDecimal
	// Qty 数量，可缺失
	Qty Qty
}

func (Event) isMessage() {}

// Disconnect 构造 DISCONNECT 事件
func Disconnect(seq int64) Event {
	return Event{Kind: EventDisconnect, Seq: seq}
}

// Add 构造 ADD 事件
func Add(seq int64, isBuy bool, price string, qty int64) Event {
	return priced(EventAdd, seq, isBuy, price, Qty{Value: qty, Valid: true})
}

// Change 构造 CHANGE 事件
func Change(seq int64, isBuy bool, price string, qty int64) Event {
	return priced(EventChange, seq, isBuy, price, Qty{Value: qty, Valid: true})
}

// Delete 构造 DELETE 事件
func Delete(seq int64, isBuy bool, price string) Event {
	return priced(EventDelete, seq, isBuy, price, Qty{})
}

func priced(kind EventKind, seq int64, isBuy bool, price string, qty Qty) Event {
	return Event{
		Kind:  kind,
		Seq:   seq,
		Side:  SideFromIsBuy(isBuy),
		Price: decimal.NewNullDecimal(decimal.RequireFromString(price)),
		Qty:   qty,
	}
}

// ErrorReport 单条消息处理失败的报告
// 写入 errors.jsonl，供下游消费方核对
type ErrorReport struct {
	// Session 会话 ID
	Session string `json:"session"`
	// TsUnixNs 报告时间（纳秒）
	TsUnixNs int64 `json:"ts_unix_ns"`
	// Kind 失败消息的事件类型
	Kind string `json:"kind"`
	// Seq 失败消息的序列号
	Seq int64 `json:"seq"`
	// CurrentSeq 报告时处理器的当前序列号
	CurrentSeq int64 `json:"current_seq"`
	// Error 错误描述
	Error string `json:"error"`
}
