// Package model 定义行情处理器中使用的核心数据结构。
// 包含价格档位、订单簿、快照、增量事件等类型。
package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Side 买卖方向
// 对应上游消息中的可选 isBuy 字段
type Side uint8

const (
	// SideNone 方向缺失（DISCONNECT 事件或字段未填）
	SideNone Side = iota
	// SideBid 买盘
	SideBid
	// SideAsk 卖盘
	SideAsk
)

// SideFromIsBuy 将 isBuy 标志转换为 Side
func SideFromIsBuy(isBuy bool) Side {
	if isBuy {
		return SideBid
	}
	return SideAsk
}

// String 返回方向名称
func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	default:
		return "none"
	}
}

// Level 订单簿价格档位
type Level struct {
	// Price 价格
	Price decimal.Decimal `json:"price"`
	// Qty 挂单数量
	// 允许为负：负数 CHANGE 调整后按原值保存，不自动删除
	Qty int64 `json:"qty"`
}

// NewLevel 由价格字符串构造档位，价格非法时 panic
// 仅用于常量与测试数据
func NewLevel(price string, qty int64) Level {
	return Level{Price: decimal.RequireFromString(price), Qty: qty}
}

// OrderBook 订单簿的值形式
// 用于快照载荷、对外输出与比较；实时簿由 book.Book 维护
type OrderBook struct {
	// Bids 买盘档位
	Bids []Level `json:"bids"`
	// Asks 卖盘档位
	Asks []Level `json:"asks"`
}

// Clone 创建 OrderBook 的深拷贝
func (b OrderBook) Clone() OrderBook {
	return OrderBook{
		Bids: cloneLevels(b.Bids),
		Asks: cloneLevels(b.Asks),
	}
}

// Sorted 返回排序后的拷贝：买盘价格降序，卖盘价格升序
func (b OrderBook) Sorted() OrderBook {
	out := b.Clone()
	sort.SliceStable(out.Bids, func(i, j int) bool { return out.Bids[i].Price.GreaterThan(out.Bids[j].Price) })
	sort.SliceStable(out.Asks, func(i, j int) bool { return out.Asks[i].Price.LessThan(out.Asks[j].Price) })
	return out
}

// Equal 判断两个订单簿内容是否一致
// 价格按数值比较（1.50 与 1.5 视为同一档位），与档位顺序无关
func (b OrderBook) Equal(other OrderBook) bool {
	return levelsEqual(b.Bids, other.Bids) && levelsEqual(b.Asks, other.Asks)
}

// Snapshot 某一序列号时刻的完整订单簿
type Snapshot struct {
	// Book 订单簿内容
	Book OrderBook `json:"book"`
	// AsOfSeq 快照对应的序列号
	AsOfSeq int64 `json:"as_of_seq"`
}

func (Snapshot) isMessage() {}

func cloneLevels(levels []Level) []Level {
	if levels == nil {
		return nil
	}
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}

// levelsEqual 以价格为键比较两组档位，重复价格后写覆盖先写
func levelsEqual(a, b []Level) bool {
	am := levelMap(a)
	bm := levelMap(b)
	if len(am) != len(bm) {
		return false
	}
	for k, qty := range am {
		other, ok := bm[k]
		if !ok || other != qty {
			return false
		}
	}
	return true
}

func levelMap(levels []Level) map[string]int64 {
	m := make(map[string]int64, len(levels))
	for _, l := range levels {
		m[PriceKey(l.Price)] = l.Qty
	}
	return m
}
