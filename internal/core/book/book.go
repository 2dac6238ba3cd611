// Package book 维护单一品种的价格档位簿，并把增量事件翻译为档位操作。
package book

import (
	"github.com/shopspring/decimal"

	"feed-handler/internal/core/model"
)

// Book 价格档位簿
// 每一侧为 价格 -> 档位 的映射，键为 model.PriceKey（1.50 与 1.5 落在同一键）。
// 非并发安全，由 stream.Processor 串行访问。
type Book struct {
	bids map[string]model.Level
	asks map[string]model.Level
}

// New 创建空的档位簿
func New() *Book {
	return &Book{
		bids: make(map[string]model.Level),
		asks: make(map[string]model.Level),
	}
}

// FromOrderBook 由 OrderBook 值构造档位簿（深拷贝）
func FromOrderBook(ob model.OrderBook) *Book {
	b := New()
	b.Replace(ob)
	return b
}

func priceKey(price decimal.Decimal) string {
	return model.PriceKey(price)
}

func (b *Book) side(side model.Side) map[string]model.Level {
	if side == model.SideBid {
		return b.bids
	}
	return b.asks
}

// SetLevel 插入或覆盖档位
func (b *Book) SetLevel(side model.Side, price decimal.Decimal, qty int64) {
	b.side(side)[priceKey(price)] = model.Level{Price: price, Qty: qty}
}

// RemoveLevel 删除档位，档位不存在时返回 *LevelNotFoundError
func (b *Book) RemoveLevel(side model.Side, price decimal.Decimal) error {
	levels := b.side(side)
	k := priceKey(price)
	if _, ok := levels[k]; !ok {
		return &LevelNotFoundError{Side: side, Price: price}
	}
	delete(levels, k)
	return nil
}

// AdjustLevel 在已有档位上叠加 delta
// 结果按原值保存（可能 <= 0），档位不存在时返回 *LevelNotFoundError
func (b *Book) AdjustLevel(side model.Side, price decimal.Decimal, delta int64) error {
	levels := b.side(side)
	k := priceKey(price)
	lvl, ok := levels[k]
	if !ok {
		return &LevelNotFoundError{Side: side, Price: price}
	}
	lvl.Qty += delta
	levels[k] = lvl
	return nil
}

// Level 查询档位
func (b *Book) Level(side model.Side, price decimal.Decimal) (model.Level, bool) {
	lvl, ok := b.side(side)[priceKey(price)]
	return lvl, ok
}

// Len 返回某一侧的档位数
func (b *Book) Len(side model.Side) int {
	return len(b.side(side))
}

// Clear 清空两侧
func (b *Book) Clear() {
	clear(b.bids)
	clear(b.asks)
}

// Replace 用 OrderBook 的内容整体替换两侧
// 重复价格后写覆盖先写；调用方之后修改 ob 不影响本簿
func (b *Book) Replace(ob model.OrderBook) {
	b.Clear()
	for _, l := range ob.Bids {
		b.SetLevel(model.SideBid, l.Price, l.Qty)
	}
	for _, l := range ob.Asks {
		b.SetLevel(model.SideAsk, l.Price, l.Qty)
	}
}

// View 返回排序后的 OrderBook 拷贝：买盘降序，卖盘升序
func (b *Book) View() model.OrderBook {
	ob := model.OrderBook{
		Bids: make([]model.Level, 0, len(b.bids)),
		Asks: make([]model.Level, 0, len(b.asks)),
	}
	for _, l := range b.bids {
		ob.Bids = append(ob.Bids, l)
	}
	for _, l := range b.asks {
		ob.Asks = append(ob.Asks, l)
	}
	return ob.Sorted()
}
