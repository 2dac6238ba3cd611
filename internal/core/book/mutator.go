package book

import (
	"fmt"

	"feed-handler/internal/core/model"
)

// Apply 将 ADD/CHANGE/DELETE 事件应用到档位簿
//
// ADD: 价格缺失时不做任何修改；否则覆盖写（不累加）。
// CHANGE: 数量为负时叠加到已有档位，否则按绝对值覆盖写。
// DELETE: 删除档位，不存在时返回 *LevelNotFoundError。
//
// 字段完整性由调用方（stream.Processor）校验；DISCONNECT 等其他类型返回 ErrUnsupportedKind。
func Apply(b *Book, ev model.Event) error {
	switch ev.Kind {
	case model.EventAdd:
		if !ev.Price.Valid {
			return nil
		}
		b.SetLevel(ev.Side, ev.Price.Decimal, ev.Qty.Value)
		return nil

	case model.EventChange:
		if ev.Qty.Value < 0 {
			return b.AdjustLevel(ev.Side, ev.Price.Decimal, ev.Qty.Value)
		}
		// 卖方向的非负 CHANGE 写入 asks，与买方向对称
		b.SetLevel(ev.Side, ev.Price.Decimal, ev.Qty.Value)
		return nil

	case model.EventDelete:
		return b.RemoveLevel(ev.Side, ev.Price.Decimal)

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, ev.Kind)
	}
}
