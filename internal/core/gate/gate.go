// Package gate 实现断线期间的事件缓存与重连后的顺序回放。
//
// 断线时收到的事件按序列号缓存（同一序列号后写覆盖先写）；
// 收到新快照后，丢弃序列号 <= 快照序列号的缓存事件，其余按序列号升序回放。
package gate

import (
	"sort"
	"time"

	"go.uber.org/multierr"

	"feed-handler/internal/core/model"
)

// Target 回放目标，由 stream.Processor 实现
type Target interface {
	// ApplySnapshot 用快照重建订单簿并重置序列号
	ApplySnapshot(s model.Snapshot)
	// ApplyEvent 应用单个事件；DISCONNECT 会回调 Gate.Disconnect
	ApplyEvent(ev model.Event) error
	// Seq 当前序列号
	Seq() int64
}

// ReplayResult 一次重连回放的统计
type ReplayResult struct {
	// Replayed 回放的事件数
	Replayed int
	// Discarded 作为过期事件丢弃的数量
	Discarded int
	// Requeued 回放中再次断线后退回缓存的数量（含被 target 放回缓存的事件本身）
	Requeued int
}

// Gate 序列号闸门（非并发安全，由 Processor 的锁保护）
type Gate struct {
	// connected 是否已同步
	connected bool
	// pending 断线期间缓存的事件，key 为序列号
	pending map[int64]model.Event
	// disconnectedAt 最近一次断线时间（纳秒），0 表示从未同步
	disconnectedAt int64
	// last 最近一次回放统计
	last ReplayResult
}

// New 创建闸门，初始为断线状态
func New() *Gate {
	return &Gate{
		pending: make(map[int64]model.Event),
	}
}

// Connected 是否处于已同步状态
func (g *Gate) Connected() bool {
	return g.connected
}

// Disconnect 切换到断线状态
// 参数 nowNs: 断线时间（纳秒）
func (g *Gate) Disconnect(nowNs int64) {
	g.connected = false
	g.disconnectedAt = nowNs
}

// Hold 缓存事件
// 返回: 是否覆盖了同一序列号的旧事件
func (g *Gate) Hold(ev model.Event) (replaced bool) {
	_, replaced = g.pending[ev.Seq]
	g.pending[ev.Seq] = ev
	return replaced
}

// Pending 返回缓存事件数
func (g *Gate) Pending() int {
	return len(g.pending)
}

// LastReplay 返回最近一次重连回放的统计
func (g *Gate) LastReplay() ReplayResult {
	return g.last
}

// DisconnectedFor 返回断线已持续的时间；已同步时返回 0
// 从未同步过（初始状态）时以 disconnectedAt=0 计，返回 0
func (g *Gate) DisconnectedFor(nowNs int64) time.Duration {
	if g.connected || g.disconnectedAt == 0 {
		return 0
	}
	return time.Duration(nowNs - g.disconnectedAt)
}

// OnMessage 路由一条消息
//
// 断线 + 快照: 重建后回放缓存，切换为已同步。
// 断线 + 事件: 缓存。
// 已同步 + 事件: 直接交给 target。
// 已同步 + 快照: 重新对齐基准，不涉及缓存。
//
// 返回值聚合了本条消息（含回放事件）产生的全部错误，可用 multierr.Errors 拆分。
func (g *Gate) OnMessage(target Target, msg model.Message) error {
	switch m := msg.(type) {
	case model.Snapshot:
		target.ApplySnapshot(m)
		if g.connected {
			return nil
		}
		return g.resync(target)

	case model.Event:
		if !g.connected {
			g.Hold(m)
			return nil
		}
		return target.ApplyEvent(m)

	default:
		return nil
	}
}

// resync 在快照已应用后回放缓存
func (g *Gate) resync(target Target) error {
	replay, discarded := g.drain(target.Seq())
	g.connected = true
	g.disconnectedAt = 0
	g.last = ReplayResult{Discarded: discarded}

	var errs error
	for i, ev := range replay {
		errs = multierr.Append(errs, target.ApplyEvent(ev))
		// target 可能把事件本身放回缓存（序列号不连续），此时不算已回放
		if _, held := g.pending[ev.Seq]; held {
			g.last.Requeued++
		} else {
			g.last.Replayed++
		}
		if !g.connected {
			// 回放中再次断线，剩余事件退回缓存等待下一次快照
			for _, rest := range replay[i+1:] {
				g.pending[rest.Seq] = rest
			}
			g.last.Requeued += len(replay) - i - 1
			break
		}
	}
	return errs
}

// drain 取出并清空缓存
// 返回: 序列号 > asOf 的事件（升序）与被丢弃的过期事件数
func (g *Gate) drain(asOf int64) ([]model.Event, int) {
	seqs := make([]int64, 0, len(g.pending))
	for seq := range g.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	replay := make([]model.Event, 0, len(seqs))
	discarded := 0
	for _, seq := range seqs {
		if seq <= asOf {
			discarded++
			continue
		}
		replay = append(replay, g.pending[seq])
	}
	clear(g.pending)
	return replay, discarded
}
