// Package stream 实现订单簿事件流处理器。
//
// 处理器在 断线/已同步 两个状态间切换：
// 初始为断线；断线时收到快照即重建订单簿并回放缓存，进入已同步；
// 已同步时收到 DISCONNECT 事件即保存当前订单簿、清空并回到断线。
// 每个被应用的事件（包括 DISCONNECT 和处理失败的事件）都使序列号加 1。
package stream

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"feed-handler/internal/config"
	"feed-handler/internal/core/book"
	"feed-handler/internal/core/gate"
	"feed-handler/internal/core/model"
	"feed-handler/internal/util/timeutil"
)

// Processor 订单簿事件流处理器
// ProcessMessage 与所有读取方法共用一把锁，外部不会观察到半更新的状态。
type Processor struct {
	mu sync.Mutex

	// cfg 流处理配置
	cfg config.StreamConfig
	// logger 日志记录器
	logger *zap.Logger
	// book 实时订单簿
	book *book.Book
	// gate 断线缓存与回放
	gate *gate.Gate
	// seq 当前序列号
	seq int64
	// lastDisconnect 最近一次断线前的订单簿
	lastDisconnect model.Snapshot
	// session 会话 ID，写入错误报告
	session string

	observer Observer
	reporter Reporter
	now      func() int64
}

// NewProcessor 创建处理器
// 参数 cfg: 流处理配置
// 参数 logger: 日志记录器
func NewProcessor(cfg config.StreamConfig, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		cfg:      cfg,
		logger:   logger.Named("stream"),
		book:     book.New(),
		gate:     gate.New(),
		session:  uuid.NewString(),
		observer: nopObserver{},
		now:      timeutil.NowNano,
	}
}

// SetObserver 设置观测回调，需在处理消息前调用
func (p *Processor) SetObserver(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if o == nil {
		o = nopObserver{}
	}
	p.observer = o
}

// SetReporter 设置失败报告接收方，需在处理消息前调用
func (p *Processor) SetReporter(r Reporter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reporter = r
}

// ProcessMessage 处理一条快照或事件
//
// 失败只影响本条消息：错误会被记录、上报并返回，之后的消息照常处理。
// 重连回放多个事件时，返回值聚合了各事件的错误（multierr）。
func (p *Processor) ProcessMessage(msg model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap, isSnapshot := msg.(model.Snapshot)
	if isSnapshot {
		if err := checkSnapshot(snap); err != nil {
			p.report(err)
			p.observer.OnState(p.stateLocked())
			return err
		}
	}
	wasConnected := p.gate.Connected()

	err := p.gate.OnMessage(applier{p}, msg)

	if isSnapshot && !wasConnected {
		r := p.gate.LastReplay()
		p.observer.OnResync(r)
		p.logger.Info("重新同步完成",
			zap.Int64("seq", p.seq),
			zap.Int("replayed", r.Replayed),
			zap.Int("discarded", r.Discarded),
			zap.Int("requeued", r.Requeued))
	}

	for _, e := range multierr.Errors(err) {
		p.report(e)
	}
	p.observer.OnState(p.stateLocked())
	return err
}

// applier 将 gate.Target 接到处理器内部方法上，不对外暴露
type applier struct{ p *Processor }

func (a applier) ApplySnapshot(s model.Snapshot)  { a.p.applySnapshot(s) }
func (a applier) ApplyEvent(ev model.Event) error { return a.p.applyEvent(ev) }
func (a applier) Seq() int64                      { return a.p.seq }

// applySnapshot 用快照替换订单簿（深拷贝）并重置序列号
func (p *Processor) applySnapshot(s model.Snapshot) {
	p.seq = s.AsOfSeq
	p.book.Replace(s.Book)
	p.observer.OnSnapshot(s.AsOfSeq)
	p.logger.Info("应用快照",
		zap.Int64("as_of_seq", s.AsOfSeq),
		zap.Int("bids", len(s.Book.Bids)),
		zap.Int("asks", len(s.Book.Asks)))
}

// applyEvent 分发单个事件，之后序列号加 1
func (p *Processor) applyEvent(ev model.Event) error {
	if p.cfg.ResyncOnGap && ev.Kind != model.EventDisconnect {
		// 重复或过期的事件丢弃即可，不值得清空订单簿
		if ev.Seq <= p.seq {
			staleErr := &StaleEventError{Seq: ev.Seq, Current: p.seq}
			p.observer.OnEvent(ev.Kind, staleErr)
			return &EventError{Event: ev, Err: staleErr}
		}
		if ev.Seq != p.seq+1 {
			gapErr := &SequenceGapError{Expected: p.seq + 1, Got: ev.Seq}
			p.disconnect("sequence gap")
			p.gate.Hold(ev)
			p.observer.OnEvent(ev.Kind, gapErr)
			return &EventError{Event: ev, Err: gapErr}
		}
	}

	var err error
	switch ev.Kind {
	case model.EventDisconnect:
		p.disconnect("upstream")
	case model.EventAdd, model.EventChange, model.EventDelete:
		if err = validate(ev); err == nil {
			err = book.Apply(p.book, ev)
		}
	default:
		err = &MalformedEventError{Seq: ev.Seq, Kind: ev.Kind, Reason: "unrecognized event kind"}
	}
	p.seq++

	p.observer.OnEvent(ev.Kind, err)
	if err != nil {
		return &EventError{Event: ev, Err: err}
	}

	// 价格已通过校验后才输出
	p.logger.Debug("处理事件",
		zap.Stringer("kind", ev.Kind),
		zap.Int64("seq", ev.Seq),
		zap.Stringer("side", ev.Side),
		zap.Stringer("price", ev.Price.Decimal),
		zap.Int64("qty", ev.Qty.Value))
	return nil
}

// disconnect 保存当前订单簿后清空，切换到断线状态
func (p *Processor) disconnect(reason string) {
	p.lastDisconnect = model.Snapshot{Book: p.book.View(), AsOfSeq: p.seq}
	p.book.Clear()
	p.gate.Disconnect(p.now())
	p.observer.OnDisconnect(reason)
	p.logger.Info("进入断线状态", zap.String("reason", reason), zap.Int64("seq", p.seq))
}

// validate 检查事件字段完整性
// 无价格的 ADD 视为空操作，不算错误
func validate(ev model.Event) error {
	malformed := func(reason string) error {
		return &MalformedEventError{Seq: ev.Seq, Kind: ev.Kind, Reason: reason}
	}

	switch ev.Kind {
	case model.EventAdd:
		if !ev.Price.Valid {
			return nil
		}
		if !ev.Qty.Valid {
			return malformed("missing quantity")
		}
	case model.EventChange:
		if !ev.Price.Valid {
			return malformed("missing price")
		}
		if !ev.Qty.Valid {
			return malformed("missing quantity")
		}
	case model.EventDelete:
		if !ev.Price.Valid {
			return malformed("missing price")
		}
	}
	if ev.Side == model.SideNone {
		return malformed("missing side")
	}
	if ev.Price.Valid && model.CheckPrice(ev.Price.Decimal) != nil {
		return malformed("price out of range")
	}
	return nil
}

// checkSnapshot 检查快照档位价格
func checkSnapshot(s model.Snapshot) error {
	if err := model.CheckLevels(s.Book.Bids); err != nil {
		return &MalformedSnapshotError{AsOfSeq: s.AsOfSeq, Err: err}
	}
	if err := model.CheckLevels(s.Book.Asks); err != nil {
		return &MalformedSnapshotError{AsOfSeq: s.AsOfSeq, Err: err}
	}
	return nil
}

// report 记录并上报单个错误
func (p *Processor) report(err error) {
	r := model.ErrorReport{
		Session:    p.session,
		TsUnixNs:   p.now(),
		Kind:       model.EventUnknown.String(),
		CurrentSeq: p.seq,
		Error:      err.Error(),
	}
	var evErr *EventError
	var snapErr *MalformedSnapshotError
	switch {
	case errors.As(err, &evErr):
		r.Kind = evErr.Event.Kind.String()
		r.Seq = evErr.Event.Seq
		r.Error = evErr.Err.Error()
	case errors.As(err, &snapErr):
		r.Kind = "SNAPSHOT"
		r.Seq = snapErr.AsOfSeq
	}

	p.logger.Warn("消息处理失败",
		zap.String("kind", r.Kind),
		zap.Int64("seq", r.Seq),
		zap.Int64("current_seq", r.CurrentSeq),
		zap.Error(err))

	if p.reporter != nil {
		p.reporter.Report(r)
	}
}

func (p *Processor) stateLocked() State {
	return State{
		Seq:       p.seq,
		Connected: p.gate.Connected(),
		Pending:   p.gate.Pending(),
		Bids:      p.book.Len(model.SideBid),
		Asks:      p.book.Len(model.SideAsk),
	}
}

// Book 返回当前订单簿的排序拷贝
func (p *Processor) Book() model.OrderBook {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.book.View()
}

// Seq 返回当前序列号
func (p *Processor) Seq() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

// Connected 是否处于已同步状态
func (p *Processor) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gate.Connected()
}

// Pending 返回断线缓存中的事件数
func (p *Processor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gate.Pending()
}

// State 返回状态摘要
func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

// LastDisconnect 返回最近一次断线前保存的订单簿
func (p *Processor) LastDisconnect() model.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return model.Snapshot{Book: p.lastDisconnect.Book.Clone(), AsOfSeq: p.lastDisconnect.AsOfSeq}
}

// Session 返回会话 ID
func (p *Processor) Session() string {
	return p.session
}

// ResyncOverdue 断线持续时间是否超过 resync_timeout_ms
// 超时只用于告警，不改变状态
func (p *Processor) ResyncOverdue() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.gate.DisconnectedFor(p.now())
	if p.cfg.ResyncTimeoutMs <= 0 || d == 0 {
		return d, false
	}
	return d, d > time.Duration(p.cfg.ResyncTimeoutMs)*time.Millisecond
}
