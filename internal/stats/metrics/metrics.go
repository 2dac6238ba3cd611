// Package metrics 将处理器与行情源的运行状态导出为 Prometheus 指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"feed-handler/internal/core/gate"
	"feed-handler/internal/core/model"
	"feed-handler/internal/core/stream"
	"feed-handler/internal/feed"
	"feed-handler/internal/stats/latency"
)

const namespace = "feed_handler"

// Collector 指标收集器，实现 stream.Observer
// 每个 Collector 使用独立的 Registry
type Collector struct {
	reg *prometheus.Registry

	events         *prometheus.CounterVec
	snapshots      prometheus.Counter
	resyncs        prometheus.Counter
	replayed       prometheus.Counter
	discarded      prometheus.Counter
	requeued       prometheus.Counter
	disconnects    *prometheus.CounterVec
	resyncOverdue  prometheus.Counter
	seq            prometheus.Gauge
	connected      prometheus.Gauge
	pending        prometheus.Gauge
	levels         *prometheus.GaugeVec
	sourceMessages *prometheus.GaugeVec
	sourceErrors   *prometheus.GaugeVec
	sourceReconn   *prometheus.GaugeVec
	sourceAgeMs    *prometheus.GaugeVec
	latencyMs      *prometheus.GaugeVec
}

var _ stream.Observer = (*Collector)(nil)

// New 创建收集器并注册全部指标
func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total", Help: "Applied events by kind and result",
		}, []string{"kind", "result"}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "snapshots_total", Help: "Applied snapshots",
		}),
		resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "resyncs_total", Help: "Snapshots that ended a disconnected period",
		}),
		replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "replayed_events_total", Help: "Buffered events replayed after resync",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stale_events_total", Help: "Buffered events discarded as already covered by the snapshot",
		}),
		requeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "requeued_events_total", Help: "Buffered events put back after a disconnect during replay",
		}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "disconnects_total", Help: "Transitions to disconnected by reason",
		}, []string{"reason"}),
		resyncOverdue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "resync_overdue_total", Help: "Checks that found the resync timeout exceeded",
		}),
		seq: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sequence", Help: "Current sequence number",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connected", Help: "1 when synchronised with the upstream",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pending_events", Help: "Events buffered while disconnected",
		}),
		levels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "book_levels", Help: "Price levels per side",
		}, []string{"side"}),
		sourceMessages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "source_messages", Help: "Messages delivered by the source",
		}, []string{"source"}),
		sourceErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "source_parse_errors", Help: "Undecodable messages dropped by the source",
		}, []string{"source"}),
		sourceReconn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "source_reconnects", Help: "Source reconnects",
		}, []string{"source"}),
		sourceAgeMs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "source_last_message_age_ms", Help: "Milliseconds since the last delivered message",
		}, []string{"source"}),
		latencyMs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "latency_ms", Help: "Rolling latency quantiles",
		}, []string{"kind", "quantile"}),
	}

	c.reg.MustRegister(
		c.events, c.snapshots, c.resyncs, c.replayed, c.discarded, c.requeued,
		c.disconnects, c.resyncOverdue, c.seq, c.connected, c.pending, c.levels,
		c.sourceMessages, c.sourceErrors, c.sourceReconn, c.sourceAgeMs, c.latencyMs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry 返回收集器使用的 Registry
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler 返回 /metrics 的 HTTP 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// OnEvent 实现 stream.Observer
func (c *Collector) OnEvent(kind model.EventKind, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.events.WithLabelValues(kind.String(), result).Inc()
}

// OnSnapshot 实现 stream.Observer
func (c *Collector) OnSnapshot(int64) { c.snapshots.Inc() }

// OnResync 实现 stream.Observer
func (c *Collector) OnResync(r gate.ReplayResult) {
	c.resyncs.Inc()
	c.replayed.Add(float64(r.Replayed))
	c.discarded.Add(float64(r.Discarded))
	c.requeued.Add(float64(r.Requeued))
}

// OnDisconnect 实现 stream.Observer
func (c *Collector) OnDisconnect(reason string) {
	c.disconnects.WithLabelValues(reason).Inc()
}

// OnState 实现 stream.Observer
func (c *Collector) OnState(s stream.State) {
	c.seq.Set(float64(s.Seq))
	if s.Connected {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
	c.pending.Set(float64(s.Pending))
	c.levels.WithLabelValues(model.SideBid.String()).Set(float64(s.Bids))
	c.levels.WithLabelValues(model.SideAsk.String()).Set(float64(s.Asks))
}

// ResyncOverdue 记录一次重新同步超时
func (c *Collector) ResyncOverdue() { c.resyncOverdue.Inc() }

// ObserveSource 更新行情源连接指标
func (c *Collector) ObserveSource(name string, m feed.ConnectionMetrics) {
	c.sourceMessages.WithLabelValues(name).Set(float64(m.Messages))
	c.sourceErrors.WithLabelValues(name).Set(float64(m.ParseErrors))
	c.sourceReconn.WithLabelValues(name).Set(float64(m.Reconnects))
	c.sourceAgeMs.WithLabelValues(name).Set(float64(m.LastMessageAgeMs))
}

// ObserveLatency 更新时延分位数
func (c *Collector) ObserveLatency(s latency.LatencyStats) {
	c.latencyMs.WithLabelValues(s.Kind, "0.5").Set(s.P50Ms)
	c.latencyMs.WithLabelValues(s.Kind, "0.9").Set(s.P90Ms)
	c.latencyMs.WithLabelValues(s.Kind, "0.99").Set(s.P99Ms)
	c.latencyMs.WithLabelValues(s.Kind, "1").Set(s.MaxMs)
}
