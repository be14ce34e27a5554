// Package metrics exposes Prometheus counters for the email channel.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "emailchannel"

// Inbound results
const (
	InboundDispatched = "dispatched"
	InboundRejected   = "rejected"
	InboundFailed     = "failed"
)

// Outbound results
const (
	OutboundSent   = "sent"
	OutboundFailed = "failed"
)

// Pool events
const (
	PoolDial  = "dial"
	PoolReuse = "reuse"
	PoolStale = "stale"
	PoolReap  = "reap"
)

// Metrics groups all collectors
type Metrics struct {
	InboundTotal  *prometheus.CounterVec
	OutboundTotal *prometheus.CounterVec
	Reconnects    *prometheus.CounterVec
	AccountState  *prometheus.GaugeVec
	PollDuration  *prometheus.HistogramVec
	PoolEvents    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers collectors on reg
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		InboundTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound emails by processing result",
		}, []string{"account", "result"}),

		OutboundTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Outbound emails by delivery result",
		}, []string{"account", "result"}),

		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imap_reconnects_total",
			Help:      "IMAP reconnect attempts after a connection failure",
		}, []string{"account"}),

		AccountState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "account_state",
			Help:      "1 for the current poller state of an account",
		}, []string{"account", "state"}),

		PollDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inbox_check_duration_seconds",
			Help:      "Duration of one inbox check",
			Buckets:   prometheus.DefBuckets,
		}, []string{"account"}),

		PoolEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "smtp_pool_events_total",
			Help:      "SMTP transport pool events",
		}, []string{"event"}),

		gatherer: g,
	}
}

func (m *Metrics) Inbound(account, result string) {
	if m == nil {
		return
	}
	m.InboundTotal.WithLabelValues(account, result).Inc()
}

func (m *Metrics) Outbound(account, result string) {
	if m == nil {
		return
	}
	m.OutboundTotal.WithLabelValues(account, result).Inc()
}

func (m *Metrics) Reconnect(account string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(account).Inc()
}

// SetState marks state as the only active state of account
func (m *Metrics) SetState(account, state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.AccountState.WithLabelValues(account, s).Set(v)
	}
}

func (m *Metrics) ObservePoll(account string, d time.Duration) {
	if m == nil {
		return
	}
	m.PollDuration.WithLabelValues(account).Observe(d.Seconds())
}

func (m *Metrics) Pool(event string) {
	if m == nil {
		return
	}
	m.PoolEvents.WithLabelValues(event).Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
