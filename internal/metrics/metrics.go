package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
)

// Metrics groups the engine's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	rpcCalls     *prometheus.CounterVec
	rpcLatency   *prometheus.HistogramVec
	reads        *prometheus.CounterVec
	submissions  *prometheus.CounterVec
	vaultDenials prometheus.Counter
}

// New builds the collectors and registers them with reg. A nil registerer
// leaves them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blend_rpc_calls_total",
			Help: "Soroban RPC calls by method and error kind.",
		}, []string{"method", "result"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blend_rpc_latency_seconds",
			Help:    "Soroban RPC call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blend_ledger_reads_total",
			Help: "Logical ledger reads by field, provenance and result.",
		}, []string{"field", "provenance", "result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blend_submissions_total",
			Help: "Position change attempts by outcome and reason.",
		}, []string{"outcome", "reason"}),
		vaultDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blend_vault_permission_denied_total",
			Help: "Vault requests refused because the caller does not own the account.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.rpcCalls, m.rpcLatency, m.reads, m.submissions, m.vaultDenials)
	}
	return m
}

// ObserveRPC records one RPC round trip.
func (m *Metrics) ObserveRPC(method string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, resultLabel(err)).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveRead records the outcome of one logical read.
func (m *Metrics) ObserveRead(field, provenance string, err error) {
	if m == nil {
		return
	}
	if provenance == "" {
		provenance = "none"
	}
	m.reads.WithLabelValues(field, provenance, resultLabel(err)).Inc()
}

// ObserveSubmission records the terminal outcome of a position change.
func (m *Metrics) ObserveSubmission(outcome, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.submissions.WithLabelValues(outcome, reason).Inc()
}

// PermissionDenied counts a refused vault request.
func (m *Metrics) PermissionDenied() {
	if m == nil {
		return
	}
	m.vaultDenials.Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := errs.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
