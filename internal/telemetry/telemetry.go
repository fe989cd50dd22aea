// Package telemetry counts the agent's externally interesting events.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives event counts from the agent. Implementations must
// be safe for concurrent use.
type Recorder interface {
	CheckStarted(forced bool)
	CheckFinished(outcome string)
	CheckFailed(kind string)
	DownloadFinished(bytes int64, seconds float64)
	TrustVerdict(verdict string)
}

// Nop discards all events.
type Nop struct{}

func (Nop) CheckStarted(bool)               {}
func (Nop) CheckFinished(string)            {}
func (Nop) CheckFailed(string)              {}
func (Nop) DownloadFinished(int64, float64) {}
func (Nop) TrustVerdict(string)             {}

// PromRecorder exposes the event counts as Prometheus metrics on its
// own registry, kept private so tests never collide on the default one.
type PromRecorder struct {
	registry *prometheus.Registry

	checksStarted   *prometheus.CounterVec
	checkOutcomes   *prometheus.CounterVec
	checkFailures   *prometheus.CounterVec
	downloadBytes   prometheus.Counter
	downloadSeconds prometheus.Histogram
	trustVerdicts   *prometheus.CounterVec
}

// NewPromRecorder creates a recorder with a fresh registry.
func NewPromRecorder() *PromRecorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PromRecorder{
		registry: reg,
		checksStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upcast_checks_started_total",
				Help: "Total number of update checks started.",
			},
			[]string{"mode"}, // mode: normal/forced
		),
		checkOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upcast_check_outcomes_total",
				Help: "Total number of finished update checks by outcome.",
			},
			[]string{"outcome"},
		),
		checkFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upcast_check_failures_total",
				Help: "Total number of update checks that failed.",
			},
			[]string{"kind"}, // kind: fetch/parse/decide
		),
		downloadBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "upcast_download_bytes_total",
				Help: "Total bytes of artifact payload downloaded.",
			},
		),
		downloadSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "upcast_download_duration_seconds",
				Help:    "Time spent downloading artifacts.",
				Buckets: prometheus.DefBuckets,
			},
		),
		trustVerdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upcast_trust_verdicts_total",
				Help: "Total number of trust gate verdicts.",
			},
			[]string{"verdict"},
		),
	}
}

// Registry returns the recorder's private registry for serving /metrics.
func (r *PromRecorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *PromRecorder) CheckStarted(forced bool) {
	mode := "normal"
	if forced {
		mode = "forced"
	}
	r.checksStarted.WithLabelValues(mode).Inc()
}

func (r *PromRecorder) CheckFinished(outcome string) {
	r.checkOutcomes.WithLabelValues(outcome).Inc()
}

func (r *PromRecorder) CheckFailed(kind string) {
	r.checkFailures.WithLabelValues(kind).Inc()
}

func (r *PromRecorder) DownloadFinished(bytes int64, seconds float64) {
	r.downloadBytes.Add(float64(bytes))
	r.downloadSeconds.Observe(seconds)
}

func (r *PromRecorder) TrustVerdict(verdict string) {
	r.trustVerdicts.WithLabelValues(verdict).Inc()
}
