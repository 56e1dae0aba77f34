package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "texgate"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	compileDuration *prom.HistogramVec
	compiles        *prom.CounterVec
	artifactBytes   prom.Histogram
	rejected        *prom.CounterVec
	swept           prom.Counter
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder constructs the metrics and registers them on reg.
// activeWorkspaces, when non-nil, backs a gauge of in-flight workspaces.
func NewPrometheusRecorder(reg *prom.Registry, activeWorkspaces func() int) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		compileDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_duration_seconds",
			Help:      "Wall-clock duration of compile requests including all engine passes",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		compiles: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "compiles_total",
			Help:      "Compile requests by outcome and number of engine passes run",
		}, []string{"outcome", "passes"}),
		artifactBytes: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of artifacts returned to clients",
			Buckets:   prom.ExponentialBuckets(4096, 4, 8),
		}),
		rejected: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_requests_total",
			Help:      "Requests rejected before compilation by error kind and reason",
		}, []string{"kind", "reason"}),
		swept: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "swept_workspaces_total",
			Help:      "Stale workspaces removed by the sweeper",
		}),
	}
	reg.MustRegister(pr.compileDuration, pr.compiles, pr.artifactBytes, pr.rejected, pr.swept)

	if activeWorkspaces != nil {
		reg.MustRegister(prom.NewGaugeFunc(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workspaces",
			Help:      "Workspaces currently held by in-flight requests",
		}, func() float64 { return float64(activeWorkspaces()) }))
	}
	return pr
}

func (p *PrometheusRecorder) ObserveCompile(outcome Outcome, passes int, d time.Duration) {
	if p == nil {
		return
	}
	p.compileDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
	p.compiles.WithLabelValues(string(outcome), strconv.Itoa(passes)).Inc()
}

func (p *PrometheusRecorder) ObserveArtifactBytes(n int) {
	if p == nil {
		return
	}
	p.artifactBytes.Observe(float64(n))
}

func (p *PrometheusRecorder) IncRejected(kind, reason string) {
	if p == nil {
		return
	}
	p.rejected.WithLabelValues(kind, reason).Inc()
}

func (p *PrometheusRecorder) IncSweptWorkspaces(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.swept.Add(float64(n))
}
