package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements every hook interface on a private Prometheus
// registry. A release is a short-lived process, so metrics are exported
// once at exit with [Metrics.WriteTextfile] for the node_exporter
// textfile collector rather than served over HTTP.
type Metrics struct {
	registry *prometheus.Registry

	planDuration    prometheus.Histogram
	manifests       *prometheus.CounterVec
	gitSteps        *prometheus.CounterVec
	publishes       *prometheus.CounterVec
	publishDuration prometheus.Histogram
	skipped         *prometheus.CounterVec
	polls           *prometheus.CounterVec
	visibilityWait  *prometheus.HistogramVec
	cacheOps        *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    prometheus.Histogram
}

// NewMetrics creates the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		planDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "cratestack_plan_duration_seconds",
			Help: "Time spent computing the release plan",
		}),
		manifests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cratestack_manifests_written_total",
			Help: "Manifest files rewritten, by outcome",
		}, []string{"outcome"}),
		gitSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cratestack_git_steps_total",
			Help: "Git mutations, by step and outcome",
		}, []string{"step", "outcome"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cratestack_publish_total",
			Help: "Publish attempts, by outcome",
		}, []string{"outcome"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cratestack_publish_duration_seconds",
			Help:    "Duration of cargo publish invocations",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cratestack_publish_skipped_total",
			Help: "Packages not published, by reason",
		}, []string{"reason"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cratestack_visibility_polls_total",
			Help: "Registry index queries, by answer",
		}, []string{"visible"}),
		visibilityWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cratestack_visibility_wait_seconds",
			Help:    "Time between publish and registry visibility",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"outcome"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cratestack_cache_operations_total",
			Help: "Cache operations, by key type and result",
		}, []string{"type", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cratestack_http_requests_total",
			Help: "Registry HTTP requests, by host and status",
		}, []string{"host", "status"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "cratestack_http_request_duration_seconds",
			Help: "Registry HTTP request latency",
		}),
	}
	m.registry.MustRegister(
		m.planDuration, m.manifests, m.gitSteps,
		m.publishes, m.publishDuration, m.skipped,
		m.polls, m.visibilityWait,
		m.cacheOps, m.httpRequests, m.httpDuration,
	)
	return m
}

// Register installs m as every global hook.
func (m *Metrics) Register() {
	SetReleaseHooks(m)
	SetPublishHooks(m)
	SetCacheHooks(m)
	SetHTTPHooks(m)
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes all metrics in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) OnPlanComplete(_ context.Context, _, _ int, d time.Duration, _ error) {
	m.planDuration.Observe(d.Seconds())
}

func (m *Metrics) OnManifestsWritten(_ context.Context, files int, _ time.Duration, err error) {
	m.manifests.WithLabelValues(outcome(err)).Add(float64(files))
}

func (m *Metrics) OnGitStep(_ context.Context, step string, _ time.Duration, err error) {
	m.gitSteps.WithLabelValues(step, outcome(err)).Inc()
}

func (m *Metrics) OnPublishStart(context.Context, string, string) {}

func (m *Metrics) OnPublishComplete(_ context.Context, _, _ string, d time.Duration, err error) {
	m.publishes.WithLabelValues(outcome(err)).Inc()
	m.publishDuration.Observe(d.Seconds())
}

func (m *Metrics) OnPublishSkipped(_ context.Context, _, _, reason string) {
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) OnVisibilityPoll(_ context.Context, _, _ string, _ int, visible bool) {
	label := "false"
	if visible {
		label = "true"
	}
	m.polls.WithLabelValues(label).Inc()
}

func (m *Metrics) OnVisibilityResult(_ context.Context, _, _ string, waited time.Duration, confirmed bool) {
	label := "timeout"
	if confirmed {
		label = "confirmed"
	}
	m.visibilityWait.WithLabelValues(label).Observe(waited.Seconds())
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheOps.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheOps.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, _ int) {
	m.cacheOps.WithLabelValues(keyType, "set").Inc()
}

func (m *Metrics) OnRequest(context.Context, string, string, string) {}

func (m *Metrics) OnResponse(_ context.Context, _, host, _ string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(host, statusClass(status)).Inc()
	m.httpDuration.Observe(d.Seconds())
}

func (m *Metrics) OnError(_ context.Context, _, host, _ string, _ error) {
	m.httpRequests.WithLabelValues(host, "error").Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

var (
	_ ReleaseHooks = (*Metrics)(nil)
	_ PublishHooks = (*Metrics)(nil)
	_ CacheHooks   = (*Metrics)(nil)
	_ HTTPHooks    = (*Metrics)(nil)
)
