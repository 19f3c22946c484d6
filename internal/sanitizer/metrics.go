package sanitizer

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "chat_sanitizer"

// Metrics 清理流程的 Prometheus 指標. nil 時所有方法都是 no-op.
type Metrics struct {
	registry *prometheus.Registry

	scanned     prometheus.Counter
	corrupted   *prometheus.CounterVec
	remediated  *prometheus.CounterVec
	failures    *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
}

// NewMetrics 建立指標並註冊到獨立的 registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_scanned_total",
			Help:      "Messages read and classified by conversation scans.",
		}),
		corrupted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_corrupted_total",
			Help:      "Messages flagged as corrupted, by reason.",
		}, []string{"reason"}),
		remediated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_remediated_total",
			Help:      "Messages redacted or soft-deleted (or that would be, in dry runs).",
		}, []string{"strategy", "dry_run"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "remediation_failures_total",
			Help:      "Messages whose remediation write failed.",
		}, []string{"strategy"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of sanitize runs, by mode.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"mode"}),
	}

	m.registry.MustRegister(
		m.scanned,
		m.corrupted,
		m.remediated,
		m.failures,
		m.runDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry 給 /metrics handler 使用.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) observeScan(total int, flagged []CorruptedMessage) {
	if m == nil {
		return
	}
	m.scanned.Add(float64(total))
	for _, f := range flagged {
		m.corrupted.WithLabelValues(f.Reason).Inc()
	}
}

func (m *Metrics) observeRemediated(strategy Strategy, dryRun bool, n int) {
	if m == nil || n == 0 {
		return
	}
	m.remediated.WithLabelValues(string(strategy), strconv.FormatBool(dryRun)).Add(float64(n))
}

func (m *Metrics) observeFailures(strategy Strategy, n int) {
	if m == nil || n == 0 {
		return
	}
	m.failures.WithLabelValues(string(strategy)).Add(float64(n))
}

func (m *Metrics) observeRun(mode Mode, d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(string(mode)).Observe(d.Seconds())
}
