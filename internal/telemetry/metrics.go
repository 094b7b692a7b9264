package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricsNamespace = "engagement_workflow"

// Metrics — метрики workflow в собственном registry.
//
// Собственный registry нужен для Pushgateway: batch-процесс завершается
// сразу после run, и метрики отправляются одним push.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Gauge
	stepDuration   *prometheus.HistogramVec
	lastSuccess    prometheus.Gauge
	lastCompletion prometheus.Gauge
}

// NewMetrics создаёт и регистрирует метрики.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Workflow runs by final status.",
		}, []string{"status"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the last workflow run.",
		}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of workflow steps.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"step", "status"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that delivered the report.",
		}),
		lastCompletion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_completion_timestamp_seconds",
			Help:      "Unix time of the last finished run, successful or not.",
		}),
	}

	m.registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.stepDuration,
		m.lastSuccess,
		m.lastCompletion,
	)

	return m
}

// Registry возвращает registry для promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStep записывает длительность шага.
func (m *Metrics) ObserveStep(step, status string, d time.Duration) {
	m.stepDuration.WithLabelValues(step, status).Observe(d.Seconds())
}

// ObserveRun записывает итог run.
// delivered — отчёт загружен (в том числе при PARTIAL).
func (m *Metrics) ObserveRun(status string, d time.Duration, finishedAt time.Time, delivered bool) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Set(d.Seconds())
	m.lastCompletion.Set(float64(finishedAt.Unix()))
	if delivered {
		m.lastSuccess.Set(float64(finishedAt.Unix()))
	}
}

// Push отправляет метрики в Pushgateway.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
