package metrics

import (
	"time"

	"apodetl/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the pipeline.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	TaskDuration     *prometheus.HistogramVec
	TaskFailures     *prometheus.CounterVec
	TaskRetries      *prometheus.CounterVec
	RowsLoaded       *prometheus.CounterVec
	LastSuccessEpoch prometheus.Gauge
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apod_etl_runs_total",
			Help: "Pipeline runs by trigger and final status.",
		}, []string{"trigger", "status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "apod_etl_run_duration_seconds",
			Help:    "Wall time of a pipeline run.",
			Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900},
		}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "apod_etl_task_duration_seconds",
			Help:    "Wall time of a task attempt.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		TaskFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apod_etl_task_failures_total",
			Help: "Failed task attempts.",
		}, []string{"task"}),
		TaskRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apod_etl_task_retries_total",
			Help: "Task retries scheduled after a failed attempt.",
		}, []string{"task"}),
		RowsLoaded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apod_etl_rows_total",
			Help: "Load outcomes: inserted or skipped on conflict.",
		}, []string{"outcome"}),
		LastSuccessEpoch: factory.NewGauge(prometheus.GaugeOpts{
			Name: "apod_etl_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
	}
}

func (m *Metrics) ObserveRun(trigger, status string, took time.Duration) {
	m.RunsTotal.WithLabelValues(trigger, status).Inc()
	m.RunDuration.Observe(took.Seconds())
	if status == models.RunStatusSuccess {
		m.LastSuccessEpoch.SetToCurrentTime()
	}
}

func (m *Metrics) ObserveTask(task string, took time.Duration, err error) {
	m.TaskDuration.WithLabelValues(task).Observe(took.Seconds())
	if err != nil {
		m.TaskFailures.WithLabelValues(task).Inc()
	}
}

func (m *Metrics) IncRetry(task string) {
	m.TaskRetries.WithLabelValues(task).Inc()
}

func (m *Metrics) IncRows(inserted bool) {
	if inserted {
		m.RowsLoaded.WithLabelValues("inserted").Inc()
		return
	}
	m.RowsLoaded.WithLabelValues("skipped").Inc()
}
