package metrics

import (
	"errors"
	"testing"
	"time"

	"apodetl/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun("scheduled", "success", 2*time.Second)
	m.ObserveRun("manual", "failed", time.Second)
	m.ObserveTask("extract_apod_data", 100*time.Millisecond, errors.New("boom"))
	m.ObserveTask("extract_apod_data", 100*time.Millisecond, nil)
	m.IncRetry("extract_apod_data")
	m.IncRows(true)
	m.IncRows(false)
	m.IncRows(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("scheduled", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("manual", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskFailures.WithLabelValues("extract_apod_data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskRetries.WithLabelValues("extract_apod_data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsLoaded.WithLabelValues("inserted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsLoaded.WithLabelValues("skipped")))
	assert.Greater(t, testutil.ToFloat64(m.LastSuccessEpoch), 0.0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.TaskDuration))
}

func TestLastSuccessOnlyOnSuccessfulRuns(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun(models.TriggerScheduled, models.RunStatusFailed, time.Second)
	assert.Zero(t, testutil.ToFloat64(m.LastSuccessEpoch))

	m.ObserveRun(models.TriggerManual, models.RunStatusSuccess, time.Second)
	assert.Greater(t, testutil.ToFloat64(m.LastSuccessEpoch), 0.0)
}

func TestNewTwiceOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
