package repository

import (
	"context"
	"testing"
	"time"

	"apodetl/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestRunRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.PipelineRun{}))
	repo := NewRunRepository(db)

	start := time.Now().UTC().Add(-time.Hour)
	first := &models.PipelineRun{DAGID: "nasa_space_photo_etl_dag", Trigger: models.TriggerScheduled, Status: models.RunStatusRunning, StartedAt: start}
	require.NoError(t, repo.Create(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.ID)

	second := &models.PipelineRun{DAGID: "nasa_space_photo_etl_dag", Trigger: models.TriggerManual, Status: models.RunStatusRunning, StartedAt: start.Add(time.Minute)}
	require.NoError(t, repo.Create(ctx, second))

	tasks := datatypes.JSON(`{"extract_apod_data":"success"}`)
	require.NoError(t, repo.Finish(ctx, first.ID, models.RunStatusSuccess, "", tasks))
	require.NoError(t, repo.Finish(ctx, second.ID, models.RunStatusFailed, "boom", nil))

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.JSONEq(t, `{"extract_apod_data":"success"}`, string(got.Tasks))

	runs, err := repo.GetLastN(ctx, "nasa_space_photo_etl_dag", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, "boom", runs[0].Error)

	failed, err := repo.CountByStatus(ctx, "nasa_space_photo_etl_dag", models.RunStatusFailed)
	require.NoError(t, err)
	assert.EqualValues(t, 1, failed)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Finish(ctx, uuid.New(), models.RunStatusFailed, "", nil), ErrNotFound)
}
