package repository

import (
	"context"
	"errors"
	"time"

	"apodetl/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RunRepository interface {
	Create(ctx context.Context, run *models.PipelineRun) error
	Finish(ctx context.Context, id uuid.UUID, status, errMsg string, tasks datatypes.JSON) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error)
	GetLastN(ctx context.Context, dagID string, n int) ([]models.PipelineRun, error)
	CountByStatus(ctx context.Context, dagID, status string) (int64, error)
}

type runRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) Create(ctx context.Context, run *models.PipelineRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *runRepository) Finish(ctx context.Context, id uuid.UUID, status, errMsg string, tasks datatypes.JSON) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.PipelineRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"error":       errMsg,
			"tasks":       tasks,
			"finished_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *runRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error) {
	var run models.PipelineRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *runRepository) GetLastN(ctx context.Context, dagID string, n int) ([]models.PipelineRun, error) {
	if n < 1 || n > 100 {
		n = 10
	}

	var runs []models.PipelineRun
	err := r.db.WithContext(ctx).
		Where("dag_id = ?", dagID).
		Order("started_at DESC").
		Limit(n).
		Find(&runs).
		Error
	return runs, err
}

func (r *runRepository) CountByStatus(ctx context.Context, dagID, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PipelineRun{}).
		Where("dag_id = ? AND status = ?", dagID, status).
		Count(&count).
		Error
	return count, err
}
