package pipeline

import (
	"context"

	"apodetl/internal/models"
	"apodetl/internal/repository"
	"apodetl/pkg/database"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// History records run outcomes.
type History interface {
	Start(ctx context.Context, run *models.PipelineRun) error
	Finish(ctx context.Context, id uuid.UUID, status, errMsg string, tasks datatypes.JSON) error
}

type dbHistory struct {
	conn *database.Connector
}

// NewDBHistory writes run history through short-lived connections.
func NewDBHistory(conn *database.Connector) History {
	return &dbHistory{conn: conn}
}

func (h *dbHistory) Start(ctx context.Context, run *models.PipelineRun) error {
	return h.conn.Do(ctx, func(db *gorm.DB) error {
		return repository.NewRunRepository(db).Create(ctx, run)
	})
}

func (h *dbHistory) Finish(ctx context.Context, id uuid.UUID, status, errMsg string, tasks datatypes.JSON) error {
	return h.conn.Do(ctx, func(db *gorm.DB) error {
		return repository.NewRunRepository(db).Finish(ctx, id, status, errMsg, tasks)
	})
}
