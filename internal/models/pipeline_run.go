package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"

	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

type PipelineRun struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DAGID      string         `gorm:"column:dag_id;not null;index" json:"dag_id"`
	Trigger    string         `gorm:"type:varchar(20);not null" json:"trigger"`
	Status     string         `gorm:"type:varchar(20);not null;index" json:"status"`
	StartedAt  time.Time      `gorm:"not null;index" json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	Tasks      datatypes.JSON `gorm:"type:jsonb" json:"tasks,omitempty"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (r *PipelineRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
