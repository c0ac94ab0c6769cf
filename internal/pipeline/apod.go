package pipeline

import (
	"context"
	"fmt"
	"time"

	"apodetl/internal/clients"
	"apodetl/internal/models"
	"apodetl/internal/service"
	"apodetl/pkg/logger"

	"github.com/google/uuid"
)

const DAGID = "nasa_space_photo_etl_dag"

const (
	TaskExtract     = "extract_apod_data"
	TaskTransform   = "transform_data"
	TaskCreateTable = "create_table"
	TaskLoad        = "load_data_to_postgres"
	TaskVerify      = "verify_loaded_data"
	TaskArchive     = "archive_raw_payload"
)

// Policy is the retry policy applied to every task.
type Policy struct {
	Retries    int
	RetryDelay time.Duration
}

// DefaultPolicy retries a failed task once after five minutes.
var DefaultPolicy = Policy{Retries: 1, RetryDelay: 5 * time.Minute}

// RunState carries values between the tasks of one run. It is created per
// run and dropped when the run ends.
type RunState struct {
	ID         uuid.UUID
	Payload    clients.APODPayload
	Record     *models.APODRecord
	Inserted   bool
	Report     *service.VerifyReport
	ArchivedAs string
}

// Archiver stores the raw payload somewhere durable.
type Archiver interface {
	Put(ctx context.Context, payload clients.APODPayload) (string, error)
}

// BuildAPODDAG wires the daily tasks around state:
//
//	extract_apod_data >> transform_data >> load_data_to_postgres >> verify_loaded_data
//	create_table >> load_data_to_postgres
//	extract_apod_data >> archive_raw_payload (only with an archiver)
func BuildAPODDAG(svc service.ETLService, state *RunState, policy Policy, archiver Archiver, onLoad func(inserted bool)) (*DAG, error) {
	d := NewDAG(DAGID)

	tasks := []*Task{
		{
			ID: TaskExtract,
			Run: func(ctx context.Context) error {
				payload, err := svc.Extract(ctx)
				if err != nil {
					return err
				}
				state.Payload = payload
				return nil
			},
		},
		{
			ID: TaskTransform,
			Run: func(ctx context.Context) error {
				logger.FromContext(ctx).Info("Transforming data")
				state.Record = service.Transform(state.Payload)
				return nil
			},
		},
		{
			ID: TaskCreateTable,
			Run: func(ctx context.Context) error {
				return svc.CreateTable(ctx)
			},
		},
		{
			ID: TaskLoad,
			Run: func(ctx context.Context) error {
				inserted, err := svc.Load(ctx, state.Record)
				if err != nil {
					return err
				}
				state.Inserted = inserted
				if onLoad != nil {
					onLoad(inserted)
				}
				return nil
			},
		},
		{
			ID: TaskVerify,
			Run: func(ctx context.Context) error {
				report, err := svc.Verify(ctx)
				if err != nil {
					return err
				}
				state.Report = report
				return nil
			},
			AllowFailure: true,
		},
	}

	if archiver != nil {
		tasks = append(tasks, &Task{
			ID: TaskArchive,
			Run: func(ctx context.Context) error {
				name, err := archiver.Put(ctx, state.Payload)
				if err != nil {
					return err
				}
				state.ArchivedAs = name
				logger.FromContext(ctx).Info("Raw payload archived", "object", name)
				return nil
			},
			AllowFailure: true,
		})
	}

	for _, t := range tasks {
		// Tasks allowed to fail are not retried, so they never hold the run open.
		if !t.AllowFailure {
			t.Retries = policy.Retries
			t.RetryDelay = policy.RetryDelay
		}
		if err := d.Add(t); err != nil {
			return nil, err
		}
	}

	if err := d.Chain(TaskExtract, TaskTransform, TaskLoad, TaskVerify); err != nil {
		return nil, err
	}
	if err := d.SetUpstream(TaskLoad, TaskCreateTable); err != nil {
		return nil, err
	}
	if archiver != nil {
		if err := d.SetUpstream(TaskArchive, TaskExtract); err != nil {
			return nil, err
		}
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", DAGID, err)
	}
	return d, nil
}
