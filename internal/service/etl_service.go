package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"apodetl/internal/clients"
	"apodetl/internal/models"
	"apodetl/internal/repository"
	"apodetl/pkg/database"
	"apodetl/pkg/logger"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const apodCacheTTL = 24 * time.Hour

var errMissingDate = errors.New("date column requires a YYYY-MM-DD value")

// ETLService holds the individual steps of the daily APOD load.
type ETLService interface {
	Extract(ctx context.Context) (clients.APODPayload, error)
	CreateTable(ctx context.Context) error
	Load(ctx context.Context, record *models.APODRecord) (bool, error)
	Verify(ctx context.Context) (*VerifyReport, error)
}

// VerifyReport is what the verification step observed in storage.
type VerifyReport struct {
	Found bool
	Row   *models.APODData
}

func (r *VerifyReport) String() string {
	if !r.Found || r.Row == nil {
		return "No data loaded"
	}
	return fmt.Sprintf("Last loaded data: Date=%s, Title=%s, Media Type=%s",
		r.Row.Day(), models.Deref(r.Row.Title), models.Deref(r.Row.MediaType))
}

type etlService struct {
	client     clients.NASAClient
	store      *database.Connector
	verifyFrom *database.Connector
	cacheRepo  repository.CacheRepository
	out        io.Writer
}

type ETLOption func(*etlService)

// WithCache enables caching of fetched payloads.
func WithCache(cache repository.CacheRepository) ETLOption {
	return func(s *etlService) { s.cacheRepo = cache }
}

// WithReportOutput sets where the verification report is printed.
func WithReportOutput(w io.Writer) ETLOption {
	return func(s *etlService) { s.out = w }
}

// NewETLService wires the steps. store serves table creation and loading,
// verifyFrom serves the verification read.
func NewETLService(client clients.NASAClient, store, verifyFrom *database.Connector, opts ...ETLOption) ETLService {
	s := &etlService{
		client:     client,
		store:      store,
		verifyFrom: verifyFrom,
		out:        os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *etlService) Extract(ctx context.Context) (clients.APODPayload, error) {
	log := logger.FromContext(ctx)
	log.Info("Extracting data from NASA API")

	payload, err := s.client.FetchAPOD(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch APOD: %w", err)
	}

	if s.cacheRepo != nil {
		date, _ := payload["date"].(string)
		if date == "" {
			date = "today"
		}
		if err := s.cacheRepo.SetJSON(ctx, APODCacheKey(date), payload, apodCacheTTL); err != nil {
			log.Warn("Failed to cache APOD payload", "error", err)
		} else if err := s.cacheRepo.SetJSON(ctx, APODCacheKey("today"), payload, apodCacheTTL); err != nil {
			log.Warn("Failed to cache APOD payload", "error", err)
		}
	}

	return payload, nil
}

// APODCacheKey is the Redis key holding the raw payload of a day.
func APODCacheKey(date string) string {
	return "nasa:apod:" + date
}

func (s *etlService) CreateTable(ctx context.Context) error {
	logger.FromContext(ctx).Info("Creating table")

	err := s.store.Do(ctx, func(db *gorm.DB) error {
		return repository.NewAPODRepository(db).EnsureTable(ctx)
	})
	return dbError("create_table", err)
}

func (s *etlService) Load(ctx context.Context, record *models.APODRecord) (bool, error) {
	log := logger.FromContext(ctx)
	log.Info("Loading data to PostgreSQL")

	row, err := toRow(record)
	if err != nil {
		return false, dbError("load", err)
	}

	var inserted bool
	err = s.store.Do(ctx, func(db *gorm.DB) error {
		var err error
		inserted, err = repository.NewAPODRepository(db).InsertIgnore(ctx, row)
		return err
	})
	if err != nil {
		return false, dbError("load", err)
	}

	if inserted {
		log.Info("Row inserted", "date", row.Day())
	} else {
		log.Info("Row already present, skipped", "date", row.Day())
	}
	return inserted, nil
}

func (s *etlService) Verify(ctx context.Context) (*VerifyReport, error) {
	logger.FromContext(ctx).Info("Verifying the loaded data")

	report := &VerifyReport{}
	err := s.verifyFrom.Do(ctx, func(db *gorm.DB) error {
		row, err := repository.NewAPODRepository(db).GetLatest(ctx)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		report.Found = true
		report.Row = row
		return nil
	})
	if err != nil {
		return nil, dbError("verify", err)
	}

	fmt.Fprintln(s.out, report.String())
	return report, nil
}

func toRow(record *models.APODRecord) (*models.APODData, error) {
	if record == nil || record.Date == nil {
		return nil, errMissingDate
	}

	day, err := time.Parse("2006-01-02", *record.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMissingDate, err)
	}

	return &models.APODData{
		Date:        datatypes.Date(day),
		Title:       record.Title,
		Explanation: record.Explanation,
		MediaType:   record.MediaType,
		URL:         record.URL,
	}, nil
}
