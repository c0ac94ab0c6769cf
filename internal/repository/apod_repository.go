package repository

import (
	"context"
	"errors"

	"apodetl/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const createAPODTable = `
CREATE TABLE IF NOT EXISTS apod_data (
    date DATE PRIMARY KEY,
    title VARCHAR(255),
    explanation TEXT,
    media_type VARCHAR(50),
    url TEXT
);`

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

type APODRepository interface {
	EnsureTable(ctx context.Context) error
	InsertIgnore(ctx context.Context, row *models.APODData) (bool, error)
	GetLatest(ctx context.Context) (*models.APODData, error)
	GetPaginated(ctx context.Context, page, limit int) ([]models.APODData, error)
	All(ctx context.Context) ([]models.APODData, error)
	Count(ctx context.Context) (int64, error)
}

type apodRepository struct {
	db *gorm.DB
}

func NewAPODRepository(db *gorm.DB) APODRepository {
	return &apodRepository{db: db}
}

func (r *apodRepository) EnsureTable(ctx context.Context) error {
	return r.db.WithContext(ctx).Exec(createAPODTable).Error
}

// InsertIgnore adds the row unless its date is already stored. It reports
// whether a row was written.
func (r *apodRepository) InsertIgnore(ctx context.Context, row *models.APODData) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *apodRepository) GetLatest(ctx context.Context) (*models.APODData, error) {
	var row models.APODData
	err := r.db.WithContext(ctx).
		Order("date DESC").
		First(&row).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *apodRepository) GetPaginated(ctx context.Context, page, limit int) ([]models.APODData, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var rows []models.APODData
	err := r.db.WithContext(ctx).
		Order("date DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).
		Error
	return rows, err
}

func (r *apodRepository) All(ctx context.Context) ([]models.APODData, error) {
	var rows []models.APODData
	err := r.db.WithContext(ctx).
		Order("date ASC").
		Find(&rows).
		Error
	return rows, err
}

func (r *apodRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.APODData{}).
		Count(&count).
		Error
	return count, err
}
