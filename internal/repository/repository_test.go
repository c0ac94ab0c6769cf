package repository

import (
	"path/filepath"
	"testing"
	"time"

	"apodetl/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "apod.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func apodRow(t *testing.T, day, title string) *models.APODData {
	t.Helper()
	d, err := time.Parse("2006-01-02", day)
	require.NoError(t, err)
	return &models.APODData{
		Date:        datatypes.Date(d),
		Title:       strPtr(title),
		Explanation: strPtr("explanation of " + title),
		MediaType:   strPtr("image"),
		URL:         strPtr("http://example.com/" + day + ".jpg"),
	}
}
