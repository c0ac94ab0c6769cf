package models

import (
	"time"

	"gorm.io/datatypes"
)

// APODRecord is the projection handed from transform to load. A nil field
// means the source payload did not carry it.
type APODRecord struct {
	Date        *string `json:"date"`
	Title       *string `json:"title"`
	Explanation *string `json:"explanation"`
	MediaType   *string `json:"media_type"`
	URL         *string `json:"url"`
}

// APODData is a stored row of apod_data.
type APODData struct {
	Date        datatypes.Date `gorm:"column:date;type:date;primaryKey" json:"date"`
	Title       *string        `gorm:"column:title;type:varchar(255)" json:"title"`
	Explanation *string        `gorm:"column:explanation;type:text" json:"explanation"`
	MediaType   *string        `gorm:"column:media_type;type:varchar(50)" json:"media_type"`
	URL         *string        `gorm:"column:url;type:text" json:"url"`
}

func (APODData) TableName() string {
	return "apod_data"
}

// Day returns the row date as YYYY-MM-DD.
func (d APODData) Day() string {
	return time.Time(d.Date).Format("2006-01-02")
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
