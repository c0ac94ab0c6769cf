package service

import (
	"fmt"

	"apodetl/internal/clients"
	"apodetl/internal/models"
)

// Transform projects the five stored fields out of the raw payload.
// Missing or null fields stay nil.
func Transform(payload clients.APODPayload) *models.APODRecord {
	return &models.APODRecord{
		Date:        field(payload, "date"),
		Title:       field(payload, "title"),
		Explanation: field(payload, "explanation"),
		MediaType:   field(payload, "media_type"),
		URL:         field(payload, "url"),
	}
}

func field(payload clients.APODPayload, key string) *string {
	val, ok := payload[key]
	if !ok || val == nil {
		return nil
	}

	var s string
	switch v := val.(type) {
	case string:
		s = v
	default:
		s = fmt.Sprint(v)
	}
	return &s
}
