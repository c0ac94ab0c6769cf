package handlers

import (
	"time"

	"apodetl/internal/models"
)

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of the health check.
type HealthResponse struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services"`
	Timestamp string            `json:"timestamp"`
}

// APODResponse is a stored row as served by the API.
type APODResponse struct {
	Date        string  `json:"date"`
	Title       *string `json:"title"`
	Explanation *string `json:"explanation"`
	MediaType   *string `json:"media_type"`
	URL         *string `json:"url"`
}

func toAPODResponse(row models.APODData) APODResponse {
	return APODResponse{
		Date:        row.Day(),
		Title:       row.Title,
		Explanation: row.Explanation,
		MediaType:   row.MediaType,
		URL:         row.URL,
	}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
