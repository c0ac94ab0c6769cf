package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// APODPayload is the decoded APOD response body, kept as-is.
type APODPayload map[string]interface{}

// FetchError is returned when the APOD API answers with a non-200 status.
type FetchError struct {
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("failed to fetch data: status code %d", e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch data: status code %d: %s", e.StatusCode, e.Body)
}

type NASAClient interface {
	FetchAPOD(ctx context.Context, date string) (APODPayload, error)
}

type nasaClient struct {
	apiKey  string
	apodURL string
	client  *http.Client
}

type NASAConfig struct {
	APIKey  string
	APODURL string
	Timeout time.Duration
}

func NewNASAClient(config NASAConfig) NASAClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &nasaClient{
		apiKey:  config.APIKey,
		apodURL: config.APODURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// FetchAPOD issues a single GET for the picture of the given day.
// An empty date asks the API for today's entry.
func (c *nasaClient) FetchAPOD(ctx context.Context, date string) (APODPayload, error) {
	params := url.Values{}
	params.Add("api_key", c.apiKey)
	if date != "" {
		params.Add("date", date)
	}

	reqURL := c.apodURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", "APOD-ETL/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var data APODPayload
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}

	return data, nil
}
