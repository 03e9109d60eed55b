package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/choir/tools/web_fetch/extract"
	"github.com/mohammad-safakhou/choir/tools/web_fetch/models"
)

// DefaultEndpoint is the hosted scrape API.
const DefaultEndpoint = "https://api.firecrawl.dev/v1/scrape"

// Fetch delegates scraping to the Firecrawl API, which returns markdown directly.
type Fetch struct {
	ApiKey   string
	Endpoint string
	Timeout  time.Duration
	MaxChars int
	Client   *http.Client
}

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title      string `json:"title"`
			StatusCode int    `json:"statusCode"`
		} `json:"metadata"`
	} `json:"data"`
}

func (f Fetch) Exec(ctx context.Context, url string) (models.Result, error) {
	if strings.TrimSpace(url) == "" {
		return models.Result{}, errors.New("invalid url")
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	t0 := time.Now()

	payload, err := json.Marshal(scrapeRequest{URL: url, Formats: []string{"markdown"}})
	if err != nil {
		return models.Result{}, err
	}
	endpoint := f.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return models.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.ApiKey)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.Result{}, fmt.Errorf("firecrawl %s: %w", url, err)
	}
	defer resp.Body.Close()

	var raw scrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return models.Result{}, fmt.Errorf("firecrawl decode: %w", err)
	}
	if resp.StatusCode >= 400 || !raw.Success {
		msg := raw.Error
		if msg == "" {
			msg = resp.Status
		}
		return models.Result{}, fmt.Errorf("firecrawl %s: %s", url, msg)
	}
	status := raw.Data.Metadata.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return models.Result{
		URL:      url,
		Title:    raw.Data.Metadata.Title,
		Markdown: extract.Truncate(raw.Data.Markdown, f.MaxChars),
		Status:   status,
		RenderMS: int(time.Since(t0) / time.Millisecond),
	}, nil
}
