package plain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/choir/tools/web_fetch/extract"
	"github.com/mohammad-safakhou/choir/tools/web_fetch/models"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 5 << 20

// Fetch retrieves pages with a plain HTTP GET. It does not run JavaScript.
type Fetch struct {
	Client    *http.Client
	Timeout   time.Duration
	MaxChars  int
	UserAgent string
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

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Result{}, fmt.Errorf("build request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.Result{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return models.Result{}, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.Result{}, fmt.Errorf("read %s: %w", url, err)
	}

	elapsed := int(time.Since(t0) / time.Millisecond)
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/plain") || strings.HasPrefix(ct, "text/markdown") {
		return models.Result{
			URL:      url,
			Markdown: extract.Truncate(strings.TrimSpace(string(raw)), f.MaxChars),
			Status:   resp.StatusCode,
			RenderMS: elapsed,
		}, nil
	}
	page, err := extract.FromHTML(string(raw), url, f.MaxChars)
	if err != nil {
		return models.Result{}, err
	}
	return models.Result{
		URL:      url,
		Title:    page.Title,
		Markdown: page.Markdown,
		HTMLHash: page.HTMLHash,
		Status:   resp.StatusCode,
		RenderMS: elapsed,
	}, nil
}
