package web_fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/choir/config"
	"github.com/mohammad-safakhou/choir/internal/capability"
	"github.com/mohammad-safakhou/choir/internal/logging"
	"github.com/mohammad-safakhou/choir/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/choir/tools/web_fetch/firecrawl"
	"github.com/mohammad-safakhou/choir/tools/web_fetch/models"
	"github.com/mohammad-safakhou/choir/tools/web_fetch/plain"
)

const (
	// Name is the registry name of the content-fetch function.
	Name = "website_to_md"

	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	PlainFetcherType     FetcherType = "http"
	ChromedpFetcherType  FetcherType = "chromedp"
	FirecrawlFetcherType FetcherType = "firecrawl"
)

// Error is returned for fetcher construction problems.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

// NewWebFetcher builds the configured fetcher.
func NewWebFetcher(cfg config.FetchConfig) (WebFetcher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch FetcherType(cfg.Type) {
	case PlainFetcherType, "":
		return plain.Fetch{Timeout: timeout, MaxChars: maxChars, UserAgent: cfg.UserAgent}, nil
	case ChromedpFetcherType:
		return chromedp.Fetch{Timeout: timeout, MaxChars: maxChars, UserAgent: cfg.UserAgent}, nil
	case FirecrawlFetcherType:
		if cfg.FirecrawlKey == "" {
			return nil, &Error{"firecrawl fetcher requires an api key"}
		}
		return firecrawl.Fetch{ApiKey: cfg.FirecrawlKey, Endpoint: cfg.FirecrawlURL, Timeout: timeout, MaxChars: maxChars}, nil
	default:
		return nil, &Error{fmt.Sprintf("unsupported fetcher type %q", cfg.Type)}
	}
}

// PageCache is the optional store consulted before fetching.
type PageCache interface {
	Get(ctx context.Context, url string) (models.Result, bool, error)
	Set(ctx context.Context, url string, res models.Result) error
}

// Tool exposes a WebFetcher as the website_to_md function.
type Tool struct {
	fetcher WebFetcher
	cache   PageCache
	logger  logging.Logger
}

// NewTool wires a fetcher with an optional cache (nil disables caching).
func NewTool(fetcher WebFetcher, cache PageCache, logger logging.Logger) *Tool {
	return &Tool{fetcher: fetcher, cache: cache, logger: logging.Component(logger, "web_fetch")}
}

func (t *Tool) Name() string { return Name }

func (t *Tool) Description() string {
	return "Fetch a web page and return its main content converted to markdown."
}

func (t *Tool) Parameters() map[string]capability.Parameter {
	return map[string]capability.Parameter{
		"url": {Type: "string", Description: "Absolute http(s) URL of the page to fetch", Required: true},
	}
}

// Execute returns {url, markdown, title}.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (any, error) {
	url, err := capability.RequiredString(args, "url")
	if err != nil {
		return nil, err
	}
	res, err := t.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"url":      res.URL,
		"markdown": res.Markdown,
		"title":    res.Title,
	}, nil
}

// Fetch reads through the cache. Cache failures are logged and bypassed.
func (t *Tool) Fetch(ctx context.Context, url string) (models.Result, error) {
	if t.cache != nil {
		res, ok, err := t.cache.Get(ctx, url)
		if err != nil {
			t.logger.WithError(err).WithField("url", url).Warn("page cache read failed")
		} else if ok {
			return res, nil
		}
	}
	res, err := t.fetcher.Exec(ctx, url)
	if err != nil {
		return models.Result{}, err
	}
	if t.cache != nil {
		if err := t.cache.Set(ctx, url, res); err != nil {
			t.logger.WithError(err).WithField("url", url).Warn("page cache write failed")
		}
	}
	return res, nil
}
