package web_search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/choir/config"
	"github.com/mohammad-safakhou/choir/internal/capability"
	"github.com/mohammad-safakhou/choir/tools/web_search/brave"
	"github.com/mohammad-safakhou/choir/tools/web_search/models"
	"github.com/mohammad-safakhou/choir/tools/web_search/serper"
)

// Name is the registry name of the search function.
const Name = "web_search"

const (
	DefaultMaxResults = 5
	maxResultsCap     = 20
)

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = &Error{"unsupported provider"}

type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func NewWebSearcher(cfg config.SearchConfig) (WebSearcher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	switch Provider(cfg.Provider) {
	case SerperProvider:
		return serper.Search{ApiKey: cfg.APIKey, Endpoint: cfg.BaseURL, Client: client}, nil
	case BraveProvider:
		return brave.Search{ApiKey: cfg.APIKey, Endpoint: cfg.BaseURL, Client: client}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

// Tool exposes a WebSearcher as a callable function.
type Tool struct {
	searcher   WebSearcher
	maxResults int
}

func NewTool(searcher WebSearcher, maxResults int) *Tool {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Tool{searcher: searcher, maxResults: maxResults}
}

func (t *Tool) Name() string { return Name }

func (t *Tool) Description() string {
	return "Search the web and return the top results as title, url and snippet."
}

func (t *Tool) Parameters() map[string]capability.Parameter {
	return map[string]capability.Parameter{
		"query": {Type: "string", Description: "Search query", Required: true},
		"count": {Type: "integer", Description: fmt.Sprintf("Number of results (default %d)", t.maxResults)},
	}
}

// Execute returns {query, results}.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (any, error) {
	query, err := capability.RequiredString(args, "query")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, &capability.ParameterError{Name: "query", Reason: "must not be empty"}
	}
	k, err := count(args, t.maxResults)
	if err != nil {
		return nil, err
	}
	results, err := t.searcher.Discover(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return map[string]any{"query": query, "results": results}, nil
}

// count reads the optional count argument. JSON numbers arrive as float64.
func count(args map[string]any, def int) (int, error) {
	v, ok := args["count"]
	if !ok || v == nil {
		return def, nil
	}
	var n int
	switch c := v.(type) {
	case float64:
		n = int(c)
	case int:
		n = c
	default:
		return 0, &capability.ParameterError{Name: "count", Reason: "must be a number"}
	}
	if n <= 0 {
		return def, nil
	}
	if n > maxResultsCap {
		n = maxResultsCap
	}
	return n, nil
}
