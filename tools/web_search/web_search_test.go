package web_search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammad-safakhou/choir/config"
	"github.com/mohammad-safakhou/choir/internal/capability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBraveSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "go generics", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"title":"A","url":"https://a","description":"a"},
			{"title":"B","url":"https://b","description":"b"},
			{"title":"C","url":"https://c","description":"c"}]}}`))
	}))
	defer srv.Close()

	s, err := NewWebSearcher(config.SearchConfig{Provider: "brave", APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)
	out, err := NewTool(s, 5).Execute(context.Background(), map[string]any{"query": "go generics", "count": float64(2)})
	require.NoError(t, err)

	b, _ := json.Marshal(out)
	assert.JSONEq(t, `{"query":"go generics","results":[
		{"title":"A","url":"https://a","snippet":"a"},
		{"title":"B","url":"https://b","snippet":"b"}]}`, string(b))
}

func TestSerperSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key", r.Header.Get("X-API-KEY"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "weather", body["q"])
		assert.EqualValues(t, 5, body["num"])
		_, _ = w.Write([]byte(`{"organic":[{"title":"T","link":"https://t","snippet":"s"}]}`))
	}))
	defer srv.Close()

	s, err := NewWebSearcher(config.SearchConfig{Provider: "serper", APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)
	res, err := s.Discover(context.Background(), "weather", 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "https://t", res[0].URL)
}

func TestSearchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s, _ := NewWebSearcher(config.SearchConfig{Provider: "brave", APIKey: "key", BaseURL: srv.URL})
	_, err := s.Discover(context.Background(), "q", 3)
	assert.ErrorContains(t, err, "429")
}

func TestSearchParameters(t *testing.T) {
	tool := NewTool(nil, 0)
	_, err := tool.Execute(context.Background(), map[string]any{})
	var pe *capability.ParameterError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "query", pe.Name)

	_, err = tool.Execute(context.Background(), map[string]any{"query": "q", "count": "many"})
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "count", pe.Name)

	n, err := count(map[string]any{"count": float64(100)}, 5)
	require.NoError(t, err)
	assert.Equal(t, maxResultsCap, n)
}

func TestUnsupportedProvider(t *testing.T) {
	_, err := NewWebSearcher(config.SearchConfig{Provider: "bing"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}
