package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mohammad-safakhou/choir/config"
	"github.com/mohammad-safakhou/choir/internal/auth"
	"github.com/mohammad-safakhou/choir/internal/capability"
	"github.com/mohammad-safakhou/choir/internal/choir"
	"github.com/mohammad-safakhou/choir/internal/conversation"
	"github.com/mohammad-safakhou/choir/internal/logging"
	"github.com/mohammad-safakhou/choir/internal/telemetry"
	"github.com/mohammad-safakhou/choir/models"
	"github.com/mohammad-safakhou/choir/provider"
	"github.com/mohammad-safakhou/choir/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const agentJSON = `{"detailed_response":"Paris is mild today.","short_overview":"mild","thoughts":"checked forecast"}`

// pipelineProvider answers every stage of the choir pipeline.
func pipelineProvider(final string, failStage string) *providertest.Func {
	return &providertest.Func{Fn: func(_ context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
		if req.Stage == failStage {
			return models.CompletionResponse{}, errors.New("upstream exploded")
		}
		switch req.Stage {
		case choir.StagePlanning:
			return models.CompletionResponse{Content: "Each agent: describe the weather in Paris."}, nil
		case choir.StageAgents:
			return models.CompletionResponse{Content: agentJSON}, nil
		case choir.StageAssessment:
			return models.CompletionResponse{Content: "All agents agree it is mild."}, nil
		case choir.StageSynthesis:
			return models.CompletionResponse{Content: final}, nil
		case conversation.Stage:
			return models.CompletionResponse{Content: "Hello from chat."}, nil
		case "health":
			return models.CompletionResponse{Content: `{"status":"ok","code":200,"message":"fine"}`}, nil
		}
		return models.CompletionResponse{}, errors.New("unexpected stage " + req.Stage)
	}}
}

func testDeps(t *testing.T, p provider.Provider) Deps {
	t.Helper()
	reg, err := capability.NewRegistry(nil, capability.Func{
		FuncName:        "get_weather",
		FuncDescription: "weather",
		Params:          map[string]capability.Parameter{"location": {Type: "string", Required: true}},
		Fn: func(context.Context, map[string]any) (any, error) {
			return map[string]any{"temperature": 18}, nil
		},
	})
	require.NoError(t, err)
	log := logging.Discard()
	metrics := telemetry.NewMetrics()
	return Deps{
		Gate:     auth.NewGate(config.AuthConfig{Ring0: "r0", Ring1: "r1", Ring2: "r2"}),
		Choir:    choir.New(p, reg, choir.Options{}, log, metrics),
		Chat:     conversation.New(p, reg, conversation.Options{}, log),
		Registry: reg,
		Provider: p,
		Metrics:  metrics,
		Logger:   log,
	}
}

func do(t *testing.T, d Deps, method, path, body, token string) (*httptest.ResponseRecorder, QueryResponse) {
	t.Helper()
	e := NewEcho(d)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env QueryResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestChoirEndToEnd(t *testing.T) {
	p := pipelineProvider("It is 18C and mild in Paris.", "")
	rec, env := do(t, testDeps(t, p), http.MethodPost, "/choir", `{"query":"What's the weather in Paris?"}`, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "It is 18C and mild in Paris.", env.Data)
	assert.Equal(t, msgValidResp, env.Message)
	assert.Empty(t, env.Error)
	// plan + five agents + assessment + synthesis
	assert.Equal(t, 8, p.Calls())
}

func TestChoirRejectsBadRequests(t *testing.T) {
	p := pipelineProvider("unused", "")
	d := testDeps(t, p)

	rec, env := do(t, d, http.MethodPost, "/choir", `{"query":"   "}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)

	rec, env = do(t, d, http.MethodPost, "/choir", `{"query":"hi","json_schema":{"type":42}}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)

	rec, _ = do(t, d, http.MethodPost, "/choir", `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Zero(t, p.Calls())
}

func TestChoirPipelineFailureIsGeneric(t *testing.T) {
	p := pipelineProvider("unused", choir.StageSynthesis)
	rec, env := do(t, testDeps(t, p), http.MethodPost, "/choir", `{"query":"weather?"}`, "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Internal server error", env.Error)
	assert.Nil(t, env.Data)
	assert.NotContains(t, rec.Body.String(), "upstream exploded")
}

func TestChatRequiresRing1(t *testing.T) {
	d := testDeps(t, pipelineProvider("", ""))

	rec, env := do(t, d, http.MethodPost, "/chat", `{"prompt":"hi"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Unauthorized", env.Error)

	rec, _ = do(t, d, http.MethodPost, "/chat", `{"prompt":"hi"}`, "r2")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, token := range []string{"r0", "r1"} {
		rec, env = do(t, d, http.MethodPost, "/chat", `{"prompt":"hi"}`, token)
		require.Equal(t, http.StatusOK, rec.Code, token)
		assert.True(t, env.Success)
		data := env.Data.(map[string]any)
		assert.Equal(t, "Hello from chat.", data["answer"])
		assert.NotEmpty(t, data["session_id"])
	}

	rec, _ = do(t, d, http.MethodPost, "/chat", `{"prompt":""}`, "r1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFunctionsRequireRing2(t *testing.T) {
	d := testDeps(t, pipelineProvider("", ""))

	rec, _ := do(t, d, http.MethodGet, "/functions", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := do(t, d, http.MethodGet, "/functions", "", "r2")
	require.Equal(t, http.StatusOK, rec.Code)
	list := env.Data.([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "get_weather", list[0].(map[string]any)["name"])
}

func TestHealth(t *testing.T) {
	d := testDeps(t, pipelineProvider("", ""))

	rec, env := do(t, d, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "Endpoints are healthy!", env.Data)

	rec, _ = do(t, d, http.MethodGet, "/health/deep", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = do(t, d, http.MethodGet, "/health/deep", "", "r0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", env.Data.(map[string]any)["status"])
}

func TestDeepHealthProviderFailure(t *testing.T) {
	d := testDeps(t, pipelineProvider("", "health"))
	rec, env := do(t, d, http.MethodGet, "/health/deep", "", "r2")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)
}

func TestUnknownRouteIsEnveloped(t *testing.T) {
	rec, env := do(t, testDeps(t, pipelineProvider("", "")), http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestMetricsExposed(t *testing.T) {
	d := testDeps(t, pipelineProvider("done", ""))
	do(t, d, http.MethodPost, "/choir", `{"query":"q"}`, "")

	e := NewEcho(d)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "choir_pipeline_duration_seconds")
}

func TestBuildRegistry(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, _ := strings.Cut(mr.Addr(), ":")

	cfg := &config.Config{
		Tools: config.ToolsConfig{
			Fetch:  config.FetchConfig{Type: "http", CacheTTL: time.Minute},
			Search: config.SearchConfig{Provider: "serper", APIKey: "k"},
		},
		Cache: config.CacheConfig{Redis: config.RedisConfig{Host: host, Port: port, Timeout: time.Second}},
	}
	reg, cleanup, err := BuildRegistry(context.Background(), cfg, logging.Discard(), nil)
	require.NoError(t, err)
	defer cleanup()

	var names []string
	for _, d := range reg.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"get_weather", "web_search", "website_to_md"}, names)

	cfg.Tools.Search.APIKey = ""
	cfg.Cache.Redis.Host = ""
	reg, cleanup2, err := BuildRegistry(context.Background(), cfg, logging.Discard(), nil)
	require.NoError(t, err)
	defer cleanup2()
	assert.Len(t, reg.List(), 2)
}
