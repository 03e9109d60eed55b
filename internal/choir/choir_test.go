package choir

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/choir/internal/capability"
	"github.com/mohammad-safakhou/choir/internal/logging"
	"github.com/mohammad-safakhou/choir/internal/telemetry"
	"github.com/mohammad-safakhou/choir/models"
	"github.com/mohammad-safakhou/choir/provider/providertest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var agentNumber = regexp.MustCompile(`You are Agent (\d+):`)

// scripted answers every stage; failAgents lists 1-based agents that error.
type scripted struct {
	failAgents   map[int]bool
	badJSON      map[int]bool
	planErr      error
	assessErr    error
	synthErr     error
	agentBarrier *sync.WaitGroup
}

func (s scripted) provider() *providertest.Func {
	return &providertest.Func{Fn: func(_ context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
		system := req.Messages[0].Content
		user := req.Messages[1].Content
		switch req.Stage {
		case StagePlanning:
			if s.planErr != nil {
				return models.CompletionResponse{}, s.planErr
			}
			return models.CompletionResponse{Content: "PLAN for: " + user}, nil
		case StageAgents:
			n, _ := strconv.Atoi(agentNumber.FindStringSubmatch(system)[1])
			if s.agentBarrier != nil {
				s.agentBarrier.Done()
				s.agentBarrier.Wait()
			}
			if s.failAgents[n] {
				return models.CompletionResponse{}, fmt.Errorf("agent %d: upstream timeout", n)
			}
			if s.badJSON[n] {
				return models.CompletionResponse{Content: `{"detailed_response": 42}`}, nil
			}
			return models.CompletionResponse{Content: fmt.Sprintf(
				`{"detailed_response":"answer %d","short_overview":"overview %d","thoughts":"thoughts %d"}`, n, n, n)}, nil
		case StageAssessment:
			if s.assessErr != nil {
				return models.CompletionResponse{}, s.assessErr
			}
			return models.CompletionResponse{Content: "ASSESSMENT of\n" + user}, nil
		case StageSynthesis:
			if s.synthErr != nil {
				return models.CompletionResponse{}, s.synthErr
			}
			return models.CompletionResponse{Content: "FINAL"}, nil
		}
		return models.CompletionResponse{}, errors.New("unexpected stage " + req.Stage)
	}}
}

func emptyRegistry(t *testing.T) *capability.Registry {
	reg, err := capability.NewRegistry(nil)
	require.NoError(t, err)
	return reg
}

func TestRunFanOutKeepsRoleOrder(t *testing.T) {
	for _, failed := range [][]int{{}, {3}, {1, 2, 3, 4, 5}} {
		t.Run(fmt.Sprintf("failures=%d", len(failed)), func(t *testing.T) {
			fail := map[int]bool{}
			for _, n := range failed {
				fail[n] = true
			}
			metrics := telemetry.NewMetrics()
			svc := New(scripted{failAgents: fail}.provider(), emptyRegistry(t), Options{}, logging.Discard(), metrics)

			res, err := svc.Run(context.Background(), Request{Query: "Is Rust faster than Go?"})
			require.NoError(t, err)
			require.Len(t, res.Agents, 5)
			for i, a := range res.Agents {
				if fail[i+1] {
					assert.Equal(t, FailedAgentResponse(), a, "slot %d", i)
					continue
				}
				assert.Equal(t, fmt.Sprintf("answer %d", i+1), a.DetailedResponse, "slot %d", i)
			}
			assert.Equal(t, "FINAL", res.Answer)
			assert.Equal(t, float64(len(failed)), testutil.ToFloat64(metrics.AgentFailures))
		})
	}
}

func TestRunAgentsRunConcurrently(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(5)
	svc := New(scripted{agentBarrier: &barrier}.provider(), emptyRegistry(t), Options{}, logging.Discard(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), Request{Query: "q"})
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("agents did not run concurrently")
	}
}

func TestRunInvalidAgentJSONBecomesSentinel(t *testing.T) {
	svc := New(scripted{badJSON: map[int]bool{2: true}}.provider(), emptyRegistry(t), Options{}, logging.Discard(), nil)
	res, err := svc.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.True(t, res.Agents[1].Failed())
	assert.False(t, res.Agents[0].Failed())
}

func TestRunPlanningFallback(t *testing.T) {
	p := scripted{planErr: errors.New("rate limited")}.provider()
	svc := New(p, emptyRegistry(t), Options{}, logging.Discard(), nil)
	res, err := svc.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, FallbackPlan, res.Plan)
	for _, req := range p.Requests() {
		if req.Stage == StageAgents {
			assert.Equal(t, FallbackPlan, req.Messages[1].Content)
		}
	}
}

func TestRunAssessmentAndSynthesisErrorsSurface(t *testing.T) {
	boom := errors.New("provider down")

	svc := New(scripted{assessErr: boom}.provider(), emptyRegistry(t), Options{}, logging.Discard(), nil)
	_, err := svc.Run(context.Background(), Request{Query: "q"})
	require.ErrorIs(t, err, boom)

	svc = New(scripted{synthErr: boom}.provider(), emptyRegistry(t), Options{}, logging.Discard(), nil)
	_, err = svc.Run(context.Background(), Request{Query: "q"})
	require.ErrorIs(t, err, boom)
}

func TestRunAssessmentInputAndSchema(t *testing.T) {
	p := scripted{failAgents: map[int]bool{4: true}}.provider()
	svc := New(p, emptyRegistry(t), Options{}, logging.Discard(), nil)
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"verdict": map[string]any{"type": "string"}},
	}
	_, err := svc.Run(context.Background(), Request{Query: "q", JSONSchema: schema})
	require.NoError(t, err)

	var assess, synth models.CompletionRequest
	for _, req := range p.Requests() {
		switch req.Stage {
		case StageAssessment:
			assess = req
		case StageSynthesis:
			synth = req
		case StageAgents:
			assert.Equal(t, AgentResponseSchema(), req.Schema)
		}
	}
	assert.Equal(t, schema, assess.Schema)
	assert.Nil(t, synth.Schema)
	lines := strings.Split(assess.Messages[1].Content, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Agent 1: answer 1", lines[0])
	assert.Equal(t, "Agent 4: "+FailedAgentText, lines[3])
	assert.True(t, strings.HasPrefix(synth.Messages[1].Content, "User's original query: q\n\nExpert analysis: ASSESSMENT"))
}

func TestRunRejectsBadRequests(t *testing.T) {
	svc := New(scripted{}.provider(), emptyRegistry(t), Options{}, logging.Discard(), nil)
	_, err := svc.Run(context.Background(), Request{Query: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = svc.Run(context.Background(), Request{Query: "q", JSONSchema: map[string]any{"type": "bogus"}})
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestEnrichmentSkipsFailingURLs(t *testing.T) {
	fetch := capability.Func{
		FuncName: ContentTool,
		Params:   map[string]capability.Parameter{"url": {Type: "string", Required: true}},
		Fn: func(_ context.Context, args map[string]any) (any, error) {
			u, _ := capability.RequiredString(args, "url")
			if strings.Contains(u, "broken") {
				return nil, errors.New("connection refused")
			}
			return map[string]any{"url": u, "markdown": "# Good page", "title": "Good"}, nil
		},
	}
	reg, err := capability.NewRegistry(nil, fetch)
	require.NoError(t, err)

	logger, hook := logtest.NewNullLogger()
	p := scripted{}.provider()
	svc := New(p, reg, Options{}, logger, nil)

	query := "Compare https://good.example/a and https://broken.example/b please"
	res, err := svc.Run(context.Background(), Request{Query: query})
	require.NoError(t, err)

	assert.Equal(t, query+"\n\n--- Content from https://good.example/a ---\n# Good page", res.EnrichedQuery)
	assert.Equal(t, 1, strings.Count(res.EnrichedQuery, "--- Content from"))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["url"] == "https://broken.example/b" {
			warned = true
		}
	}
	assert.True(t, warned, "expected a warning for the failing url")

	planning := p.Requests()[0]
	assert.Equal(t, StagePlanning, planning.Stage)
	assert.Equal(t, res.EnrichedQuery, planning.Messages[1].Content)
}

func TestExtractURLs(t *testing.T) {
	got := ExtractURLs("see https://a.io/x and http://b.io, again https://a.io/x\nhttps://c.io")
	assert.Equal(t, []string{"https://a.io/x", "http://b.io,", "https://c.io"}, got)
	assert.Empty(t, ExtractURLs("no links here"))
}

func TestCustomRoles(t *testing.T) {
	roles := DefaultRoles()[:2]
	svc := New(scripted{}.provider(), emptyRegistry(t), Options{Roles: roles}, logging.Discard(), nil)
	res, err := svc.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.Len(t, res.Agents, 2)
	assert.Contains(t, plannerPrompt(roles), "coordinating 2 expert agents")
}
