package choir

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/choir/internal/capability"
	"github.com/mohammad-safakhou/choir/internal/logging"
	"github.com/mohammad-safakhou/choir/internal/telemetry"
	"github.com/mohammad-safakhou/choir/models"
	"github.com/mohammad-safakhou/choir/provider"
	"golang.org/x/sync/errgroup"
)

// Stage names, used as provider request tags.
const (
	StagePlanning   = "planning"
	StageAgents     = "agents"
	StageAssessment = "assessment"
	StageSynthesis  = "synthesis"
)

// StageModels selects the model per stage; empty means the provider default.
type StageModels struct {
	Planning   string
	Agents     string
	Assessment string
	Synthesis  string
}

// Options configure the pipeline.
type Options struct {
	Roles  []Role
	Models StageModels
}

// Service runs the enrich, plan, fan-out, assess and synthesize pipeline.
// It is safe for concurrent use; every call gets its own state.
type Service struct {
	provider provider.Provider
	registry *capability.Registry
	opts     Options
	logger   logging.Logger
	metrics  *telemetry.Metrics
}

// New builds a Service. p should already be gated by the dispatch gate.
func New(p provider.Provider, registry *capability.Registry, opts Options, logger logging.Logger, metrics *telemetry.Metrics) *Service {
	if len(opts.Roles) == 0 {
		opts.Roles = DefaultRoles()
	}
	return &Service{
		provider: p,
		registry: registry,
		opts:     opts,
		logger:   logging.Component(logger, "choir"),
		metrics:  metrics,
	}
}

// Roles returns the configured agent roles.
func (s *Service) Roles() []Role { return s.opts.Roles }

// Run executes the whole pipeline. Only assessment and synthesis failures
// are returned as errors; earlier stages degrade instead.
func (s *Service) Run(ctx context.Context, req Request) (res *Result, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()
	defer func() { s.metrics.ObservePipeline(started, err) }()

	res = &Result{}
	res.EnrichedQuery = s.enrich(ctx, req.Query)
	res.Plan = s.plan(ctx, res.EnrichedQuery)
	res.Agents = s.fanOut(ctx, res.Plan)

	res.Assessment, err = s.complete(ctx, StageAssessment, s.opts.Models.Assessment,
		assessmentPrompt(len(res.Agents)), assessmentInput(res.Agents), req.JSONSchema)
	if err != nil {
		return nil, fmt.Errorf("assessment: %w", err)
	}

	res.Answer, err = s.complete(ctx, StageSynthesis, s.opts.Models.Synthesis,
		synthesisPrompt, synthesisInput(req.Query, res.Assessment, res.Agents), nil)
	if err != nil {
		return nil, fmt.Errorf("synthesis: %w", err)
	}
	return res, nil
}

func (s *Service) plan(ctx context.Context, query string) string {
	plan, err := s.complete(ctx, StagePlanning, s.opts.Models.Planning, plannerPrompt(s.opts.Roles), query, nil)
	if err != nil {
		s.logger.WithError(err).Warn("planning failed; using fallback plan")
		return FallbackPlan
	}
	return plan
}

// fanOut runs one call per role concurrently and waits for all of them.
// Slot i always holds role i's response or the failure sentinel.
func (s *Service) fanOut(ctx context.Context, plan string) []AgentResponse {
	results := make([]AgentResponse, len(s.opts.Roles))
	var g errgroup.Group
	for i, role := range s.opts.Roles {
		g.Go(func() error {
			results[i] = s.runAgent(ctx, i, role, plan)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Service) runAgent(ctx context.Context, i int, role Role, plan string) AgentResponse {
	log := s.logger.WithField("agent", i+1).WithField("role", role.Title)
	raw, err := s.complete(ctx, StageAgents, s.opts.Models.Agents, agentPrompt(i, role), plan, AgentResponseSchema())
	if err != nil {
		log.WithError(err).Error("agent failed to respond")
		s.metrics.AgentFailed()
		return FailedAgentResponse()
	}
	resp, err := ParseAgentResponse(raw)
	if err != nil {
		log.WithError(err).WithField("raw", raw).Error("agent returned an unusable response")
		s.metrics.AgentFailed()
		return FailedAgentResponse()
	}
	return resp
}

func (s *Service) complete(ctx context.Context, stage, model, system, user string, schema map[string]any) (string, error) {
	resp, err := s.provider.Complete(ctx, models.CompletionRequest{
		Stage:    stage,
		Model:    model,
		Messages: []models.Message{models.SystemMessage(system), models.UserMessage(user)},
		Schema:   schema,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
