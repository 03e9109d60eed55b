package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/choir/internal/capability"
	"github.com/mohammad-safakhou/choir/internal/logging"
	"github.com/mohammad-safakhou/choir/models"
	"github.com/mohammad-safakhou/choir/provider"
)

const (
	DefaultSystemPrompt = "Cut, to the point, and concise. Do not repeat yourself."
	DefaultMaxRounds    = 8

	// NoResponse is returned when the model ends without any text.
	NoResponse = "LLM failed to respond."

	// Stage tags provider requests made by the loop.
	Stage = "interactive"
)

// State is the loop's position in its lifecycle.
type State int

const (
	StateInit State = iota
	StateAwaitingProvider
	StateExecutingTools
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingProvider:
		return "awaiting_provider"
	case StateExecutingTools:
		return "executing_tools"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Options configure a Loop.
type Options struct {
	SystemPrompt string
	Model        string
	MaxRounds    int // provider round-trips per run
}

// Loop alternates between the provider and the function registry until the
// model answers without requesting tools or MaxRounds is reached.
type Loop struct {
	provider provider.Provider
	registry *capability.Registry
	opts     Options
	logger   logging.Logger
}

// Result is the outcome of one Run.
type Result struct {
	SessionID  string           `json:"session_id"`
	Text       string           `json:"answer"`
	Transcript []models.Message `json:"-"`
	Rounds     int              `json:"rounds"`
	Truncated  bool             `json:"truncated"`
}

// New builds a loop. p should already be gated by the dispatch gate.
func New(p provider.Provider, registry *capability.Registry, opts Options, logger logging.Logger) *Loop {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	return &Loop{provider: p, registry: registry, opts: opts, logger: logging.Component(logger, "conversation")}
}

// Run drives one prompt to completion. A provider error aborts the run;
// tool errors are fed back to the model as tool messages.
func (l *Loop) Run(ctx context.Context, prompt string) (*Result, error) {
	res := &Result{SessionID: uuid.NewString()}
	log := l.logger.WithField("session_id", res.SessionID)

	state := StateInit
	transcript := []models.Message{
		models.SystemMessage(l.opts.SystemPrompt),
		models.UserMessage(prompt),
	}
	tools := l.registry.Tools()
	lastText := ""

	for state != StateDone {
		switch state {
		case StateInit:
			state = StateAwaitingProvider

		case StateAwaitingProvider:
			res.Rounds++
			reply, err := l.provider.Complete(ctx, models.CompletionRequest{
				Stage:    Stage,
				Model:    l.opts.Model,
				Messages: transcript,
				Tools:    tools,
			})
			if err != nil {
				res.Transcript = transcript
				return res, fmt.Errorf("round %d: %w", res.Rounds, err)
			}
			if reply.Content != "" {
				lastText = reply.Content
			}
			if len(reply.ToolCalls) == 0 {
				transcript = append(transcript, models.Message{Role: models.RoleAssistant, Content: reply.Content})
				res.Text = reply.Content
				state = StateDone
				continue
			}
			transcript = append(transcript, models.Message{
				Role:      models.RoleAssistant,
				Content:   reply.Content,
				ToolCalls: reply.ToolCalls,
			})
			if res.Rounds >= l.opts.MaxRounds {
				log.WithField("rounds", res.Rounds).Warn("tool round limit reached; returning partial answer")
				res.Truncated = true
				res.Text = lastText
				state = StateDone
				continue
			}
			state = StateExecutingTools

		case StateExecutingTools:
			pending := transcript[len(transcript)-1].ToolCalls
			for _, call := range pending {
				transcript = append(transcript, models.ToolMessage(call.ID, l.execute(ctx, log, call)))
			}
			state = StateAwaitingProvider
		}
	}

	if res.Text == "" {
		res.Text = NoResponse
	}
	res.Transcript = transcript
	return res, nil
}

func (l *Loop) execute(ctx context.Context, log logging.Logger, call models.ToolCall) string {
	args := DecodeArguments(call.Arguments)
	out, err := l.registry.Invoke(ctx, call.Name, args)
	if err != nil {
		log.WithError(err).WithField("tool", call.Name).Info("tool call failed")
		return "Error: " + err.Error()
	}
	return encodeResult(out)
}

// DecodeArguments parses model-supplied arguments. Anything that is not a
// JSON object becomes an empty map; the tool reports what is missing.
func DecodeArguments(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

func encodeResult(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "Error: " + err.Error()
	}
	return string(b)
}
