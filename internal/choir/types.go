package choir

import (
	"errors"
	"strings"
)

// FailedAgentText fills every field of the failure sentinel.
const FailedAgentText = "Agent failed while generating. Discount them from processing."

// FallbackPlan replaces the plan when the planning call fails.
const FallbackPlan = "Task Master failed to generate task."

var (
	// ErrEmptyQuery rejects a request without a query.
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrInvalidSchema rejects a caller json_schema that does not compile.
	ErrInvalidSchema = errors.New("invalid json_schema")
)

// Request is one pipeline invocation.
type Request struct {
	Query      string         `json:"query"`
	JSONSchema map[string]any `json:"json_schema,omitempty"`
}

// Validate checks the query and compiles the optional schema.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return ErrEmptyQuery
	}
	if r.JSONSchema != nil {
		if err := CompileSchema("json_schema.json", r.JSONSchema); err != nil {
			return errors.Join(ErrInvalidSchema, err)
		}
	}
	return nil
}

// AgentResponse is the structured reply of one fan-out agent.
type AgentResponse struct {
	DetailedResponse string `json:"detailed_response"`
	ShortOverview    string `json:"short_overview"`
	Thoughts         string `json:"thoughts"`
}

// FailedAgentResponse is the sentinel standing in for an agent that failed.
func FailedAgentResponse() AgentResponse {
	return AgentResponse{
		DetailedResponse: FailedAgentText,
		ShortOverview:    FailedAgentText,
		Thoughts:         FailedAgentText,
	}
}

// Failed reports whether r is the failure sentinel.
func (r AgentResponse) Failed() bool { return r == FailedAgentResponse() }

// Result carries every stage's output; Answer is what callers receive.
type Result struct {
	Answer        string          `json:"answer"`
	Assessment    string          `json:"assessment"`
	Plan          string          `json:"plan"`
	EnrichedQuery string          `json:"enriched_query"`
	Agents        []AgentResponse `json:"agents"`
}
