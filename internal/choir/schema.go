package choir

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// AgentResponseSchema is sent as the structured-output schema for every agent call.
func AgentResponseSchema() map[string]any {
	field := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"detailed_response": field("Comprehensive analysis, multiple paragraphs"),
			"short_overview":    field("Brief 2-3 sentence summary"),
			"thoughts":          field("Reasoning behind the response"),
		},
		"required":             []any{"detailed_response", "short_overview", "thoughts"},
		"additionalProperties": false,
	}
}

var (
	compileOnce sync.Once
	agentSchema *jsonschema.Schema
	compileErr  error
)

func compiledAgentSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		agentSchema, compileErr = compile("agent_response.json", AgentResponseSchema())
	})
	return agentSchema, compileErr
}

func compile(name string, doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// CompileSchema reports whether doc is a usable JSON Schema.
func CompileSchema(name string, doc map[string]any) error {
	_, err := compile(name, doc)
	return err
}

// ParseAgentResponse validates raw model output against the agent schema.
func ParseAgentResponse(raw string) (AgentResponse, error) {
	schema, err := compiledAgentSchema()
	if err != nil {
		return AgentResponse{}, err
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return AgentResponse{}, fmt.Errorf("agent reply is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return AgentResponse{}, fmt.Errorf("agent reply does not match schema: %w", err)
	}
	var resp AgentResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return AgentResponse{}, err
	}
	return resp, nil
}
