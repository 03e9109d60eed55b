package capability

import (
	"context"
	"fmt"
	"strings"
)

// Parameter describes one named argument of a Function.
type Parameter struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// Function is a named capability the model (or the orchestrator) can invoke.
// Implementations validate their own arguments and must be safe for
// concurrent use.
type Function interface {
	Name() string
	Description() string
	Parameters() map[string]Parameter
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Func adapts a plain Go function to the Function interface.
type Func struct {
	FuncName        string
	FuncDescription string
	Params          map[string]Parameter
	Fn              func(ctx context.Context, args map[string]any) (any, error)
}

func (f Func) Name() string                     { return f.FuncName }
func (f Func) Description() string              { return f.FuncDescription }
func (f Func) Parameters() map[string]Parameter { return f.Params }

func (f Func) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f.Fn(ctx, args)
}

// ParameterError reports a missing or malformed argument.
type ParameterError struct {
	Name   string
	Reason string
}

func (e *ParameterError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing required parameter: %s", e.Name)
	}
	return fmt.Sprintf("invalid parameter %s: %s", e.Name, e.Reason)
}

// RequiredString returns a non-empty string argument or a *ParameterError.
func RequiredString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", &ParameterError{Name: key}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &ParameterError{Name: key, Reason: fmt.Sprintf("expected string, got %T", raw)}
	}
	if strings.TrimSpace(s) == "" {
		return "", &ParameterError{Name: key}
	}
	return s, nil
}

// OptionalString returns the string argument or def when absent or empty.
func OptionalString(args map[string]any, key, def string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", &ParameterError{Name: key, Reason: fmt.Sprintf("expected string, got %T", raw)}
	}
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	return s, nil
}
