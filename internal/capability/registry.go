package capability

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/choir/internal/telemetry"
	"github.com/mohammad-safakhou/choir/models"
)

// Descriptor is the advertised shape of a registered Function.
type Descriptor struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]Parameter `json:"parameters"`
	Checksum    string               `json:"checksum"`
}

// Schema renders the parameters as a JSON-Schema object for provider tool lists.
func (d Descriptor) Schema() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	required := make([]string, 0, len(d.Parameters))
	for name, p := range d.Parameters {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// ComputeChecksum returns a deterministic hash of the descriptor payload.
func ComputeChecksum(d Descriptor) (string, error) {
	payload := map[string]any{
		"name":        d.Name,
		"description": d.Description,
		"parameters":  d.Parameters,
	}
	normalized, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:]), nil
}

// NotFoundError is returned when invoking a name that is not registered.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("function '%s' not found", e.Name) }

// ErrDuplicateFunction indicates two functions share a name.
var ErrDuplicateFunction = errors.New("duplicate function name")

// Registry holds the functions known at startup, keyed by name. It is
// read-only after construction.
type Registry struct {
	funcs       map[string]Function
	descriptors []Descriptor
	metrics     *telemetry.Metrics
}

// NewRegistry validates and registers fns.
func NewRegistry(metrics *telemetry.Metrics, fns ...Function) (*Registry, error) {
	reg := &Registry{funcs: make(map[string]Function, len(fns)), metrics: metrics}
	for _, fn := range fns {
		name := strings.TrimSpace(fn.Name())
		if name == "" {
			return nil, fmt.Errorf("function with empty name")
		}
		if _, ok := reg.funcs[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFunction, name)
		}
		d := Descriptor{Name: name, Description: fn.Description(), Parameters: fn.Parameters()}
		sum, err := ComputeChecksum(d)
		if err != nil {
			return nil, fmt.Errorf("checksum %s: %w", name, err)
		}
		d.Checksum = sum
		reg.funcs[name] = fn
		reg.descriptors = append(reg.descriptors, d)
	}
	sort.Slice(reg.descriptors, func(i, j int) bool { return reg.descriptors[i].Name < reg.descriptors[j].Name })
	return reg, nil
}

// List returns descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	if r == nil {
		return nil
	}
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Tools renders the registry as provider tool definitions.
func (r *Registry) Tools() []models.Tool {
	list := r.List()
	out := make([]models.Tool, len(list))
	for i, d := range list {
		out[i] = models.Tool{Name: d.Name, Description: d.Description, Parameters: d.Schema()}
	}
	return out
}

// Get returns the function registered under name.
func (r *Registry) Get(name string) (Function, bool) {
	if r == nil {
		return nil, false
	}
	fn, ok := r.funcs[name]
	return fn, ok
}

// Invoke runs the named function. Unknown names yield *NotFoundError; a panic
// inside the function is turned into an error.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (result any, err error) {
	fn, ok := r.Get(name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	if args == nil {
		args = map[string]any{}
	}
	defer func() {
		if rec := recover(); rec != nil {
			result, err = nil, fmt.Errorf("function %s panicked: %v", name, rec)
		}
		r.metrics.ObserveTool(name, err)
	}()
	return fn.Execute(ctx, args)
}
