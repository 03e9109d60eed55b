package capability

import (
	"context"
	"errors"
	"testing"
)

func echoFunc(name string) Func {
	return Func{
		FuncName:        name,
		FuncDescription: "echoes its text argument",
		Params: map[string]Parameter{
			"text":  {Type: "string", Description: "text to echo", Required: true},
			"style": {Type: "string", Description: "output style", Enum: []string{"plain", "loud"}},
		},
		Fn: func(_ context.Context, args map[string]any) (any, error) {
			text, err := RequiredString(args, "text")
			if err != nil {
				return nil, err
			}
			style, err := OptionalString(args, "style", "plain")
			if err != nil {
				return nil, err
			}
			return map[string]string{"text": text, "style": style}, nil
		},
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(nil, echoFunc("echo"), echoFunc("echo"))
	if !errors.Is(err, ErrDuplicateFunction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := NewRegistry(nil, echoFunc(" ")); err == nil {
		t.Fatalf("expected empty name error")
	}
}

func TestListIsSortedWithChecksums(t *testing.T) {
	reg, err := NewRegistry(nil, echoFunc("zeta"), echoFunc("alpha"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	list := reg.List()
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Fatalf("unexpected order: %#v", list)
	}
	if list[0].Checksum == "" || list[0].Checksum == list[1].Checksum {
		t.Fatalf("expected distinct non-empty checksums: %q %q", list[0].Checksum, list[1].Checksum)
	}
}

func TestInvokeUnknownIsIdempotent(t *testing.T) {
	reg, err := NewRegistry(nil, echoFunc("echo"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	_, err1 := reg.Invoke(context.Background(), "nope", nil)
	_, err2 := reg.Invoke(context.Background(), "nope", nil)
	if err1 == nil || err2 == nil {
		t.Fatalf("expected errors for unknown function")
	}
	if err1.Error() != err2.Error() || err1.Error() != "function 'nope' not found" {
		t.Fatalf("unexpected errors: %q / %q", err1, err2)
	}
	var nf *NotFoundError
	if !errors.As(err1, &nf) || nf.Name != "nope" {
		t.Fatalf("expected *NotFoundError, got %T", err1)
	}
	if len(reg.List()) != 1 {
		t.Fatalf("registry mutated by failed invoke")
	}
}

func TestInvokeValidatesInsideFunction(t *testing.T) {
	reg, _ := NewRegistry(nil, echoFunc("echo"))
	_, err := reg.Invoke(context.Background(), "echo", map[string]any{})
	var pe *ParameterError
	if !errors.As(err, &pe) || pe.Name != "text" {
		t.Fatalf("expected missing text parameter, got %v", err)
	}
	if err.Error() != "missing required parameter: text" {
		t.Fatalf("unexpected message: %q", err)
	}

	out, err := reg.Invoke(context.Background(), "echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	got := out.(map[string]string)
	if got["text"] != "hi" || got["style"] != "plain" {
		t.Fatalf("unexpected result: %#v", got)
	}
}

func TestInvokeRecoversPanics(t *testing.T) {
	reg, _ := NewRegistry(nil, Func{
		FuncName: "explode",
		Fn:       func(context.Context, map[string]any) (any, error) { panic("kaboom") },
	})
	if _, err := reg.Invoke(context.Background(), "explode", nil); err == nil {
		t.Fatalf("expected panic to surface as error")
	}
}

func TestDescriptorSchema(t *testing.T) {
	reg, _ := NewRegistry(nil, echoFunc("echo"))
	schema := reg.List()[0].Schema()
	if schema["type"] != "object" {
		t.Fatalf("unexpected type: %v", schema["type"])
	}
	req := schema["required"].([]string)
	if len(req) != 1 || req[0] != "text" {
		t.Fatalf("unexpected required: %#v", req)
	}
	props := schema["properties"].(map[string]any)
	style := props["style"].(map[string]any)
	if enum := style["enum"].([]string); len(enum) != 2 {
		t.Fatalf("enum not rendered: %#v", style)
	}
}

func TestToolsMirrorDescriptors(t *testing.T) {
	reg, _ := NewRegistry(nil, echoFunc("echo"))
	tools := reg.Tools()
	if len(tools) != 1 || tools[0].Name != "echo" || tools[0].Parameters["type"] != "object" {
		t.Fatalf("unexpected tools: %#v", tools)
	}
}
