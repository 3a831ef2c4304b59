package tools

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/easyops/memflow-go/pkg/core/errors"
)

func echoTool() *FuncTool {
	return NewFuncTool("echo", "echoes the input text",
		ParameterSchema{
			Type: "object",
			Properties: map[string]PropertySchema{
				"text": {Type: "string", Description: "text to echo"},
			},
			Required: []string{"text"},
		},
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			return args["text"].(string), nil
		},
	)
}

func TestRegistryDuplicate(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(echoTool()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register(echoTool()); !errors.Is(err, errors.ErrDuplicateTool) {
		t.Errorf("duplicate Register = %v, want ErrDuplicateTool", err)
	}
	// The original registration survives a duplicate attempt.
	if _, err := registry.Get("echo"); err != nil {
		t.Errorf("original tool lost after duplicate register: %v", err)
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Get("missing"); !errors.Is(err, errors.ErrToolNotFound) {
		t.Errorf("Get = %v, want ErrToolNotFound", err)
	}
}

func TestRegistryListSorted(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		n := name
		registry.MustRegister(NewFuncTool(n, "test tool", ParameterSchema{Type: "object"},
			func(ctx context.Context, args map[string]interface{}) (string, error) {
				return "", nil
			}))
	}

	names := registry.List()
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("List() = %v, want %v", names, want)
		}
	}
}

func TestInvokeValidatesBeforeExecute(t *testing.T) {
	executed := false
	registry := NewRegistry()
	registry.MustRegister(NewFuncTool("strict", "requires a string argument",
		ParameterSchema{
			Type: "object",
			Properties: map[string]PropertySchema{
				"query": {Type: "string"},
			},
			Required: []string{"query"},
		},
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			executed = true
			return "ok", nil
		},
	))

	inv := NewInvoker(registry)

	// Missing required parameter.
	_, err := inv.Invoke(context.Background(), "strict", map[string]interface{}{})
	if !errors.Is(err, errors.ErrInvalidParameters) {
		t.Errorf("Invoke = %v, want ErrInvalidParameters", err)
	}

	// Wrong type.
	_, err = inv.Invoke(context.Background(), "strict", map[string]interface{}{"query": 42})
	if !errors.Is(err, errors.ErrInvalidParameters) {
		t.Errorf("Invoke = %v, want ErrInvalidParameters", err)
	}

	if executed {
		t.Errorf("tool executed despite failing validation")
	}
}

func TestInvokeWrapsExecutionFailure(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(NewFuncTool("flaky", "always fails",
		ParameterSchema{Type: "object"},
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "", fmt.Errorf("backend unreachable")
		},
	))

	inv := NewInvoker(registry)
	result, err := inv.Invoke(context.Background(), "flaky", map[string]interface{}{})
	if !errors.Is(err, errors.ErrToolExecutionFailed) {
		t.Errorf("Invoke = %v, want ErrToolExecutionFailed", err)
	}
	if result.Success {
		t.Errorf("result.Success = true for failed execution")
	}
}

func TestInvokeTimeout(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(NewFuncTool("slow", "sleeps past the deadline",
		ParameterSchema{Type: "object"},
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(5 * time.Second):
				return "done", nil
			}
		},
	))

	inv := NewInvoker(registry, WithInvokerTimeout(10*time.Millisecond))
	if _, err := inv.Invoke(context.Background(), "slow", map[string]interface{}{}); !errors.Is(err, errors.ErrToolExecutionFailed) {
		t.Errorf("Invoke = %v, want ErrToolExecutionFailed wrapping deadline", err)
	}
}

func TestToolResultToContextItem(t *testing.T) {
	result := NewToolResult("search", "three documents found")
	item := result.ToContextItem()

	if item.Priority.String() != "high" {
		t.Errorf("item.Priority = %s, want high", item.Priority)
	}
	if item.Source != "tool" {
		t.Errorf("item.Source = %s, want tool", item.Source)
	}
}
