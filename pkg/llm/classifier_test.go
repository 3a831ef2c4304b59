package llm

import (
	"context"
	"testing"

	"github.com/easyops/memflow-go/pkg/tools"
)

// scriptedCompleter 返回固定回复的补全桩
type scriptedCompleter struct {
	reply string
}

func (s scriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return s.reply, nil
}

func sampleDefs() []tools.ToolDefinition {
	return []tools.ToolDefinition{
		{Name: "weather", Description: "current weather"},
		{Name: "clock", Description: "current time"},
	}
}

func TestClassifyParsesToolCalls(t *testing.T) {
	c := NewToolClassifier(scriptedCompleter{
		reply: `Based on the query, these apply: [{"name": "weather", "args": {"city": "Hangzhou"}}]`,
	})

	calls, err := c.Classify(context.Background(), "is it raining in Hangzhou", sampleDefs())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Name != "weather" || calls[0].Args["city"] != "Hangzhou" {
		t.Errorf("call = %+v", calls[0])
	}
}

func TestClassifyEmptyArrayMeansNoTools(t *testing.T) {
	c := NewToolClassifier(scriptedCompleter{reply: "[]"})

	calls, err := c.Classify(context.Background(), "just chatting", sampleDefs())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("calls = %+v, want none", calls)
	}
}

func TestClassifyMalformedReplyIsNotAnError(t *testing.T) {
	c := NewToolClassifier(scriptedCompleter{reply: "I cannot decide."})

	calls, err := c.Classify(context.Background(), "hello", sampleDefs())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("calls = %+v, want none", calls)
	}
}

func TestClassifyNoDefinitionsShortCircuits(t *testing.T) {
	c := NewToolClassifier(scriptedCompleter{reply: `[{"name": "ghost"}]`})

	calls, err := c.Classify(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if calls != nil {
		t.Errorf("calls = %+v, want nil", calls)
	}
}
