package token

import (
	"strings"
	"testing"

	"github.com/easyops/memflow-go/pkg/core/message"
)

func TestHeuristicCounterIsDeterministic(t *testing.T) {
	c := NewHeuristicCounter("mystery-model")

	text := "context assembly under a fixed token budget"
	first := c.Count(text)
	if first <= 0 {
		t.Fatalf("Count() = %d, want positive", first)
	}
	if second := c.Count(text); second != first {
		t.Errorf("Count() not deterministic: %d then %d", first, second)
	}
}

func TestHeuristicCounterMonotonicOnAppend(t *testing.T) {
	c := NewHeuristicCounter("mystery-model")

	base := "short prefix"
	longer := base + " with appended suffix text"
	if c.Count(longer) < c.Count(base) {
		t.Errorf("count shrank on append: %d < %d", c.Count(longer), c.Count(base))
	}
}

func TestHeuristicCounterEmptyText(t *testing.T) {
	c := NewHeuristicCounter("mystery-model")
	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
}

func TestUnknownFamilyOverEstimates(t *testing.T) {
	known := NewHeuristicCounter("gpt-4o")
	unknown := NewHeuristicCounter("totally-new-model")

	text := strings.Repeat("some ordinary prose about memory tiers ", 20)
	if unknown.Count(text) < known.Count(text) {
		t.Errorf("unknown family should not under-estimate: %d < %d",
			unknown.Count(text), known.Count(text))
	}
}

func TestEstimateMessagesIncludesOverhead(t *testing.T) {
	c := NewHeuristicCounter("gpt-4o")

	msgs := []message.Message{
		message.NewUserMessage("hello"),
		message.NewAssistantMessage("hi there"),
	}
	bare := c.Count("hello") + c.Count("hi there")
	if got := c.EstimateMessages(msgs); got < bare {
		t.Errorf("EstimateMessages() = %d, want at least %d", got, bare)
	}
}

func TestModelReportsIdentifier(t *testing.T) {
	c := NewHeuristicCounter("claude-sonnet")
	if c.Model() != "claude-sonnet" {
		t.Errorf("Model() = %q", c.Model())
	}
}
