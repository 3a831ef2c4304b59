package context

import (
	stdctx "context"
	"fmt"
	"testing"
	"time"

	"github.com/easyops/memflow-go/pkg/core/errors"
	"github.com/easyops/memflow-go/pkg/core/message"
)

// fixedCounter reports a constant token count for any text.
type fixedCounter struct {
	tokens int
}

func (c *fixedCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return c.tokens
}

func (c *fixedCounter) EstimateMessages(messages []message.Message) int {
	return c.tokens * len(messages)
}

func (c *fixedCounter) Model() string { return "fixed" }

// stubSummarizer returns a canned summary and records its inputs.
type stubSummarizer struct {
	lastTarget int
	lastText   string
	calls      int
	err        error
}

func (s *stubSummarizer) Summarize(ctx stdctx.Context, text string, targetTokens int) (string, error) {
	s.calls++
	s.lastText = text
	s.lastTarget = targetTokens
	if s.err != nil {
		return "", s.err
	}
	return "condensed summary", nil
}

func sizedItem(priority Priority, tokens, seq int) *Item {
	return NewItem(fmt.Sprintf("item-%s-%d", priority, seq),
		WithPriority(priority),
		WithTokenCount(tokens),
	)
}

func TestAssembleUnderThresholdIsUntouched(t *testing.T) {
	mgr, err := NewManager(NewConfig(
		WithMaxTokens(100),
		WithReserveTokens(20),
		WithCounter(&fixedCounter{tokens: 1}),
	))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	items := []*Item{
		sizedItem(PriorityCritical, 30, 0),
		sizedItem(PriorityLow, 20, 1),
	}

	result, err := mgr.Assemble(stdctx.Background(), "", items)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if result.TotalTokens != 50 {
		t.Errorf("TotalTokens = %d, want 50", result.TotalTokens)
	}
	if len(result.Items) != 2 {
		t.Errorf("len(Items) = %d, want 2", len(result.Items))
	}
	if result.Summarized || result.Evicted != 0 {
		t.Errorf("no optimization expected under threshold: %+v", result)
	}
}

func TestAssembleSummarizesThenEvicts(t *testing.T) {
	// Budget 100 with 20 reserved: 80 available. The two LOW items
	// (55 tokens) compress to 14, leaving 104; evicting the MEDIUM
	// item brings the total to 64.
	summarizer := &stubSummarizer{}
	mgr, err := NewManager(NewConfig(
		WithMaxTokens(100),
		WithReserveTokens(20),
		WithCounter(&fixedCounter{tokens: 14}),
	), WithSummarizer(summarizer))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	items := []*Item{
		sizedItem(PriorityCritical, 30, 0),
		sizedItem(PriorityHigh, 20, 1),
		sizedItem(PriorityMedium, 40, 2),
		sizedItem(PriorityLow, 30, 3),
		sizedItem(PriorityLow, 25, 4),
	}

	result, err := mgr.Assemble(stdctx.Background(), "", items)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if !result.Summarized {
		t.Errorf("expected summarization to run")
	}
	if summarizer.lastTarget != 14 {
		t.Errorf("summary target = %d, want 14 (25%% of 55)", summarizer.lastTarget)
	}
	if result.Evicted != 1 {
		t.Errorf("Evicted = %d, want 1", result.Evicted)
	}
	if result.TotalTokens != 64 {
		t.Errorf("TotalTokens = %d, want 64", result.TotalTokens)
	}
	if len(result.Items) != 3 {
		t.Fatalf("len(Items) = %d, want 3 (critical, high, summary)", len(result.Items))
	}

	// Priority-descending order with the summary item last.
	if result.Items[0].Priority != PriorityCritical {
		t.Errorf("Items[0].Priority = %s, want critical", result.Items[0].Priority)
	}
	if result.Items[1].Priority != PriorityHigh {
		t.Errorf("Items[1].Priority = %s, want high", result.Items[1].Priority)
	}
	if !result.Items[2].Summary || result.Items[2].Priority != PrioritySummary {
		t.Errorf("Items[2] should be the summary item, got %+v", result.Items[2])
	}
}

func TestAssembleItemTooLarge(t *testing.T) {
	mgr, err := NewManager(NewConfig(
		WithMaxTokens(100),
		WithReserveTokens(0),
		WithCounter(&fixedCounter{tokens: 1}),
	))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	items := []*Item{sizedItem(PriorityHigh, 150, 0)}

	if _, err := mgr.Assemble(stdctx.Background(), "", items); !errors.Is(err, errors.ErrItemTooLarge) {
		t.Errorf("Assemble = %v, want ErrItemTooLarge", err)
	}
}

func TestAssembleOverflowWhenOnlyCriticalRemains(t *testing.T) {
	mgr, err := NewManager(NewConfig(
		WithMaxTokens(100),
		WithReserveTokens(20),
		WithCounter(&fixedCounter{tokens: 1}),
	))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	// Each critical item fits on its own, together they cannot.
	items := []*Item{
		sizedItem(PriorityCritical, 50, 0),
		sizedItem(PriorityCritical, 50, 1),
	}

	if _, err := mgr.Assemble(stdctx.Background(), "", items); !errors.Is(err, errors.ErrContextOverflow) {
		t.Errorf("Assemble = %v, want ErrContextOverflow", err)
	}
}

func TestAssembleNeverResummarizes(t *testing.T) {
	summarizer := &stubSummarizer{}
	mgr, err := NewManager(NewConfig(
		WithMaxTokens(100),
		WithReserveTokens(20),
		WithCounter(&fixedCounter{tokens: 10}),
	), WithSummarizer(summarizer))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	summary := newSummaryItem("previous summary", 60, time.Time{})
	items := []*Item{
		sizedItem(PriorityCritical, 30, 0),
		summary,
	}

	result, err := mgr.Assemble(stdctx.Background(), "", items)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	// 90 > 68 triggers optimization, but the existing summary item
	// has nothing below Medium to feed the summarizer.
	if summarizer.calls != 0 {
		t.Errorf("summarizer called %d times on summary-only input, want 0", summarizer.calls)
	}
	// Eviction removes the old summary as the only non-critical item.
	if result.Evicted != 1 {
		t.Errorf("Evicted = %d, want 1", result.Evicted)
	}
}

func TestAssembleSkipsUnprofitableSummary(t *testing.T) {
	// Summary counts larger than its input, so the originals stay
	// and eviction handles the overflow.
	summarizer := &stubSummarizer{}
	mgr, err := NewManager(NewConfig(
		WithMaxTokens(100),
		WithReserveTokens(20),
		WithCounter(&fixedCounter{tokens: 200}),
	), WithSummarizer(summarizer))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	items := []*Item{
		sizedItem(PriorityCritical, 30, 0),
		sizedItem(PriorityLow, 30, 1),
		sizedItem(PriorityLow, 25, 2),
	}

	result, err := mgr.Assemble(stdctx.Background(), "", items)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if result.Summarized {
		t.Errorf("summary larger than input must not replace originals")
	}
	if result.Evicted == 0 {
		t.Errorf("eviction should have handled the overflow")
	}
}

func TestAssembleEvictsSummaryBeforeHigh(t *testing.T) {
	// Budget 80 with 20 reserved: 60 available. The two LOW items
	// (55 tokens) compress to 14, leaving 64. The freshly made
	// summary must go before the HIGH item does.
	summarizer := &stubSummarizer{}
	mgr, err := NewManager(NewConfig(
		WithMaxTokens(80),
		WithReserveTokens(20),
		WithCounter(&fixedCounter{tokens: 14}),
	), WithSummarizer(summarizer))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	items := []*Item{
		sizedItem(PriorityCritical, 30, 0),
		sizedItem(PriorityHigh, 20, 1),
		sizedItem(PriorityLow, 30, 2),
		sizedItem(PriorityLow, 25, 3),
	}

	result, err := mgr.Assemble(stdctx.Background(), "", items)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if result.Evicted != 1 {
		t.Fatalf("Evicted = %d, want 1 (the summary)", result.Evicted)
	}
	highKept := false
	for _, item := range result.Items {
		if item.Summary {
			t.Errorf("summary survived at the cost of a high-priority item")
		}
		if item.Priority == PriorityHigh {
			highKept = true
		}
	}
	if !highKept {
		t.Errorf("high-priority item evicted while a summary survived")
	}
	if result.TotalTokens != 50 {
		t.Errorf("TotalTokens = %d, want 50", result.TotalTokens)
	}
}

func TestAssembleEvictsOldestFirstWithinPriority(t *testing.T) {
	mgr, err := NewManager(NewConfig(
		WithMaxTokens(100),
		WithReserveTokens(20),
		WithCounter(&fixedCounter{tokens: 1}),
	))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	oldest := sizedItem(PriorityMedium, 30, 0)
	oldest.Content = "oldest"
	newest := sizedItem(PriorityMedium, 30, 1)
	newest.Content = "newest"

	items := []*Item{
		sizedItem(PriorityCritical, 30, 0),
		oldest,
		newest,
	}

	result, err := mgr.Assemble(stdctx.Background(), "", items)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if result.Evicted != 1 {
		t.Fatalf("Evicted = %d, want 1", result.Evicted)
	}
	for _, item := range result.Items {
		if item.Content == "oldest" {
			t.Errorf("oldest item should have been evicted before newest")
		}
	}
}

func TestAssembleRelevanceEviction(t *testing.T) {
	mgr, err := NewManager(NewConfig(
		WithMaxTokens(100),
		WithReserveTokens(20),
		WithCounter(&fixedCounter{tokens: 1}),
		WithRelevanceEviction(true),
	), WithScorer(relevanceByContent{}))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	relevant := sizedItem(PriorityMedium, 30, 0)
	relevant.Content = "hiking trails in the alps"
	irrelevant := sizedItem(PriorityMedium, 30, 1)
	irrelevant.Content = "unrelated billing data"

	items := []*Item{
		sizedItem(PriorityCritical, 30, 0),
		relevant,
		irrelevant,
	}

	result, err := mgr.Assemble(stdctx.Background(), "hiking", items)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	for _, item := range result.Items {
		if item.Content == "unrelated billing data" {
			t.Errorf("least relevant item should have been evicted first")
		}
	}
}

// relevanceByContent scores 1.0 for candidates containing the query.
type relevanceByContent struct{}

func (relevanceByContent) Score(ctx stdctx.Context, query, candidate string) (float64, error) {
	if query != "" && len(candidate) > 0 && contains(candidate, query) {
		return 1.0, nil
	}
	return 0.1, nil
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestAssembleDoesNotMutateInput(t *testing.T) {
	summarizer := &stubSummarizer{}
	mgr, err := NewManager(NewConfig(
		WithMaxTokens(100),
		WithReserveTokens(20),
		WithCounter(&fixedCounter{tokens: 5}),
	), WithSummarizer(summarizer))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	low := sizedItem(PriorityLow, 60, 0)
	items := []*Item{sizedItem(PriorityCritical, 30, 0), low}

	if _, err := mgr.Assemble(stdctx.Background(), "", items); err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if low.TokenCount != 60 || low.Summary {
		t.Errorf("input item mutated by assembly: %+v", low)
	}
}
