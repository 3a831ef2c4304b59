package engine

import (
	stdctx "context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/easyops/memflow-go/pkg/context"
	"github.com/easyops/memflow-go/pkg/core/config"
	"github.com/easyops/memflow-go/pkg/core/errors"
	"github.com/easyops/memflow-go/pkg/core/message"
	"github.com/easyops/memflow-go/pkg/memory"
	"github.com/easyops/memflow-go/pkg/tools"
)

// wordCounter 按空白分词计数，测试中可预测
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func (wordCounter) EstimateMessages(msgs []message.Message) int {
	total := 0
	for _, m := range msgs {
		total += len(strings.Fields(m.Content))
	}
	return total
}

func (wordCounter) Model() string { return "test" }

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			Model:             "test",
			MaxTokens:         200,
			ReserveTokens:     20,
			OptimizeThreshold: 0.85,
			SummaryRatio:      0.25,
		},
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithCounter(wordCounter{})}, opts...)
	e, err := New(testConfig(), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestAssembleContextIncludesQueryAndHistory(t *testing.T) {
	e := newTestEngine(t)
	ctx := stdctx.Background()

	e.RecordTurn(ctx, "alice", "s1", message.RoleUser, "I prefer short answers")  //nolint:errcheck
	e.RecordTurn(ctx, "alice", "s1", message.RoleAssistant, "noted")              //nolint:errcheck

	assembly, err := e.AssembleContext(ctx, "alice", "s1", "what did I just say")
	if err != nil {
		t.Fatalf("AssembleContext() error = %v", err)
	}

	var sawQuery, sawHistory bool
	for _, item := range assembly.Items {
		if item.Source == "query" && item.Content == "what did I just say" {
			sawQuery = true
		}
		if item.Source == "session" && strings.Contains(item.Content, "short answers") {
			sawHistory = true
		}
	}
	if !sawQuery {
		t.Error("query item missing from assembly")
	}
	if !sawHistory {
		t.Error("history items missing from assembly")
	}
	if assembly.TotalTokens <= 0 {
		t.Errorf("TotalTokens = %d", assembly.TotalTokens)
	}
}

func TestAssembleContextAppendsQueryTurn(t *testing.T) {
	e := newTestEngine(t)
	ctx := stdctx.Background()

	if _, err := e.AssembleContext(ctx, "alice", "s1", "hello there"); err != nil {
		t.Fatalf("AssembleContext() error = %v", err)
	}

	sessions := e.ListActiveSessions("alice")
	if len(sessions) != 1 {
		t.Fatalf("active sessions = %d, want 1", len(sessions))
	}
	history := sessions[0].History
	if len(history) != 1 || history[0].Content != "hello there" {
		t.Errorf("history = %+v", history)
	}
}

func TestProfilePreambleIsCritical(t *testing.T) {
	e := newTestEngine(t)
	ctx := stdctx.Background()

	e.UpdateProfile(ctx, "alice", map[string]string{"language": "zh-CN"}, nil) //nolint:errcheck

	assembly, err := e.AssembleContext(ctx, "alice", "s1", "hi")
	if err != nil {
		t.Fatalf("AssembleContext() error = %v", err)
	}

	found := false
	for _, item := range assembly.Items {
		if item.Source == "profile" {
			found = true
			if item.Priority != context.PriorityCritical {
				t.Errorf("profile item priority = %v, want critical", item.Priority)
			}
			if !strings.Contains(item.Content, "language=zh-CN") {
				t.Errorf("profile content = %q", item.Content)
			}
		}
	}
	if !found {
		t.Error("profile preamble missing")
	}
}

func TestRememberIsImmediatelySearchable(t *testing.T) {
	e := newTestEngine(t)
	ctx := stdctx.Background()

	if err := e.Remember(ctx, "alice", "favorite color is teal", memory.TierLongTerm); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}

	records, err := e.SearchMemories(ctx, "alice", "favorite color", 5)
	if err != nil {
		t.Fatalf("SearchMemories() error = %v", err)
	}
	if len(records) == 0 {
		t.Fatal("remembered fact not searchable")
	}
	if records[0].Value != "favorite color is teal" {
		t.Errorf("top record = %q", records[0].Value)
	}
}

func TestAssembleContextMergesMemories(t *testing.T) {
	e := newTestEngine(t)
	ctx := stdctx.Background()

	e.Remember(ctx, "alice", "alice works on compilers", memory.TierLongTerm) //nolint:errcheck

	assembly, err := e.AssembleContext(ctx, "alice", "s1", "what do I work on, compilers maybe")
	if err != nil {
		t.Fatalf("AssembleContext() error = %v", err)
	}

	found := false
	for _, item := range assembly.Items {
		if item.Source == "memory" && strings.Contains(item.Content, "compilers") {
			found = true
			if item.Priority != context.PriorityMedium {
				t.Errorf("memory item priority = %v, want medium", item.Priority)
			}
		}
	}
	if !found {
		t.Error("long-term memory missing from assembly")
	}
}

func TestAssembleContextRunsTools(t *testing.T) {
	e := newTestEngine(t)
	ctx := stdctx.Background()

	err := e.RegisterTool(tools.NewFuncTool(
		"clock", "returns the current time",
		tools.ParameterSchema{Type: "object"},
		func(ctx stdctx.Context, args map[string]interface{}) (string, error) {
			return "12:00", nil
		},
	))
	if err != nil {
		t.Fatalf("RegisterTool() error = %v", err)
	}

	assembly, err := e.AssembleContext(ctx, "alice", "s1", "what time is it",
		WithToolCalls(tools.ToolCall{Name: "clock", Args: map[string]interface{}{}}),
	)
	if err != nil {
		t.Fatalf("AssembleContext() error = %v", err)
	}

	found := false
	for _, item := range assembly.Items {
		if item.Source == "tool" && strings.Contains(item.Content, "12:00") {
			found = true
			if item.Priority != context.PriorityHigh {
				t.Errorf("tool item priority = %v, want high", item.Priority)
			}
		}
	}
	if !found {
		t.Error("tool result missing from assembly")
	}
}

func TestConcurrentAssembliesSameSessionDoNotLoseTurns(t *testing.T) {
	e := newTestEngine(t)
	ctx := stdctx.Background()

	const queries = 10
	var wg sync.WaitGroup
	for i := 0; i < queries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.AssembleContext(ctx, "alice", "s1", fmt.Sprintf("query number %d", i),
				WithoutMemorySearch())
			if err != nil {
				t.Errorf("AssembleContext() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	sessions := e.ListActiveSessions("alice")
	if len(sessions) != 1 {
		t.Fatalf("active sessions = %d, want 1", len(sessions))
	}
	if len(sessions[0].History) != queries {
		t.Errorf("history length = %d, want %d (lost updates)", len(sessions[0].History), queries)
	}
}

func TestForgetUserRemovesEverything(t *testing.T) {
	e := newTestEngine(t)
	ctx := stdctx.Background()

	e.UpdateProfile(ctx, "alice", map[string]string{"language": "en"}, nil) //nolint:errcheck
	e.Remember(ctx, "alice", "secret fact", memory.TierLongTerm)           //nolint:errcheck
	e.RecordTurn(ctx, "alice", "s1", message.RoleUser, "hello")            //nolint:errcheck

	if err := e.ForgetUser(ctx, "alice"); err != nil {
		t.Fatalf("ForgetUser() error = %v", err)
	}

	records, err := e.SearchMemories(ctx, "alice", "secret", 5)
	if err != nil {
		t.Fatalf("SearchMemories() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("memories survived forget: %+v", records)
	}

	bundle, err := e.ExportUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ExportUser() error = %v", err)
	}
	for tier, recs := range bundle.Records {
		if len(recs) != 0 {
			t.Errorf("tier %s still holds %d records", tier, len(recs))
		}
	}

	// Live sessions go too, and later activity must not bring the
	// deleted conversation back from the active index.
	if sessions := e.ListActiveSessions("alice"); len(sessions) != 0 {
		t.Fatalf("active sessions survived forget: %d", len(sessions))
	}
	if err := e.RecordTurn(ctx, "alice", "s1", message.RoleUser, "fresh start"); err != nil {
		t.Fatalf("RecordTurn() error = %v", err)
	}
	sessions := e.ListActiveSessions("alice")
	if len(sessions) != 1 {
		t.Fatalf("sessions after new turn = %d, want 1", len(sessions))
	}
	for _, turn := range sessions[0].History {
		if turn.Content == "hello" {
			t.Errorf("deleted turn resurfaced after forget")
		}
	}
}

func TestOversizedQueryFailsWithItemTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.MaxTokens = 30
	cfg.Engine.ReserveTokens = 10

	e, err := New(cfg, WithCounter(wordCounter{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	huge := strings.Repeat("word ", 50)
	_, err = e.AssembleContext(stdctx.Background(), "alice", "s1", huge, WithoutMemorySearch())
	if !errors.Is(err, errors.ErrItemTooLarge) {
		t.Fatalf("error = %v, want ErrItemTooLarge", err)
	}
}

// stubClassifier 总是选择固定工具的分类桩
type stubClassifier struct {
	calls []tools.ToolCall
}

func (s stubClassifier) Classify(ctx stdctx.Context, query string, defs []tools.ToolDefinition) ([]tools.ToolCall, error) {
	return s.calls, nil
}

func TestAssembleContextWithToolClassification(t *testing.T) {
	e := newTestEngine(t, WithClassifier(stubClassifier{
		calls: []tools.ToolCall{{Name: "clock", Args: map[string]interface{}{}}},
	}))
	ctx := stdctx.Background()

	e.RegisterTool(tools.NewFuncTool( //nolint:errcheck
		"clock", "returns the current time",
		tools.ParameterSchema{Type: "object"},
		func(ctx stdctx.Context, args map[string]interface{}) (string, error) {
			return "12:00", nil
		},
	))

	assembly, err := e.AssembleContext(ctx, "alice", "s1", "what time is it",
		WithToolClassification(), WithoutMemorySearch())
	if err != nil {
		t.Fatalf("AssembleContext() error = %v", err)
	}

	found := false
	for _, item := range assembly.Items {
		if item.Source == "tool" && strings.Contains(item.Content, "12:00") {
			found = true
		}
	}
	if !found {
		t.Error("classified tool result missing from assembly")
	}
}
