package llm

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/easyops/memflow-go/pkg/core/errors"
	"github.com/easyops/memflow-go/pkg/otel"
)

// fakeCapability 可编程的能力桩
type fakeCapability struct {
	calls   int
	failing bool
}

func (f *fakeCapability) Summarize(ctx context.Context, text string, targetTokens int) (string, error) {
	f.calls++
	if f.failing {
		return "", stderrors.New("upstream unavailable")
	}
	return "summary of " + text, nil
}

func (f *fakeCapability) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.failing {
		return nil, stderrors.New("upstream unavailable")
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (f *fakeCapability) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.failing {
		return "", stderrors.New("upstream unavailable")
	}
	return "ok", nil
}

func newTestGuard(inner Capability, breaker BreakerConfig) (*GuardedCapability, *otel.InMemoryMetrics) {
	metrics := otel.NewInMemoryMetrics()
	guard := NewGuardedCapability(inner, GuardConfig{
		RatePerSecond: 0, // 测试中不限速
		Breaker:       breaker,
	}, WithGuardMetrics(metrics))
	return guard, metrics
}

func TestGuardedCapabilityPassesThrough(t *testing.T) {
	inner := &fakeCapability{}
	guard, _ := newTestGuard(inner, DefaultBreakerConfig())

	summary, err := guard.Summarize(context.Background(), "hello", 10)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "summary of hello" {
		t.Errorf("Summarize() = %q", summary)
	}

	vectors, err := guard.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 {
		t.Errorf("Embed() returned %d vectors, want 2", len(vectors))
	}
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &fakeCapability{failing: true}
	guard, _ := newTestGuard(inner, BreakerConfig{
		MaxFailures:         3,
		OpenTimeout:         time.Hour,
		HalfOpenMaxRequests: 1,
	})

	for i := 0; i < 3; i++ {
		if _, err := guard.Complete(context.Background(), "p"); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	callsBefore := inner.calls

	_, err := guard.Complete(context.Background(), "p")
	if !errors.Is(err, errors.ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
	if inner.calls != callsBefore {
		t.Error("open breaker must not reach the inner capability")
	}
}

func TestCircuitBreakerRecoversAfterTimeout(t *testing.T) {
	inner := &fakeCapability{failing: true}
	guard, _ := newTestGuard(inner, BreakerConfig{
		MaxFailures:         2,
		OpenTimeout:         20 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	})

	for i := 0; i < 2; i++ {
		guard.Complete(context.Background(), "p") //nolint:errcheck
	}
	if _, err := guard.Complete(context.Background(), "p"); !errors.Is(err, errors.ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}

	inner.failing = false
	time.Sleep(30 * time.Millisecond)

	result, err := guard.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("half-open probe error = %v", err)
	}
	if result != "ok" {
		t.Errorf("Complete() = %q", result)
	}
}

func TestGuardRecordsMetrics(t *testing.T) {
	inner := &fakeCapability{}
	guard, metrics := newTestGuard(inner, DefaultBreakerConfig())

	guard.Complete(context.Background(), "p") //nolint:errcheck
	guard.Complete(context.Background(), "p") //nolint:errcheck

	if got := metrics.GetCounterValue(otel.MetricCapabilityRequests); got != 2 {
		t.Errorf("requests counter = %d, want 2", got)
	}
	if got := metrics.GetCounterValue(otel.MetricCapabilityErrors); got != 0 {
		t.Errorf("errors counter = %d, want 0", got)
	}
}

func TestGuardRateLimiterRejectsOnCanceledContext(t *testing.T) {
	inner := &fakeCapability{}
	guard := NewGuardedCapability(inner, GuardConfig{
		RatePerSecond: 0.001, // 令牌几乎不可得
		Burst:         1,
		Breaker:       DefaultBreakerConfig(),
	})

	// 耗尽突发额度
	if _, err := guard.Complete(context.Background(), "p"); err != nil {
		t.Fatalf("first call error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := guard.Complete(ctx, "p")
	if !errors.Is(err, errors.ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return errors.ErrInvalidInput
	})
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryRetriesRetryableError(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.ErrTimeout
		}
		return nil
	})
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestNewOpenAIRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAI()
	if !errors.Is(err, errors.ErrCapabilityUnavailable) {
		t.Fatalf("error = %v, want ErrCapabilityUnavailable", err)
	}
}
