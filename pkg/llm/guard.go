package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/easyops/memflow-go/pkg/core/errors"
	"github.com/easyops/memflow-go/pkg/otel"
)

// GuardConfig 能力守卫配置
type GuardConfig struct {
	// RatePerSecond 每秒允许的请求数，0 表示不限速
	RatePerSecond float64
	// Burst 突发请求上限
	Burst int
	// Breaker 熔断配置
	Breaker BreakerConfig
}

// DefaultGuardConfig 返回默认守卫配置
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RatePerSecond: 10,
		Burst:         20,
		Breaker:       DefaultBreakerConfig(),
	}
}

// GuardedCapability 为任意能力叠加限速、熔断和指标上报。
//
// 调用顺序为先限速再熔断，保证熔断计数反映真实的下游失败
// 而不是本地限速拒绝。
type GuardedCapability struct {
	inner   Capability
	limiter *rate.Limiter
	breaker *CircuitBreaker
	logger  otel.Logger
	metrics otel.Metrics
}

var _ Capability = (*GuardedCapability)(nil)

// GuardOption 守卫可选配置
type GuardOption func(*GuardedCapability)

// WithGuardLogger 设置日志器
func WithGuardLogger(logger otel.Logger) GuardOption {
	return func(g *GuardedCapability) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardMetrics 设置指标上报
func WithGuardMetrics(metrics otel.Metrics) GuardOption {
	return func(g *GuardedCapability) {
		if metrics != nil {
			g.metrics = metrics
		}
	}
}

// NewGuardedCapability 包装能力提供者
func NewGuardedCapability(inner Capability, cfg GuardConfig, opts ...GuardOption) *GuardedCapability {
	g := &GuardedCapability{
		inner:   inner,
		breaker: NewCircuitBreaker("llm", cfg.Breaker),
		logger:  otel.NewNoopLogger(),
		metrics: otel.NewNoopMetrics(),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Summarize 实现 Summarizer
func (g *GuardedCapability) Summarize(ctx context.Context, text string, targetTokens int) (string, error) {
	result, err := g.call(ctx, "summarize", func() (any, error) {
		return g.inner.Summarize(ctx, text, targetTokens)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Embed 实现 Embedder
func (g *GuardedCapability) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := g.call(ctx, "embed", func() (any, error) {
		return g.inner.Embed(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.([][]float32), nil
}

// Complete 实现 Completer
func (g *GuardedCapability) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := g.call(ctx, "complete", func() (any, error) {
		return g.inner.Complete(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (g *GuardedCapability) call(ctx context.Context, kind string, fn func() (any, error)) (any, error) {
	kindAttr := otel.NewAttr("kind", kind)
	g.metrics.Counter(otel.MetricCapabilityRequests).Add(ctx, 1, kindAttr)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.metrics.Counter(otel.MetricCapabilityErrors).Add(ctx, 1, kindAttr)
			return nil, fmt.Errorf("%w: %v", errors.ErrRateLimited, err)
		}
	}

	start := time.Now()
	result, err := g.breaker.Execute(fn)
	duration := time.Since(start)
	g.metrics.Histogram(otel.MetricCapabilityRequestDuration).Record(ctx, float64(duration.Milliseconds()), kindAttr)

	if err != nil {
		if errors.Is(err, errors.ErrCircuitOpen) {
			g.metrics.Counter(otel.MetricCapabilityCircuitOpen).Add(ctx, 1, kindAttr)
		}
		g.metrics.Counter(otel.MetricCapabilityErrors).Add(ctx, 1, kindAttr)
		g.logger.Warn("capability call failed",
			"kind", kind,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
		return nil, err
	}
	return result, nil
}
