package llm

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/easyops/memflow-go/pkg/core/errors"
)

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// MaxFailures 连续失败多少次后打开熔断
	MaxFailures uint32
	// OpenTimeout 熔断打开后多久进入半开状态
	OpenTimeout time.Duration
	// HalfOpenMaxRequests 半开状态允许的探测请求数
	HalfOpenMaxRequests uint32
}

// DefaultBreakerConfig 返回默认熔断配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:         5,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// CircuitBreaker 包装外部能力调用，连续失败时快速拒绝后续请求
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultBreakerConfig().MaxFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultBreakerConfig().OpenTimeout
	}
	if cfg.HalfOpenMaxRequests == 0 {
		cfg.HalfOpenMaxRequests = DefaultBreakerConfig().HalfOpenMaxRequests
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute 在熔断器保护下执行调用
func (b *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", errors.ErrCircuitOpen, b.cb.Name())
		}
		return nil, err
	}
	return result, nil
}

// State 返回当前熔断器状态名
func (b *CircuitBreaker) State() string {
	return b.cb.State().String()
}
