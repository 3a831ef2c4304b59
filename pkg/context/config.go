package context

import (
	"github.com/easyops/memflow-go/pkg/core/errors"
	"github.com/easyops/memflow-go/pkg/token"
)

// Config 保存上下文装配的配置。
type Config struct {
	// MaxTokens 是上下文的总 Token 预算。
	MaxTokens int

	// ReserveTokens 是为模型响应预留的 Token 数量。
	ReserveTokens int

	// OptimizeThreshold 是触发优化的占用比例（0.0-1.0）。
	// 总量超过 AvailableTokens * OptimizeThreshold 时开始压缩。
	OptimizeThreshold float64

	// SummaryRatio 是摘要压缩的目标比例（0.0-1.0）。
	// 被摘要内容压缩到原始 Token 数的这一比例。
	SummaryRatio float64

	// RelevanceEviction 启用相关性加权驱逐。
	// 同优先级内先驱逐与查询最不相关的条目。
	RelevanceEviction bool

	// Counter 是要使用的 Token 计数器。
	Counter token.Counter
}

// ConfigOption 配置 Config。
type ConfigOption func(*Config)

// WithMaxTokens 设置总 Token 预算。
func WithMaxTokens(tokens int) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = tokens
	}
}

// WithReserveTokens 设置响应预留量。
func WithReserveTokens(tokens int) ConfigOption {
	return func(c *Config) {
		c.ReserveTokens = tokens
	}
}

// WithOptimizeThreshold 设置优化触发比例。
func WithOptimizeThreshold(threshold float64) ConfigOption {
	return func(c *Config) {
		c.OptimizeThreshold = threshold
	}
}

// WithSummaryRatio 设置摘要压缩目标比例。
func WithSummaryRatio(ratio float64) ConfigOption {
	return func(c *Config) {
		c.SummaryRatio = ratio
	}
}

// WithRelevanceEviction 启用相关性加权驱逐。
func WithRelevanceEviction(enabled bool) ConfigOption {
	return func(c *Config) {
		c.RelevanceEviction = enabled
	}
}

// WithCounter 设置 Token 计数器。
func WithCounter(counter token.Counter) ConfigOption {
	return func(c *Config) {
		c.Counter = counter
	}
}

// DefaultConfig 返回具有合理默认值的 Config。
func DefaultConfig() *Config {
	return &Config{
		MaxTokens:         8000,
		ReserveTokens:     1200,
		OptimizeThreshold: 0.85,
		SummaryRatio:      0.25,
	}
}

// NewConfig 使用给定的选项创建 Config。
func NewConfig(opts ...ConfigOption) *Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AvailableTokens 返回预算减去预留后的可用量。
func (c *Config) AvailableTokens() int {
	return c.MaxTokens - c.ReserveTokens
}

// GetCounter 返回配置的计数器或保守的启发式计数器。
func (c *Config) GetCounter() token.Counter {
	if c.Counter != nil {
		return c.Counter
	}
	return token.NewHeuristicCounter("")
}

// Validate 验证配置。
func (c *Config) Validate() error {
	if c.MaxTokens <= 0 {
		return errors.WrapError(errors.ErrInvalidConfig, "max tokens must be positive")
	}
	if c.ReserveTokens < 0 || c.ReserveTokens >= c.MaxTokens {
		return errors.WrapError(errors.ErrInvalidConfig, "reserve tokens must be in [0, max tokens)")
	}
	if c.OptimizeThreshold <= 0 || c.OptimizeThreshold > 1 {
		return errors.WrapError(errors.ErrInvalidConfig, "optimize threshold must be in (0, 1]")
	}
	if c.SummaryRatio <= 0 || c.SummaryRatio >= 1 {
		return errors.WrapError(errors.ErrInvalidConfig, "summary ratio must be in (0, 1)")
	}
	return nil
}
