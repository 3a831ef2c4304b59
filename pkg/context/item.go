package context

import (
	"time"
)

// Priority 表示上下文条目的优先级。
//
// 数值越大优先级越高。摘要条目介于 Low 和 Medium 之间：
// 它承载被压缩的低价值内容，但比原始低优先级内容更值得保留。
type Priority int

const (
	// PriorityLow 低优先级（较早的闲聊、次要历史）。
	PriorityLow Priority = iota
	// PrioritySummary 摘要条目（压缩产物，不会被再次摘要）。
	PrioritySummary
	// PriorityMedium 中优先级（长期记忆检索结果）。
	PriorityMedium
	// PriorityHigh 高优先级（最近轮次、当前查询、工具结果）。
	PriorityHigh
	// PriorityCritical 关键优先级（系统指令、用户画像），永不驱逐。
	PriorityCritical
)

// String 返回优先级名称。
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PrioritySummary:
		return "summary"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// IsValid 返回优先级是否有效。
func (p Priority) IsValid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// Item 表示一条待装配的上下文。
type Item struct {
	// Content 是条目的文本内容。
	Content string

	// Priority 决定条目的保留顺序。
	Priority Priority

	// TokenCount 是内容的 Token 数量（0 表示装配时计算）。
	TokenCount int

	// Source 表示条目来源（如 "profile"、"history"、"tool"、"memory"）。
	Source string

	// Summary 标记条目是摘要压缩的产物。
	Summary bool

	// Relevance 是条目与当前查询的相关性（装配时填充）。
	Relevance float64

	// CreatedAt 是条目内容产生的时间。
	CreatedAt time.Time

	// seq 是插入序号，用于同优先级内的稳定排序。
	seq int
}

// ItemOption 配置 Item。
type ItemOption func(*Item)

// WithPriority 设置优先级。
func WithPriority(p Priority) ItemOption {
	return func(i *Item) {
		i.Priority = p
	}
}

// WithSource 设置来源。
func WithSource(source string) ItemOption {
	return func(i *Item) {
		i.Source = source
	}
}

// WithTokenCount 设置 Token 数量（跳过自动计算）。
func WithTokenCount(count int) ItemOption {
	return func(i *Item) {
		i.TokenCount = count
	}
}

// WithCreatedAt 设置条目时间。
func WithCreatedAt(ts time.Time) ItemOption {
	return func(i *Item) {
		i.CreatedAt = ts
	}
}

// NewItem 使用给定的内容和选项创建 Item。
func NewItem(content string, opts ...ItemOption) *Item {
	item := &Item{
		Content:   content,
		Priority:  PriorityMedium,
		CreatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(item)
	}

	return item
}

// NewCriticalItem 创建关键条目（系统指令、用户画像）。
func NewCriticalItem(content, source string) *Item {
	return NewItem(content, WithPriority(PriorityCritical), WithSource(source))
}

// NewHighItem 创建高优先级条目（最近轮次、工具结果）。
func NewHighItem(content, source string) *Item {
	return NewItem(content, WithPriority(PriorityHigh), WithSource(source))
}

// NewMemoryItem 创建来自长期记忆检索的条目。
func NewMemoryItem(content string, relevance float64) *Item {
	item := NewItem(content, WithPriority(PriorityMedium), WithSource("memory"))
	item.Relevance = relevance
	return item
}

// NewHistoryItem 创建低优先级历史条目。
func NewHistoryItem(content string, ts time.Time) *Item {
	return NewItem(content,
		WithPriority(PriorityLow),
		WithSource("history"),
		WithCreatedAt(ts),
	)
}

// newSummaryItem 创建摘要条目。
func newSummaryItem(content string, tokenCount int, ts time.Time) *Item {
	return &Item{
		Content:    content,
		Priority:   PrioritySummary,
		TokenCount: tokenCount,
		Source:     "summarizer",
		Summary:    true,
		CreatedAt:  ts,
	}
}

// Clone 创建条目的拷贝。
func (i *Item) Clone() *Item {
	clone := *i
	return &clone
}
