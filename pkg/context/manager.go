// Package context 在 Token 预算内装配模型上下文
//
// 装配流程：预检单条超限 -> 预算检查 -> 摘要压缩低价值条目 ->
// 按优先级驱逐 -> 仍超限则报溢出。关键条目永不被驱逐。
package context

import (
	stdctx "context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/easyops/memflow-go/pkg/core/errors"
	"github.com/easyops/memflow-go/pkg/memory"
	"github.com/easyops/memflow-go/pkg/otel"
	"github.com/easyops/memflow-go/pkg/token"
)

// Summarizer 将文本压缩到目标 Token 数以内。
type Summarizer interface {
	// Summarize 生成不超过 targetTokens 的摘要
	Summarize(ctx stdctx.Context, text string, targetTokens int) (string, error)
}

// Assembly 是一次装配的结果。
type Assembly struct {
	// Items 按优先级降序、同优先级按插入顺序排列。
	Items []*Item

	// TotalTokens 是所有条目的 Token 总量。
	TotalTokens int

	// Summarized 表示本次装配执行过摘要压缩。
	Summarized bool

	// Evicted 是被驱逐的条目数。
	Evicted int
}

// Manager 上下文装配管理器
type Manager struct {
	config     *Config
	summarizer Summarizer
	scorer     memory.RelevanceScorer

	logger  otel.Logger
	metrics otel.Metrics
	tracer  otel.Tracer
	now     func() time.Time
}

// ManagerOption 配置 Manager。
type ManagerOption func(*Manager)

// WithSummarizer 设置摘要器。
func WithSummarizer(s Summarizer) ManagerOption {
	return func(m *Manager) {
		m.summarizer = s
	}
}

// WithScorer 设置相关性评分器（用于相关性加权驱逐）。
func WithScorer(scorer memory.RelevanceScorer) ManagerOption {
	return func(m *Manager) {
		m.scorer = scorer
	}
}

// WithLogger 设置日志器。
func WithLogger(logger otel.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics 设置指标收集器。
func WithMetrics(metrics otel.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithTracer 设置追踪器。
func WithTracer(tracer otel.Tracer) ManagerOption {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

// WithClock 设置时钟（用于测试）。
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager 创建装配管理器。
func NewManager(config *Config, opts ...ManagerOption) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		config:  config,
		logger:  otel.NewNoopLogger(),
		metrics: otel.NewNoopMetrics(),
		tracer:  otel.NewNoopTracer(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Assemble 在预算内装配上下文
//
// 装配不修改传入的条目。超出预算时依次尝试摘要压缩和驱逐，
// 仅剩关键条目仍超限时返回 ErrContextOverflow。
func (m *Manager) Assemble(ctx stdctx.Context, query string, items []*Item) (*Assembly, error) {
	ctx, span := m.tracer.Start(ctx, "context.assemble")
	defer span.End()

	start := m.now()
	counter := m.config.GetCounter()
	available := m.config.AvailableTokens()

	// 拷贝并编号，装配过程不触碰调用方的条目
	working := make([]*Item, 0, len(items))
	for i, item := range items {
		clone := item.Clone()
		clone.seq = i
		if clone.TokenCount == 0 && clone.Content != "" {
			clone.TokenCount = counter.Count(clone.Content)
		}
		working = append(working, clone)
	}

	// 单条超限直接失败，摘要和驱逐都救不了它
	for _, item := range working {
		if item.TokenCount > available {
			m.metrics.Counter(otel.MetricContextOverflows).Add(ctx, 1, otel.NewAttr("reason", "item_too_large"))
			return nil, errors.WrapError(errors.ErrItemTooLarge, item.Source)
		}
	}

	result := &Assembly{}
	total := totalTokens(working)

	// 占用低于阈值时不做任何优化
	if float64(total) <= float64(available)*m.config.OptimizeThreshold {
		m.finish(ctx, span, result, working, total, start)
		return result, nil
	}

	// 第一步：摘要压缩低于 Medium 的非摘要条目
	if m.summarizer != nil {
		compressed, summarized, err := m.summarize(ctx, working, counter)
		if err != nil {
			m.logger.WithContext(ctx).Warn("summarization failed, falling back to eviction", "error", err)
		} else if summarized {
			working = compressed
			result.Summarized = true
			total = totalTokens(working)
			m.metrics.Counter(otel.MetricContextSummarizations).Add(ctx, 1)
		}
	}

	// 第二步：按优先级驱逐，直到回到预算内
	if total > available {
		working, result.Evicted = m.evict(ctx, query, working, total, available)
		total = totalTokens(working)
		if result.Evicted > 0 {
			m.metrics.Counter(otel.MetricContextEvictions).Add(ctx, int64(result.Evicted))
		}
	}

	if total > available {
		m.metrics.Counter(otel.MetricContextOverflows).Add(ctx, 1, otel.NewAttr("reason", "budget"))
		span.SetStatus(otel.StatusError, "context overflow")
		return nil, errors.ErrContextOverflow
	}

	m.finish(ctx, span, result, working, total, start)
	return result, nil
}

// finish 排序并填充结果。
func (m *Manager) finish(ctx stdctx.Context, span otel.Span, result *Assembly, working []*Item, total int, start time.Time) {
	sort.SliceStable(working, func(i, j int) bool {
		if working[i].Priority != working[j].Priority {
			return working[i].Priority > working[j].Priority
		}
		return working[i].seq < working[j].seq
	})

	result.Items = working
	result.TotalTokens = total

	m.metrics.Counter(otel.MetricContextAssemblies).Add(ctx, 1)
	m.metrics.Histogram(otel.MetricContextTokensTotal).Record(ctx, float64(total))
	m.metrics.Histogram(otel.MetricContextAssemblyDuration).Record(ctx, float64(m.now().Sub(start).Milliseconds()))
	span.SetAttributes(otel.ContextTokens(m.config.MaxTokens, m.config.ReserveTokens, total)...)
}

// summarize 将低于 Medium 的非摘要条目压缩为单个摘要条目
//
// 已有的摘要条目不参与再次压缩。压缩没有减少 Token 时放弃替换。
func (m *Manager) summarize(ctx stdctx.Context, items []*Item, counter token.Counter) ([]*Item, bool, error) {
	var victims []*Item
	var kept []*Item
	for _, item := range items {
		if item.Priority < PriorityMedium && !item.Summary {
			victims = append(victims, item)
		} else {
			kept = append(kept, item)
		}
	}

	if len(victims) == 0 {
		return items, false, nil
	}

	// 按插入顺序拼接被压缩内容
	sort.SliceStable(victims, func(i, j int) bool { return victims[i].seq < victims[j].seq })

	var sb strings.Builder
	victimTokens := 0
	for i, item := range victims {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(item.Content)
		victimTokens += item.TokenCount
	}

	target := int(math.Ceil(float64(victimTokens) * m.config.SummaryRatio))
	if target < 1 {
		target = 1
	}

	summary, err := m.summarizer.Summarize(ctx, sb.String(), target)
	if err != nil {
		return items, false, err
	}

	summaryTokens := counter.Count(summary)
	if summaryTokens >= victimTokens {
		// 压缩无收益，保留原始条目交给驱逐处理
		return items, false, nil
	}

	item := newSummaryItem(summary, summaryTokens, m.now())
	item.seq = victims[0].seq
	kept = append(kept, item)

	return kept, true, nil
}

// evict 按优先级驱逐条目直到回到预算内
//
// 驱逐顺序 Low、Medium、摘要、High：摘要条目比压缩前的低价值
// 内容更值得保留，但绝不挤占高优先级条目；关键条目永不驱逐。
// 启用相关性加权时，同优先级内先驱逐与查询最不相关的条目。
func (m *Manager) evict(ctx stdctx.Context, query string, items []*Item, total, available int) ([]*Item, int) {
	if m.config.RelevanceEviction && m.scorer != nil && query != "" {
		m.scoreRelevance(ctx, query, items)
	}

	candidates := make([]*Item, 0, len(items))
	for _, item := range items {
		if item.Priority != PriorityCritical {
			candidates = append(candidates, item)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ra, rb := evictRank(a), evictRank(b); ra != rb {
			return ra < rb
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if m.config.RelevanceEviction && a.Relevance != b.Relevance {
			return a.Relevance < b.Relevance
		}
		return a.seq < b.seq
	})

	evicted := make(map[*Item]bool)
	for _, victim := range candidates {
		if total <= available {
			break
		}
		evicted[victim] = true
		total -= victim.TokenCount
		m.logger.WithContext(ctx).Debug("evicted context item",
			"priority", victim.Priority.String(), "source", victim.Source, "tokens", victim.TokenCount)
	}

	if len(evicted) == 0 {
		return items, 0
	}

	survivors := make([]*Item, 0, len(items)-len(evicted))
	for _, item := range items {
		if !evicted[item] {
			survivors = append(survivors, item)
		}
	}

	return survivors, len(evicted)
}

// evictRank 返回条目的驱逐档位，越小越先驱逐
//
// 摘要条目排在 Medium 之后、High 之前，保证当前查询等高
// 优先级内容不会为一份低价值内容的压缩产物让位。
func evictRank(item *Item) int {
	if item.Summary {
		return 2
	}
	switch item.Priority {
	case PriorityLow, PrioritySummary:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 3
	}
}

// scoreRelevance 填充各条目与查询的相关性。
func (m *Manager) scoreRelevance(ctx stdctx.Context, query string, items []*Item) {
	scorer := memory.NewCachedScorer(m.scorer)
	for _, item := range items {
		if item.Relevance > 0 {
			continue
		}
		score, err := scorer.Score(ctx, query, item.Content)
		if err != nil {
			// 评分失败按中性处理
			item.Relevance = 0.5
			continue
		}
		item.Relevance = score
	}
}

func totalTokens(items []*Item) int {
	total := 0
	for _, item := range items {
		total += item.TokenCount
	}
	return total
}
