package engine

import (
	stdctx "context"
	"fmt"
	"sort"
	"strings"

	"github.com/easyops/memflow-go/pkg/context"
	"github.com/easyops/memflow-go/pkg/core/errors"
	"github.com/easyops/memflow-go/pkg/core/message"
	"github.com/easyops/memflow-go/pkg/memory"
	"github.com/easyops/memflow-go/pkg/otel"
	"github.com/easyops/memflow-go/pkg/profile"
	"github.com/easyops/memflow-go/pkg/session"
	"github.com/easyops/memflow-go/pkg/tools"
)

// AssembleOption 单次装配的可选参数
type AssembleOption func(*assembleConfig)

type assembleConfig struct {
	systemPrompt string
	toolCalls    []tools.ToolCall
	extraItems   []*context.Item
	memoryLimit  int
	skipMemory   bool
	classify     bool
}

// WithSystemPrompt 注入系统指令，作为关键条目参与装配
func WithSystemPrompt(prompt string) AssembleOption {
	return func(c *assembleConfig) {
		c.systemPrompt = prompt
	}
}

// WithToolCalls 在装配前执行工具并合并结果
//
// 哪些工具适用由调用方（通常是外部分类能力）决定，
// 引擎只负责校验和执行。
func WithToolCalls(calls ...tools.ToolCall) AssembleOption {
	return func(c *assembleConfig) {
		c.toolCalls = append(c.toolCalls, calls...)
	}
}

// WithToolClassification 让分类器决定执行哪些工具
//
// 需要引擎配置了分类能力，否则本选项无效。分类失败只降级为
// 不执行工具，不会使装配失败。
func WithToolClassification() AssembleOption {
	return func(c *assembleConfig) {
		c.classify = true
	}
}

// WithExtraItems 附加调用方自备的上下文条目
func WithExtraItems(items ...*context.Item) AssembleOption {
	return func(c *assembleConfig) {
		c.extraItems = append(c.extraItems, items...)
	}
}

// WithMemoryLimit 限制本次检索的长期记忆条数
func WithMemoryLimit(limit int) AssembleOption {
	return func(c *assembleConfig) {
		c.memoryLimit = limit
	}
}

// WithoutMemorySearch 跳过长期记忆检索
func WithoutMemorySearch() AssembleOption {
	return func(c *assembleConfig) {
		c.skipMemory = true
	}
}

// AssembleContext 为一次查询装配预算内的上下文
//
// 整个装配在会话锁内执行，包括可能触发的阻塞式摘要调用，
// 同一会话的并发查询依次排队。查询轮次在装配成功后写入
// 会话历史。
func (e *Engine) AssembleContext(ctx stdctx.Context, userID, sessionID, query string, opts ...AssembleOption) (*context.Assembly, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", errors.ErrInvalidInput)
	}

	cfg := &assembleConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, span := e.tracer.Start(ctx, "engine.assemble_context")
	defer span.End()
	span.SetAttributes(otel.SessionID(sessionID), otel.UserID(userID))

	var assembly *context.Assembly
	err := e.sessions.WithSession(ctx, userID, sessionID, func(s *session.Session) error {
		items, err := e.collect(ctx, s, userID, query, cfg)
		if err != nil {
			return err
		}

		assembly, err = e.contexts.Assemble(ctx, query, items)
		if err != nil {
			return err
		}

		s.History = append(s.History, e.queryTurn(query))
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return assembly, nil
}

// collect 汇集装配候选条目
//
// 画像和系统指令为关键条目，最近轮次、查询与工具结果为高
// 优先级，检索到的长期记忆带相关性分数进入中优先级。
func (e *Engine) collect(ctx stdctx.Context, s *session.Session, userID, query string, cfg *assembleConfig) ([]*context.Item, error) {
	var items []*context.Item

	if cfg.systemPrompt != "" {
		items = append(items, context.NewCriticalItem(cfg.systemPrompt, "system"))
	}

	if preamble := e.profilePreamble(ctx, userID); preamble != "" {
		items = append(items, context.NewCriticalItem(preamble, "profile"))
	}

	for _, turn := range s.RecentTurns(e.maxHistoryTurns) {
		item := context.NewItem(
			fmt.Sprintf("%s: %s", turn.Role, turn.Content),
			context.WithPriority(context.PriorityHigh),
			context.WithSource("session"),
			context.WithCreatedAt(turn.Timestamp),
		)
		items = append(items, item)
	}

	items = append(items, context.NewHighItem(query, "query"))

	if !cfg.skipMemory {
		memories, err := e.searchMemories(ctx, userID, query, cfg.memoryLimit)
		if err != nil {
			return nil, err
		}
		items = append(items, memories...)
	}

	calls := cfg.toolCalls
	if cfg.classify && e.classifier != nil && e.registry.Count() > 0 {
		classified, err := e.classifier.Classify(ctx, query, e.registry.ToDefinitions())
		if err != nil {
			e.logger.Warn("tool classification failed", "error", err.Error())
		} else {
			calls = append(calls, classified...)
		}
	}

	if len(calls) > 0 {
		results := e.invoker.InvokeAll(ctx, calls)
		for _, result := range results {
			if !result.Success {
				e.logger.Warn("tool call failed during assembly",
					"tool", result.Name, "error", result.Error)
				continue
			}
			items = append(items, result.ToContextItem())
		}
	}

	items = append(items, cfg.extraItems...)
	return items, nil
}

// profilePreamble 将画像渲染为一段前置说明
//
// 画像缺失不是错误，返回空串即可。
func (e *Engine) profilePreamble(ctx stdctx.Context, userID string) string {
	p, err := e.profiles.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			e.logger.Warn("profile lookup failed", "user_id", userID, "error", err.Error())
		}
		return ""
	}
	return renderProfile(p)
}

// searchMemories 检索长期记忆并转换为上下文条目
func (e *Engine) searchMemories(ctx stdctx.Context, userID, query string, limit int) ([]*context.Item, error) {
	records, err := e.store.Search(ctx, FactNamespace, query, userID, limit)
	if err != nil {
		return nil, err
	}

	items := make([]*context.Item, 0, len(records))
	for _, rec := range records {
		items = append(items, context.NewMemoryItem(rec.Value, rec.Score))
	}
	return items, nil
}

// queryTurn 构造查询对应的用户轮次
func (e *Engine) queryTurn(query string) message.Message {
	msg := message.NewUserMessage(query)
	msg.TokenCount = e.counter.Count(query)
	return msg
}

// renderProfile 把画像字段渲染为稳定有序的文本
func renderProfile(p *profile.Profile) string {
	if len(p.CoreAttributes) == 0 && len(p.LearnedPreferences) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("User profile:")
	appendSorted(&b, p.CoreAttributes)
	appendSorted(&b, p.LearnedPreferences)
	return b.String()
}

func appendSorted(b *strings.Builder, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%s;", k, m[k])
	}
}

// SearchMemories 直接检索长期记忆，供应用层展示
func (e *Engine) SearchMemories(ctx stdctx.Context, userID, query string, limit int) ([]*memory.Record, error) {
	return e.store.Search(ctx, FactNamespace, query, userID, limit)
}
