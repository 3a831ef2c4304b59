// Package engine 对外暴露上下文与记忆管理引擎
//
// Engine 把令牌计数、分层记忆、会话、画像、工具和上下文装配
// 组装成一个门面。调用方拿到的始终是预算内的有序上下文，
// 其余细节都收敛在引擎内部。
package engine

import (
	stdctx "context"
	"fmt"
	"time"

	"github.com/easyops/memflow-go/pkg/context"
	"github.com/easyops/memflow-go/pkg/core/config"
	"github.com/easyops/memflow-go/pkg/core/errors"
	"github.com/easyops/memflow-go/pkg/core/message"
	"github.com/easyops/memflow-go/pkg/llm"
	"github.com/easyops/memflow-go/pkg/memory"
	"github.com/easyops/memflow-go/pkg/otel"
	"github.com/easyops/memflow-go/pkg/profile"
	"github.com/easyops/memflow-go/pkg/session"
	"github.com/easyops/memflow-go/pkg/token"
	"github.com/easyops/memflow-go/pkg/tools"
)

// FactNamespace 长期事实记忆的命名空间
const FactNamespace = "facts"

// DefaultMaxHistoryTurns 装配时纳入的最近轮次数量
const DefaultMaxHistoryTurns = 10

// Engine 上下文与记忆管理引擎
type Engine struct {
	cfg      *config.Config
	counter  token.Counter
	store    *memory.Store
	sessions *session.Manager
	profiles *profile.Manager
	contexts *context.Manager
	registry *tools.Registry
	invoker  *tools.Invoker

	capability      llm.Capability
	classifier      tools.Classifier
	maxHistoryTurns int
	externalTimeout time.Duration

	logger   otel.Logger
	metrics  otel.Metrics
	tracer   otel.Tracer
	provider *otel.Provider
}

// Option 引擎可选配置
type Option func(*Engine)

// WithStore 替换默认的记忆存储
func WithStore(store *memory.Store) Option {
	return func(e *Engine) {
		if store != nil {
			e.store = store
		}
	}
}

// WithCounter 替换令牌计数器
func WithCounter(counter token.Counter) Option {
	return func(e *Engine) {
		if counter != nil {
			e.counter = counter
		}
	}
}

// WithCapability 接入外部模型能力（摘要、嵌入）
func WithCapability(capability llm.Capability) Option {
	return func(e *Engine) {
		e.capability = capability
	}
}

// WithClassifier 接入工具分类能力
//
// 设置后可以在装配时让分类器决定执行哪些工具，
// 而不必由调用方显式传入工具调用。
func WithClassifier(classifier tools.Classifier) Option {
	return func(e *Engine) {
		e.classifier = classifier
	}
}

// WithRegistry 替换工具注册表
func WithRegistry(registry *tools.Registry) Option {
	return func(e *Engine) {
		if registry != nil {
			e.registry = registry
		}
	}
}

// WithMaxHistoryTurns 设置装配时纳入的最近轮次数量
func WithMaxHistoryTurns(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxHistoryTurns = n
		}
	}
}

// WithLogger 设置日志器
func WithLogger(logger otel.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics 设置指标上报
func WithMetrics(metrics otel.Metrics) Option {
	return func(e *Engine) {
		if metrics != nil {
			e.metrics = metrics
		}
	}
}

// WithTracer 设置追踪器
func WithTracer(tracer otel.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// New 创建引擎
//
// cfg 为 nil 时从环境变量加载并套用默认值。未通过选项注入的
// 组件按配置自行构建。
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		loaded, err := config.Load("")
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	e := &Engine{
		cfg:             cfg,
		registry:        tools.NewRegistry(),
		maxHistoryTurns: DefaultMaxHistoryTurns,
		externalTimeout: cfg.Engine.ExternalTimeout,
		logger:          otel.NewNoopLogger(),
		metrics:         otel.NewNoopMetrics(),
		tracer:          otel.NewNoopTracer(),
	}
	if cfg.Session.MaxHistoryTurns > 0 {
		e.maxHistoryTurns = cfg.Session.MaxHistoryTurns
	}

	if cfg.Observability.Enabled {
		provider, err := otel.NewProvider(observabilityConfig(cfg.Observability))
		if err != nil {
			return nil, err
		}
		e.provider = provider
		e.logger = provider.Logger()
		e.metrics = provider.Metrics()
		e.tracer = provider.Tracer()
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.classifier == nil && e.capability != nil {
		e.classifier = llm.NewToolClassifier(e.capability)
	}

	if e.counter == nil {
		counter, err := token.NewTiktokenCounter(cfg.Engine.Model)
		if err != nil {
			e.counter = token.NewHeuristicCounter(cfg.Engine.Model)
		} else {
			e.counter = counter
		}
	}

	if e.store == nil {
		storeOpts := []memory.StoreOption{
			memory.WithLogger(e.logger),
			memory.WithMetrics(e.metrics),
		}
		if cfg.Memory.ShortTermTTL > 0 {
			storeOpts = append(storeOpts, memory.WithShortTermTTL(cfg.Memory.ShortTermTTL))
		}
		if cfg.Memory.WorkingTTL > 0 {
			storeOpts = append(storeOpts, memory.WithWorkingTTL(cfg.Memory.WorkingTTL))
		}
		if cfg.Memory.SearchLimit > 0 {
			storeOpts = append(storeOpts, memory.WithSearchLimit(cfg.Memory.SearchLimit))
		}
		e.store = memory.NewStore(storeOpts...)
	}

	sessions, err := session.NewManager(e.store,
		session.WithTimeout(cfg.Session.Timeout),
		session.WithSweepInterval(cfg.Session.SweepInterval),
		session.WithLogger(e.logger),
		session.WithMetrics(e.metrics),
	)
	if err != nil {
		return nil, err
	}
	e.sessions = sessions

	profiles, err := profile.NewManager(e.store,
		profile.WithLogger(e.logger),
		profile.WithMetrics(e.metrics),
	)
	if err != nil {
		return nil, err
	}
	e.profiles = profiles

	ctxConfig := context.DefaultConfig()
	ctxConfig.Counter = e.counter
	if cfg.Engine.MaxTokens > 0 {
		ctxConfig.MaxTokens = cfg.Engine.MaxTokens
	}
	if cfg.Engine.ReserveTokens > 0 {
		ctxConfig.ReserveTokens = cfg.Engine.ReserveTokens
	}
	if cfg.Engine.OptimizeThreshold > 0 {
		ctxConfig.OptimizeThreshold = cfg.Engine.OptimizeThreshold
	}
	if cfg.Engine.SummaryRatio > 0 {
		ctxConfig.SummaryRatio = cfg.Engine.SummaryRatio
	}
	ctxConfig.RelevanceEviction = cfg.Engine.RelevanceEviction

	ctxOpts := []context.ManagerOption{
		context.WithLogger(e.logger),
		context.WithMetrics(e.metrics),
		context.WithTracer(e.tracer),
	}
	if e.capability != nil {
		ctxOpts = append(ctxOpts, context.WithSummarizer(e.capability))
	}
	contexts, err := context.NewManager(ctxConfig, ctxOpts...)
	if err != nil {
		return nil, err
	}
	e.contexts = contexts

	invokerOpts := []tools.InvokerOption{
		tools.WithInvokerLogger(e.logger),
		tools.WithInvokerMetrics(e.metrics),
		tools.WithInvokerTracer(e.tracer),
	}
	if e.externalTimeout > 0 {
		invokerOpts = append(invokerOpts, tools.WithInvokerTimeout(e.externalTimeout))
	}
	e.invoker = tools.NewInvoker(e.registry, invokerOpts...)

	return e, nil
}

// RegisterTool 注册一个工具
func (e *Engine) RegisterTool(tool tools.Tool) error {
	return e.registry.Register(tool)
}

// RecordTurn 追加一条对话轮次
func (e *Engine) RecordTurn(ctx stdctx.Context, userID, sessionID string, role message.Role, content string) error {
	msg := message.NewMessage(role, content)
	msg.TokenCount = e.counter.Count(content)
	return e.sessions.RecordTurn(ctx, userID, sessionID, msg)
}

// Remember 写入一条长期事实
//
// 同步写入，返回后立即可检索。tier 为空时默认长期层。
func (e *Engine) Remember(ctx stdctx.Context, userID, fact string, tier memory.Tier, opts ...memory.PutOption) error {
	if fact == "" {
		return fmt.Errorf("%w: fact is empty", errors.ErrInvalidInput)
	}
	if tier == "" {
		tier = memory.TierLongTerm
	}
	key := message.NewID()

	if e.capability != nil && tier == memory.TierLongTerm {
		if vectors, err := e.embed(ctx, fact); err == nil && len(vectors) == 1 {
			opts = append(opts, memory.WithEmbedding(vectors[0]))
		}
	}
	return e.store.Put(ctx, tier, FactNamespace, key, fact, userID, opts...)
}

// ForgetUser 删除用户的全部数据
//
// 先剔除活跃会话，再清除存储中的记录和画像；顺序相反会让
// 在索引中存活的会话把已删除的历史重新持久化。
func (e *Engine) ForgetUser(ctx stdctx.Context, userID string) error {
	e.sessions.PurgeUser(userID)
	return e.profiles.Delete(ctx, userID)
}

// ExportUser 导出用户的画像和全部记录
func (e *Engine) ExportUser(ctx stdctx.Context, userID string) (*profile.ExportBundle, error) {
	return e.profiles.ExportAll(ctx, userID)
}

// AnonymizeUser 匿名化用户数据
func (e *Engine) AnonymizeUser(ctx stdctx.Context, userID string) error {
	e.sessions.PurgeUser(userID)
	return e.profiles.Anonymize(ctx, userID)
}

// UpdateProfile 更新用户画像
func (e *Engine) UpdateProfile(ctx stdctx.Context, userID string, core, preferences map[string]string) (*profile.Profile, error) {
	return e.profiles.Update(ctx, userID, core, preferences)
}

// ListActiveSessions 列出某用户的活跃会话
func (e *Engine) ListActiveSessions(userID string) []*session.Session {
	return e.sessions.ListActiveSessions(userID)
}

// Close 释放引擎持有的资源
func (e *Engine) Close() error {
	if err := e.sessions.Close(); err != nil {
		return err
	}
	if err := e.store.Close(); err != nil {
		return err
	}
	if e.provider != nil {
		ctx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Second)
		defer cancel()
		return e.provider.Shutdown(ctx)
	}
	return nil
}

// observabilityConfig 把引擎配置映射为可观测性配置
func observabilityConfig(cfg config.ObservabilityConfig) otel.Config {
	oc := otel.DefaultConfig()
	oc.Enabled = true
	if cfg.ServiceName != "" {
		oc.ServiceName = cfg.ServiceName
	}
	if cfg.TracerEndpoint != "" {
		oc.Tracing.Enabled = true
		oc.Tracing.Endpoint = cfg.TracerEndpoint
	}
	if cfg.MetricsEndpoint != "" {
		oc.Metrics.Enabled = true
		oc.Metrics.Endpoint = cfg.MetricsEndpoint
	}
	if cfg.SampleRate > 0 {
		oc.Tracing.SampleRate = cfg.SampleRate
	}
	return oc
}

// embed 带超时地调用嵌入能力
func (e *Engine) embed(ctx stdctx.Context, text string) ([][]float32, error) {
	if e.externalTimeout > 0 {
		var cancel stdctx.CancelFunc
		ctx, cancel = stdctx.WithTimeout(ctx, e.externalTimeout)
		defer cancel()
	}
	return e.capability.Embed(ctx, []string{text})
}
