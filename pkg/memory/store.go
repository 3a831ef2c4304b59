package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/easyops/memflow-go/pkg/core/errors"
	"github.com/easyops/memflow-go/pkg/otel"
)

// Store 三层记忆存储
//
// 短期层和工作层是尽力而为的缓存：后端故障时降级为未命中，
// 不阻断调用方。长期层是权威存储，故障必须上报。
type Store struct {
	backends map[Tier]TierBackend
	scorer   RelevanceScorer

	shortTermTTL time.Duration
	workingTTL   time.Duration
	searchLimit  int

	logger  otel.Logger
	metrics otel.Metrics
	now     func() time.Time
}

// StoreOption Store 配置选项
type StoreOption func(*Store)

// WithBackend 设置指定层的后端
func WithBackend(tier Tier, backend TierBackend) StoreOption {
	return func(s *Store) {
		s.backends[tier] = backend
	}
}

// WithScorer 设置相关性评分器
func WithScorer(scorer RelevanceScorer) StoreOption {
	return func(s *Store) {
		s.scorer = scorer
	}
}

// WithShortTermTTL 设置短期记忆默认 TTL
func WithShortTermTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.shortTermTTL = ttl
	}
}

// WithWorkingTTL 设置工作记忆默认 TTL
func WithWorkingTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.workingTTL = ttl
	}
}

// WithSearchLimit 设置默认搜索结果数
func WithSearchLimit(limit int) StoreOption {
	return func(s *Store) {
		s.searchLimit = limit
	}
}

// WithLogger 设置日志器
func WithLogger(logger otel.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(metrics otel.Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = metrics
	}
}

// WithClock 设置时钟（用于测试）
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore 创建记忆存储
//
// 默认三层均使用内存后端，评分器为本地词频评分。
// 默认后端在选项应用之后构建，与存储共享同一时钟。
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		backends:     make(map[Tier]TierBackend),
		scorer:       NewTFIDFScorer(),
		shortTermTTL: 2 * time.Hour,
		workingTTL:   24 * time.Hour,
		searchLimit:  5,
		logger:       otel.NewNoopLogger(),
		metrics:      otel.NewNoopMetrics(),
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	for _, tier := range []Tier{TierShortTerm, TierWorking, TierLongTerm} {
		if s.backends[tier] == nil {
			s.backends[tier] = NewMapBackend(WithMapClock(s.now))
		}
	}

	return s
}

// PutOption 写入选项
type PutOption func(*putConfig)

type putConfig struct {
	ttl         time.Duration
	explicitTTL bool
	embedding   []float32
	metadata    map[string]interface{}
}

// WithTTL 设置存活时间
//
// 短期层和工作层在未设置时使用各自的默认 TTL。
// 长期层默认永不过期，仅在显式设置时生效。
func WithTTL(ttl time.Duration) PutOption {
	return func(c *putConfig) {
		c.ttl = ttl
		c.explicitTTL = true
	}
}

// WithEmbedding 附加嵌入向量
func WithEmbedding(embedding []float32) PutOption {
	return func(c *putConfig) {
		c.embedding = embedding
	}
}

// WithMetadata 附加元数据
func WithMetadata(metadata map[string]interface{}) PutOption {
	return func(c *putConfig) {
		c.metadata = metadata
	}
}

// Put 写入记忆
//
// 同键覆写整条替换，但保留首次写入时的 OwnerUserID。
// 短期层和工作层的后端故障只记录警告，长期层的故障返回
// ErrStorageUnavailable。
func (s *Store) Put(ctx context.Context, tier Tier, namespace, key, value, ownerUserID string, opts ...PutOption) error {
	backend, err := s.backend(tier)
	if err != nil {
		return err
	}

	cfg := &putConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// 覆盖写不允许换主：归属以首次写入为准
	if existing, err := backend.Get(ctx, namespace, key); err == nil && existing.OwnerUserID != "" {
		ownerUserID = existing.OwnerUserID
	}

	now := s.now()
	rec := &Record{
		Key:         key,
		Namespace:   namespace,
		Value:       value,
		Tier:        tier,
		OwnerUserID: ownerUserID,
		Embedding:   cfg.embedding,
		Metadata:    cfg.metadata,
		CreatedAt:   now,
	}

	switch {
	case cfg.explicitTTL && cfg.ttl > 0:
		rec.ExpiresAt = now.Add(cfg.ttl)
	case tier == TierShortTerm:
		rec.ExpiresAt = now.Add(s.shortTermTTL)
	case tier == TierWorking:
		rec.ExpiresAt = now.Add(s.workingTTL)
	}

	if err := rec.Validate(); err != nil {
		return err
	}

	s.metrics.Counter(otel.MetricMemoryOperations).Add(ctx, 1,
		otel.NewAttr("op", "put"), otel.NewAttr("tier", string(tier)))

	if err := backend.Set(ctx, rec); err != nil {
		return s.degradeWrite(ctx, tier, namespace, key, err)
	}

	return nil
}

// Get 读取记忆
//
// 不存在或已过期返回 ErrNotFound。短期层和工作层的后端故障
// 降级为 ErrNotFound，长期层的故障返回 ErrStorageUnavailable。
func (s *Store) Get(ctx context.Context, tier Tier, namespace, key string) (*Record, error) {
	backend, err := s.backend(tier)
	if err != nil {
		return nil, err
	}

	s.metrics.Counter(otel.MetricMemoryOperations).Add(ctx, 1,
		otel.NewAttr("op", "get"), otel.NewAttr("tier", string(tier)))

	rec, err := backend.Get(ctx, namespace, key)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			s.metrics.Counter(otel.MetricMemoryMisses).Add(ctx, 1, otel.NewAttr("tier", string(tier)))
			return nil, errors.ErrNotFound
		}
		if tier == TierLongTerm {
			return nil, fmt.Errorf("long-term get %s/%s: %w: %v", namespace, key, errors.ErrStorageUnavailable, err)
		}
		// 缓存层降级为未命中
		s.metrics.Counter(otel.MetricMemoryDegraded).Add(ctx, 1, otel.NewAttr("tier", string(tier)))
		s.logger.WithContext(ctx).Warn("memory backend degraded, treating as miss",
			"tier", tier, "namespace", namespace, "key", key, "error", err)
		return nil, errors.ErrNotFound
	}

	// 后端时钟可能落后，存储时钟对过期有最终裁决权
	if rec.Expired(s.now()) {
		s.metrics.Counter(otel.MetricMemoryExpired).Add(ctx, 1, otel.NewAttr("tier", string(tier)))
		s.metrics.Counter(otel.MetricMemoryMisses).Add(ctx, 1, otel.NewAttr("tier", string(tier)))
		_ = backend.Delete(ctx, namespace, key)
		return nil, errors.ErrNotFound
	}

	s.metrics.Counter(otel.MetricMemoryHits).Add(ctx, 1, otel.NewAttr("tier", string(tier)))
	return rec, nil
}

// Forget 删除记忆（幂等）
//
// 删除不存在的键不报错。
func (s *Store) Forget(ctx context.Context, tier Tier, namespace, key string) error {
	backend, err := s.backend(tier)
	if err != nil {
		return err
	}

	s.metrics.Counter(otel.MetricMemoryOperations).Add(ctx, 1,
		otel.NewAttr("op", "forget"), otel.NewAttr("tier", string(tier)))

	if err := backend.Delete(ctx, namespace, key); err != nil {
		return s.degradeWrite(ctx, tier, namespace, key, err)
	}

	return nil
}

// Search 长期记忆相关性搜索
//
// 仅搜索长期层，按分数降序返回，同分按较新优先。
// limit <= 0 时使用默认搜索结果数。
func (s *Store) Search(ctx context.Context, namespace, query, ownerUserID string, limit int) ([]*Record, error) {
	backend, err := s.backend(TierLongTerm)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.searchLimit
	}

	s.metrics.Counter(otel.MetricMemoryOperations).Add(ctx, 1,
		otel.NewAttr("op", "search"), otel.NewAttr("tier", string(TierLongTerm)))

	candidates, err := backend.Scan(ctx, ScanFilter{
		Namespace:   namespace,
		OwnerUserID: ownerUserID,
	})
	if err != nil {
		return nil, fmt.Errorf("long-term scan: %w: %v", errors.ErrStorageUnavailable, err)
	}

	scorer := NewCachedScorer(s.scorer)
	scored := make([]*Record, 0, len(candidates))
	for _, rec := range candidates {
		score, err := scorer.Score(ctx, query, rec.Value)
		if err != nil {
			return nil, fmt.Errorf("score record %s/%s: %w", rec.Namespace, rec.Key, err)
		}
		clone := rec.Clone()
		clone.Score = score
		scored = append(scored, clone)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].CreatedAt.After(scored[j].CreatedAt)
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}

	return scored, nil
}

// DeleteOwner 删除用户在所有层的全部记忆
//
// 幂等：没有数据时也成功。任何一层删除失败返回
// ErrComplianceFailed，调用方应重试。
func (s *Store) DeleteOwner(ctx context.Context, ownerUserID string) error {
	if ownerUserID == "" {
		return fmt.Errorf("%w: empty owner user id", errors.ErrInvalidInput)
	}

	var failed []string
	for _, tier := range []Tier{TierShortTerm, TierWorking, TierLongTerm} {
		backend := s.backends[tier]
		if backend == nil {
			continue
		}

		records, err := backend.Scan(ctx, ScanFilter{OwnerUserID: ownerUserID})
		if err != nil {
			failed = append(failed, string(tier))
			continue
		}
		for _, rec := range records {
			if err := backend.Delete(ctx, rec.Namespace, rec.Key); err != nil {
				failed = append(failed, string(tier))
				break
			}
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: tiers %v", errors.ErrComplianceFailed, failed)
	}

	s.metrics.Counter(otel.MetricComplianceDeletes).Add(ctx, 1)
	return nil
}

// ExportOwner 导出用户在所有层的全部记忆
func (s *Store) ExportOwner(ctx context.Context, ownerUserID string) (map[Tier][]*Record, error) {
	if ownerUserID == "" {
		return nil, fmt.Errorf("%w: empty owner user id", errors.ErrInvalidInput)
	}

	export := make(map[Tier][]*Record)
	for _, tier := range []Tier{TierShortTerm, TierWorking, TierLongTerm} {
		backend := s.backends[tier]
		if backend == nil {
			continue
		}

		records, err := backend.Scan(ctx, ScanFilter{OwnerUserID: ownerUserID})
		if err != nil {
			return nil, fmt.Errorf("%w: export tier %s: %v", errors.ErrComplianceFailed, tier, err)
		}
		export[tier] = records
	}

	s.metrics.Counter(otel.MetricComplianceExports).Add(ctx, 1)
	return export, nil
}

// Scan 枚举指定层的记录
func (s *Store) Scan(ctx context.Context, tier Tier, filter ScanFilter) ([]*Record, error) {
	backend, err := s.backend(tier)
	if err != nil {
		return nil, err
	}
	return backend.Scan(ctx, filter)
}

// Close 关闭所有后端
func (s *Store) Close() error {
	var lastErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// backend 返回指定层的后端
func (s *Store) backend(tier Tier) (TierBackend, error) {
	if !tier.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	backend, ok := s.backends[tier]
	if !ok || backend == nil {
		return nil, fmt.Errorf("%w: no backend for tier %s", errors.ErrStorageUnavailable, tier)
	}
	return backend, nil
}

// degradeWrite 按层处理写故障
func (s *Store) degradeWrite(ctx context.Context, tier Tier, namespace, key string, err error) error {
	if tier == TierLongTerm {
		return fmt.Errorf("long-term write %s/%s: %w: %v", namespace, key, errors.ErrStorageUnavailable, err)
	}

	s.metrics.Counter(otel.MetricMemoryDegraded).Add(ctx, 1, otel.NewAttr("tier", string(tier)))
	s.logger.WithContext(ctx).Warn("memory backend degraded, write dropped",
		"tier", tier, "namespace", namespace, "key", key, "error", err)
	return nil
}
