package memory

import (
	"context"
	"sync"
	"time"

	"github.com/easyops/memflow-go/pkg/core/errors"
)

// MapBackend 进程内存储后端
//
// 默认后端，适用于测试和短期层级。所有记录在读写边界克隆，
// 保证调用方持有的记录不会被后续写入修改。
type MapBackend struct {
	records map[string]map[string]*Record // namespace -> key -> record
	mu      sync.RWMutex
	now     func() time.Time
}

// MapBackendOption 配置选项
type MapBackendOption func(*MapBackend)

// WithMapClock 设置时钟函数（测试用）
func WithMapClock(now func() time.Time) MapBackendOption {
	return func(b *MapBackend) {
		b.now = now
	}
}

// NewMapBackend 创建进程内后端
func NewMapBackend(opts ...MapBackendOption) *MapBackend {
	b := &MapBackend{
		records: make(map[string]map[string]*Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get 按键读取记录
func (b *MapBackend) Get(ctx context.Context, namespace, key string) (*Record, error) {
	b.mu.RLock()
	ns, ok := b.records[namespace]
	if !ok {
		b.mu.RUnlock()
		return nil, errors.ErrNotFound
	}
	rec, ok := ns[key]
	b.mu.RUnlock()

	if !ok {
		return nil, errors.ErrNotFound
	}

	// 惰性过期：读取到过期记录时尽力删除
	if rec.Expired(b.now()) {
		b.mu.Lock()
		if cur, ok := b.records[namespace][key]; ok && cur.Expired(b.now()) {
			delete(b.records[namespace], key)
		}
		b.mu.Unlock()
		return nil, errors.ErrNotFound
	}

	return rec.Clone(), nil
}

// Set 写入/覆盖记录
func (b *MapBackend) Set(ctx context.Context, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ns, ok := b.records[record.Namespace]
	if !ok {
		ns = make(map[string]*Record)
		b.records[record.Namespace] = ns
	}
	ns[record.Key] = record.Clone()
	return nil
}

// Delete 删除记录（幂等）
func (b *MapBackend) Delete(ctx context.Context, namespace, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ns, ok := b.records[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

// Scan 按过滤条件枚举记录
//
// 过期记录被跳过但不在此处删除，交由惰性过期处理。
func (b *MapBackend) Scan(ctx context.Context, filter ScanFilter) ([]*Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	now := b.now()
	var results []*Record

	appendMatches := func(ns map[string]*Record) {
		for _, rec := range ns {
			if rec.Expired(now) {
				continue
			}
			if filter.OwnerUserID != "" && rec.OwnerUserID != filter.OwnerUserID {
				continue
			}
			results = append(results, rec.Clone())
			if filter.Limit > 0 && len(results) >= filter.Limit {
				return
			}
		}
	}

	if filter.Namespace != "" {
		if ns, ok := b.records[filter.Namespace]; ok {
			appendMatches(ns)
		}
		return results, nil
	}

	for _, ns := range b.records {
		appendMatches(ns)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

// Close 关闭后端
func (b *MapBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = make(map[string]map[string]*Record)
	return nil
}

// Compile-time interface check
var _ TierBackend = (*MapBackend)(nil)
