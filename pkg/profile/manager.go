package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/easyops/memflow-go/pkg/core/errors"
	"github.com/easyops/memflow-go/pkg/memory"
	"github.com/easyops/memflow-go/pkg/otel"
)

// identifyingKeys 匿名化时从学习偏好中剔除的键
//
// 按子串匹配，覆盖常见的个人标识字段命名。
var identifyingKeys = []string{
	"name", "email", "phone", "address", "location",
	"birthday", "birthdate", "id_number", "passport",
}

// ExportBundle 数据可携带导出结果
type ExportBundle struct {
	Profile *Profile                       `json:"profile,omitempty"`
	Records map[memory.Tier][]*memory.Record `json:"records,omitempty"`
}

// Manager 用户画像管理器
//
// 画像持久化在长期层，故障不降级。四个合规操作都满足
// 幂等性，部分失败返回 ErrComplianceFailed 并可安全重试。
type Manager struct {
	store   *memory.Store
	logger  otel.Logger
	metrics otel.Metrics
	now     func() time.Time
	newID   func() string
}

// ManagerOption 管理器可选配置
type ManagerOption func(*Manager)

// WithLogger 设置日志器
func WithLogger(logger otel.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics 设置指标上报
func WithMetrics(metrics otel.Metrics) ManagerOption {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator 注入匿名 ID 生成器，测试用
func WithIDGenerator(newID func() string) ManagerOption {
	return func(m *Manager) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// NewManager 创建画像管理器
func NewManager(store *memory.Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: memory store is required", errors.ErrInvalidConfig)
	}
	m := &Manager{
		store:   store,
		logger:  otel.NewNoopLogger(),
		metrics: otel.NewNoopMetrics(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Get 读取用户画像
func (m *Manager) Get(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is empty", errors.ErrInvalidInput)
	}
	rec, err := m.store.Get(ctx, memory.TierLongTerm, Namespace, userID)
	if err != nil {
		return nil, err
	}
	p, err := unmarshalProfile(rec.Value)
	if err != nil {
		return nil, fmt.Errorf("unmarshal profile %s: %w", userID, err)
	}
	return p, nil
}

// Update 更新画像
//
// 核心属性按键覆盖，学习偏好按键合并；两者都不整体替换，
// 未提及的键保持原值。画像不存在时隐式创建。
func (m *Manager) Update(ctx context.Context, userID string, core, preferences map[string]string) (*Profile, error) {
	p, err := m.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		p = NewProfile(userID)
	}

	for k, v := range core {
		p.CoreAttributes[k] = v
	}
	for k, v := range preferences {
		p.LearnedPreferences[k] = v
	}
	p.LastModified = m.now()

	if err := m.persist(ctx, p, userID); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// ExportAll 导出画像及用户名下的全部记录
func (m *Manager) ExportAll(ctx context.Context, userID string) (*ExportBundle, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is empty", errors.ErrInvalidInput)
	}

	bundle := &ExportBundle{}
	p, err := m.Get(ctx, userID)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, fmt.Errorf("%w: export profile: %v", errors.ErrComplianceFailed, err)
	}
	bundle.Profile = p

	records, err := m.store.ExportOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	bundle.Records = records

	m.metrics.Counter(otel.MetricComplianceExports).Add(ctx, 1)
	return bundle, nil
}

// Delete 硬删除用户的画像、会话和全部记忆记录
//
// 跨全部层级穷尽删除。目标不存在时静默成功，可安全重试。
func (m *Manager) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is empty", errors.ErrInvalidInput)
	}

	if err := m.store.DeleteOwner(ctx, userID); err != nil {
		return err
	}

	m.metrics.Counter(otel.MetricComplianceDeletes).Add(ctx, 1)
	m.logger.Info("user data deleted", "user_id", userID)
	return nil
}

// Anonymize 匿名化用户画像
//
// 剔除学习偏好中的标识字段，丢弃全部核心属性，把剩余偏好
// 挂到一个与原用户无关的随机 ID 下，然后删除原用户的全部
// 数据。先写匿名副本再删原始数据，中途失败时重试不会丢失
// 偏好数据。
func (m *Manager) Anonymize(ctx context.Context, userID string) error {
	p, err := m.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			// 画像已不存在，只需确保其余数据删净
			return m.Delete(ctx, userID)
		}
		return fmt.Errorf("%w: load profile: %v", errors.ErrComplianceFailed, err)
	}

	anonID := m.newID()
	anon := NewProfile(anonID)
	for k, v := range p.LearnedPreferences {
		if isIdentifyingKey(k) {
			continue
		}
		anon.LearnedPreferences[k] = v
	}
	anon.LastModified = m.now()

	if err := m.persist(ctx, anon, anonID); err != nil {
		return fmt.Errorf("%w: write anonymized profile: %v", errors.ErrComplianceFailed, err)
	}
	if err := m.Delete(ctx, userID); err != nil {
		return err
	}

	m.metrics.Counter(otel.MetricComplianceAnonymized).Add(ctx, 1)
	return nil
}

// persist 持久化画像，owner 即画像键
func (m *Manager) persist(ctx context.Context, p *Profile, ownerID string) error {
	value, err := marshalProfile(p)
	if err != nil {
		return fmt.Errorf("marshal profile %s: %w", p.UserID, err)
	}
	return m.store.Put(ctx, memory.TierLongTerm, Namespace, p.UserID, value, ownerID)
}

// isIdentifyingKey 判断偏好键是否属于个人标识字段
func isIdentifyingKey(key string) bool {
	lower := strings.ToLower(key)
	for _, id := range identifyingKeys {
		if strings.Contains(lower, id) {
			return true
		}
	}
	return false
}
