package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/easyops/memflow-go/pkg/core/errors"
	"github.com/easyops/memflow-go/pkg/core/message"
	"github.com/easyops/memflow-go/pkg/memory"
	"github.com/easyops/memflow-go/pkg/otel"
)

// Namespace 会话快照在记忆存储中的命名空间
const Namespace = "sessions"

const (
	// DefaultTimeout 会话超时时间
	DefaultTimeout = 30 * time.Minute
	// DefaultIdleAfter 无活动多久进入 IDLE
	DefaultIdleAfter = 5 * time.Minute
	// DefaultSweepInterval 后台清扫周期
	DefaultSweepInterval = time.Minute
)

// entry 活跃索引中的一项，持有会话自己的锁
//
// gone 在条目被清扫剔除时置位，等在锁上的访问者据此丢弃
// 孤儿条目重试，保证同一会话任一时刻只有一份活条目。
type entry struct {
	mu      sync.Mutex
	session *Session
	gone    bool
}

// Manager 会话管理器
//
// 活跃会话保存在内存索引中，按条目加锁，互不相关的会话
// 完全并行。每次成功的写操作都会把快照持久化到记忆存储的
// working 层，过期后凭该快照复活。
type Manager struct {
	store         *memory.Store
	timeout       time.Duration
	idleAfter     time.Duration
	sweepInterval time.Duration
	logger        otel.Logger
	metrics       otel.Metrics
	now           func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	done      chan struct{}
	closeOnce sync.Once
}

// ManagerOption 管理器可选配置
type ManagerOption func(*Manager)

// WithTimeout 设置会话超时时间
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithIdleAfter 设置进入 IDLE 的间隔
func WithIdleAfter(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.idleAfter = d
		}
	}
}

// WithSweepInterval 设置后台清扫周期，0 表示关闭后台清扫
func WithSweepInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.sweepInterval = d
	}
}

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

// NewManager 创建会话管理器
func NewManager(store *memory.Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: memory store is required", errors.ErrInvalidConfig)
	}

	m := &Manager{
		store:         store,
		timeout:       DefaultTimeout,
		idleAfter:     DefaultIdleAfter,
		sweepInterval: DefaultSweepInterval,
		logger:        otel.NewNoopLogger(),
		metrics:       otel.NewNoopMetrics(),
		now:           time.Now,
		entries:       make(map[string]*entry),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.sweepInterval > 0 {
		go m.sweepLoop()
	}
	return m, nil
}

// Close 停止后台清扫
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	return nil
}

// GetOrCreate 解析会话，必要时复活或新建，返回克隆
func (m *Manager) GetOrCreate(ctx context.Context, userID, sessionID string) (*Session, error) {
	var result *Session
	err := m.WithSession(ctx, userID, sessionID, func(s *Session) error {
		result = s.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WithSession 在会话锁内执行 fn
//
// 这是引擎的串行化入口：同一会话的装配和追加都通过这里
// 排队执行，fn 返回 nil 时刷新活动时间并持久化快照。
// fn 内对外部能力的阻塞调用也处于锁保护之下。
func (m *Manager) WithSession(ctx context.Context, userID, sessionID string, fn func(s *Session) error) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id is empty", errors.ErrInvalidInput)
	}

	e := m.lockEntry(sessionID)
	defer e.mu.Unlock()

	s, err := m.resolveLocked(ctx, e, userID, sessionID)
	if err != nil {
		return err
	}

	if err := fn(s); err != nil {
		return err
	}

	s.LastActivity = m.now()
	if s.state == StateNew && len(s.History) > 0 {
		s.state = StateActive
	} else if s.state == StateIdle {
		s.state = StateActive
	}
	return m.persistLocked(ctx, s)
}

// RecordTurn 追加一条对话轮次
func (m *Manager) RecordTurn(ctx context.Context, userID, sessionID string, msg message.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	err := m.WithSession(ctx, userID, sessionID, func(s *Session) error {
		s.History = append(s.History, msg)
		return nil
	})
	if err != nil {
		return err
	}
	m.metrics.Counter(otel.MetricSessionTurns).Add(ctx, 1, otel.NewAttr("role", string(msg.Role)))
	return nil
}

// UpdateSession 合并上下文变量
//
// 只允许更新活跃索引中跟踪的会话，未跟踪的 ID 返回
// ErrSessionNotFound，已过期的会话返回 ErrSessionExpired。
func (m *Manager) UpdateSession(ctx context.Context, sessionID string, vars map[string]string) error {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrSessionNotFound, sessionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if e.gone || s == nil {
		return fmt.Errorf("%w: %s", errors.ErrSessionNotFound, sessionID)
	}
	if m.refreshState(s) == StateExpired {
		return fmt.Errorf("%w: %s", errors.ErrSessionExpired, sessionID)
	}

	if s.Vars == nil {
		s.Vars = make(map[string]string, len(vars))
	}
	for k, v := range vars {
		s.Vars[k] = v
	}
	s.LastActivity = m.now()
	return m.persistLocked(ctx, s)
}

// ListActiveSessions 列出某用户的全部活跃会话，返回克隆
func (m *Manager) ListActiveSessions(userID string) []*Session {
	var sessions []*Session
	for _, e := range m.snapshotEntries() {
		e.mu.Lock()
		s := e.session
		if !e.gone && s != nil && s.UserID == userID && m.refreshState(s) != StateExpired {
			sessions = append(sessions, s.Clone())
		}
		e.mu.Unlock()
	}
	return sessions
}

// PurgeUser 从活跃索引中剔除某用户的全部会话，返回剔除数量
//
// 合规删除的一环：先剔除内存条目，再由调用方清除持久化快照，
// 否则被删用户的会话会在下次活动时把历史重新写回存储。
func (m *Manager) PurgeUser(userID string) int {
	purged := 0
	for id, e := range m.snapshotEntries() {
		e.mu.Lock()
		if !e.gone && e.session != nil && e.session.UserID == userID {
			e.gone = true
			e.session = nil
			m.mu.Lock()
			if m.entries[id] == e {
				delete(m.entries, id)
			}
			m.mu.Unlock()
			purged++
		}
		e.mu.Unlock()
	}
	if purged > 0 {
		m.logger.Info("purged user sessions", "user_id", userID, "count", purged)
	}
	return purged
}

// snapshotEntries 在全局锁内拷贝索引快照
func (m *Manager) snapshotEntries() map[string]*entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		snapshot[id] = e
	}
	return snapshot
}

// lockEntry 返回已锁定的索引条目，必要时创建
//
// 全局锁只用于索引查找，从不在持有条目锁时等待条目锁。
// 拿到的条目若已被清扫剔除则重试。
func (m *Manager) lockEntry(sessionID string) *entry {
	for {
		m.mu.Lock()
		e, ok := m.entries[sessionID]
		if !ok {
			e = &entry{}
			m.entries[sessionID] = e
		}
		m.mu.Unlock()

		e.mu.Lock()
		if !e.gone {
			return e
		}
		e.mu.Unlock()
	}
}

// resolveLocked 在条目锁内解析会话：活跃则复用，过期则尝试
// 从持久化快照复活，否则新建
func (m *Manager) resolveLocked(ctx context.Context, e *entry, userID, sessionID string) (*Session, error) {
	if e.session != nil && m.refreshState(e.session) != StateExpired {
		return e.session, nil
	}

	if e.session != nil {
		// 过期条目让位，快照仍可能在 TTL 内
		m.metrics.Counter(otel.MetricSessionsExpired).Add(ctx, 1)
		e.session = nil
	}

	// 快照仍能读到就复活，本次访问即重新激活
	if s := m.resurrect(ctx, sessionID); s != nil {
		m.logger.Debug("session resurrected", "session_id", sessionID)
		s.LastActivity = m.now()
		s.state = StateActive
		e.session = s
		return s, nil
	}

	now := m.now()
	s := &Session{
		ID:           sessionID,
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		state:        StateNew,
	}
	e.session = s
	m.metrics.Counter(otel.MetricSessionsCreated).Add(ctx, 1)
	return s, nil
}

// resurrect 尝试从记忆存储中读回快照
func (m *Manager) resurrect(ctx context.Context, sessionID string) *Session {
	rec, err := m.store.Get(ctx, memory.TierWorking, Namespace, sessionID)
	if err != nil {
		return nil
	}
	s, err := unmarshalSession(rec.Value)
	if err != nil {
		m.logger.Warn("discarding corrupt session snapshot",
			"session_id", sessionID, "error", err.Error())
		return nil
	}
	return s
}

// persistLocked 持久化快照，working 层故障由存储降级吸收
func (m *Manager) persistLocked(ctx context.Context, s *Session) error {
	value, err := marshalSession(s)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.ID, err)
	}
	return m.store.Put(ctx, memory.TierWorking, Namespace, s.ID, value, s.UserID)
}

// refreshState 依据最后活动时间推进状态机
func (m *Manager) refreshState(s *Session) State {
	idle := m.now().Sub(s.LastActivity)
	switch {
	case idle > m.timeout:
		s.state = StateExpired
	case idle > m.idleAfter && s.state == StateActive:
		s.state = StateIdle
	}
	return s.state
}

// sweepLoop 周期性剔除过期条目
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep 立即执行一轮过期清扫，返回剔除数量
func (m *Manager) Sweep() int {
	evicted := 0
	active := 0
	for id, e := range m.snapshotEntries() {
		e.mu.Lock()
		if e.gone {
			e.mu.Unlock()
			continue
		}
		if e.session == nil || m.refreshState(e.session) == StateExpired {
			e.gone = true
			m.mu.Lock()
			if m.entries[id] == e {
				delete(m.entries, id)
			}
			m.mu.Unlock()
			evicted++
		} else {
			active++
		}
		e.mu.Unlock()
	}

	ctx := context.Background()
	if evicted > 0 {
		m.metrics.Counter(otel.MetricSessionsExpired).Add(ctx, int64(evicted))
	}
	m.metrics.Gauge(otel.MetricSessionsActive).Set(ctx, float64(active))
	return evicted
}
