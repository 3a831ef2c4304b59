// Package session 管理多轮对话的会话生命周期
//
// 每个会话维护一条只追加的对话历史，按会话粒度加锁，
// 过期会话从活跃索引中剔除，但在持久化记录的 TTL 内可以复活。
package session

import (
	"encoding/json"
	"time"

	"github.com/easyops/memflow-go/pkg/core/message"
)

// State 会话状态
type State int

const (
	// StateNew 刚创建，尚未记录任何轮次
	StateNew State = iota
	// StateActive 近期有活动
	StateActive
	// StateIdle 一段时间无活动，但未超时
	StateIdle
	// StateExpired 超时，等待从索引中剔除
	StateExpired
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Session 一次多轮对话
//
// History 只追加，不原地修改，保证审计可回放。
// Session 对象由 Manager 独占管理，外部拿到的都是克隆。
type Session struct {
	ID           string
	UserID       string
	CreatedAt    time.Time
	LastActivity time.Time
	History      []message.Message
	Vars         map[string]string

	state State
}

// State 返回最近一次状态机评估的结果
func (s *Session) State() State {
	return s.state
}

// RecentTurns 返回最近 n 条历史，n 不足时返回全部
func (s *Session) RecentTurns(n int) []message.Message {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if n > len(s.History) {
		n = len(s.History)
	}
	turns := make([]message.Message, n)
	copy(turns, s.History[len(s.History)-n:])
	return turns
}

// Clone 深拷贝会话
func (s *Session) Clone() *Session {
	clone := &Session{
		ID:           s.ID,
		UserID:       s.UserID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		state:        s.state,
	}
	if len(s.History) > 0 {
		clone.History = make([]message.Message, len(s.History))
		copy(clone.History, s.History)
	}
	if len(s.Vars) > 0 {
		clone.Vars = make(map[string]string, len(s.Vars))
		for k, v := range s.Vars {
			clone.Vars[k] = v
		}
	}
	return clone
}

// snapshot 会话的持久化形态
type snapshot struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
	History      []message.Message `json:"history,omitempty"`
	Vars         map[string]string `json:"vars,omitempty"`
}

// marshalSession 序列化为持久化记录值
func marshalSession(s *Session) (string, error) {
	data, err := json.Marshal(snapshot{
		ID:           s.ID,
		UserID:       s.UserID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		History:      s.History,
		Vars:         s.Vars,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalSession 从持久化记录值还原会话
func unmarshalSession(value string) (*Session, error) {
	var snap snapshot
	if err := json.Unmarshal([]byte(value), &snap); err != nil {
		return nil, err
	}
	return &Session{
		ID:           snap.ID,
		UserID:       snap.UserID,
		CreatedAt:    snap.CreatedAt,
		LastActivity: snap.LastActivity,
		History:      snap.History,
		Vars:         snap.Vars,
		state:        StateActive,
	}, nil
}
