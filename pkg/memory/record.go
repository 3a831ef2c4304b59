// Package memory 提供分层记忆存储
//
// 三个层级具有不同的持久性/延迟权衡：短期记忆偏向低延迟，
// 工作记忆偏向精确查找和中等持久性，长期记忆偏向语义可检索性，
// 且是唯一支持 Search 的层级。
package memory

import (
	"time"
)

// Tier 记忆层级
type Tier string

const (
	// TierShortTerm 短期记忆：低延迟，丢失仅降级体验
	TierShortTerm Tier = "short_term"
	// TierWorking 工作记忆：精确查找，中等持久性
	TierWorking Tier = "working"
	// TierLongTerm 长期记忆：语义检索，默认不过期
	TierLongTerm Tier = "long_term"
)

// IsValid 检查层级是否有效
func (t Tier) IsValid() bool {
	switch t {
	case TierShortTerm, TierWorking, TierLongTerm:
		return true
	default:
		return false
	}
}

// Record 记忆记录
//
// Key 在 (tier, namespace) 内唯一；覆盖写会替换 Value 并刷新
// CreatedAt，但保留 OwnerUserID。
type Record struct {
	// Key 记录键
	Key string `json:"key"`
	// Namespace 命名空间（例如 "facts"、"sessions"、"profiles"）
	Namespace string `json:"namespace"`
	// Value 不透明负载
	Value string `json:"value"`
	// Tier 所属层级
	Tier Tier `json:"tier"`
	// OwnerUserID 所属用户（可选，用于合规操作的归属检索）
	OwnerUserID string `json:"owner_user_id,omitempty"`
	// Embedding 预计算的向量（可选，由摄取管道提供）
	Embedding []float32 `json:"-"`
	// Metadata 元数据
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	// CreatedAt 写入时间
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt 过期时间；零值表示不过期
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	// Score 检索时的相关性分数（仅作为 Search 输出填充）
	Score float64 `json:"score,omitempty"`
}

// Expired 判断记录在给定时刻是否已过期
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Clone 克隆记录
//
// 后端在读写边界克隆记录，保证调用方永远观察不到半写状态。
func (r *Record) Clone() *Record {
	clone := *r
	if r.Embedding != nil {
		clone.Embedding = make([]float32, len(r.Embedding))
		copy(clone.Embedding, r.Embedding)
	}
	if r.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(r.Metadata))
		for k, v := range r.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// Validate 验证记录的有效性
func (r *Record) Validate() error {
	if r.Key == "" || r.Namespace == "" {
		return ErrInvalidRecord
	}
	if !r.Tier.IsValid() {
		return ErrInvalidRecord
	}
	return nil
}
