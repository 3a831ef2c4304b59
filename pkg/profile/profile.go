// Package profile 管理跨会话的用户画像与合规操作
package profile

import (
	"encoding/json"
	"time"
)

// Namespace 画像在记忆存储中的命名空间
const Namespace = "profiles"

// Profile 用户画像
//
// CoreAttributes 只随用户显式操作变化；LearnedPreferences
// 从交互中累积，更新时按键合并而不是整体替换。
type Profile struct {
	UserID             string            `json:"user_id"`
	CoreAttributes     map[string]string `json:"core_attributes,omitempty"`
	LearnedPreferences map[string]string `json:"learned_preferences,omitempty"`
	LastModified       time.Time         `json:"last_modified"`
}

// NewProfile 创建空画像
func NewProfile(userID string) *Profile {
	return &Profile{
		UserID:             userID,
		CoreAttributes:     make(map[string]string),
		LearnedPreferences: make(map[string]string),
	}
}

// Clone 深拷贝画像
func (p *Profile) Clone() *Profile {
	clone := &Profile{
		UserID:       p.UserID,
		LastModified: p.LastModified,
	}
	clone.CoreAttributes = make(map[string]string, len(p.CoreAttributes))
	for k, v := range p.CoreAttributes {
		clone.CoreAttributes[k] = v
	}
	clone.LearnedPreferences = make(map[string]string, len(p.LearnedPreferences))
	for k, v := range p.LearnedPreferences {
		clone.LearnedPreferences[k] = v
	}
	return clone
}

func marshalProfile(p *Profile) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalProfile(value string) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal([]byte(value), &p); err != nil {
		return nil, err
	}
	if p.CoreAttributes == nil {
		p.CoreAttributes = make(map[string]string)
	}
	if p.LearnedPreferences == nil {
		p.LearnedPreferences = make(map[string]string)
	}
	return &p, nil
}
