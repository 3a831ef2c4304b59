// Package message 定义对话轮次相关的类型
package message

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role 表示轮次的角色类型
type Role string

const (
	// RoleSystem 系统消息
	RoleSystem Role = "system"
	// RoleUser 用户消息
	RoleUser Role = "user"
	// RoleAssistant AI 助手消息
	RoleAssistant Role = "assistant"
	// RoleTool 工具调用结果消息
	RoleTool Role = "tool"
)

// IsValid 检查 Role 是否为有效值
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Message 表示对话中的一个轮次
//
// ID 使用 ULID，保证按追加顺序可排序，便于审计。
type Message struct {
	// ID 轮次唯一标识
	ID string `json:"id,omitempty"`
	// Role 轮次角色
	Role Role `json:"role"`
	// Content 轮次内容
	Content string `json:"content"`
	// Name 名称（当 Role=tool 时为工具名称）
	Name string `json:"name,omitempty"`
	// TokenCount 内容的 Token 数量（0 表示尚未计数）
	TokenCount int `json:"token_count,omitempty"`
	// Metadata 元数据
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	// Timestamp 时间戳
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewMessage 创建新轮次
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage 创建系统轮次
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage 创建用户轮次
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage 创建助手轮次
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewToolMessage 创建工具结果轮次
func NewToolMessage(name, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      RoleTool,
		Content:   content,
		Name:      name,
		Timestamp: time.Now(),
	}
}

// NewID 生成按时间可排序的轮次 ID
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Validate 验证轮次是否有效
func (m *Message) Validate() error {
	if !m.Role.IsValid() {
		return ErrInvalidRole
	}
	if m.Content == "" {
		return ErrEmptyContent
	}
	if m.Role == RoleTool && m.Name == "" {
		return ErrMissingToolName
	}
	return nil
}
