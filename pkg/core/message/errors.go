package message

import "errors"

// 消息相关错误
var (
	// ErrInvalidRole 角色无效
	ErrInvalidRole = errors.New("invalid message role")
	// ErrEmptyContent 内容为空
	ErrEmptyContent = errors.New("empty message content")
	// ErrMissingToolName 工具轮次缺少工具名
	ErrMissingToolName = errors.New("missing tool name")
)
