package memory

import "errors"

// 记忆存储相关错误
var (
	// ErrInvalidRecord 记录字段无效
	ErrInvalidRecord = errors.New("invalid memory record")
	// ErrUnknownTier 层级未配置后端
	ErrUnknownTier = errors.New("no backend configured for tier")
	// ErrSearchUnsupported 非长期层级不支持语义检索
	ErrSearchUnsupported = errors.New("search is only supported on the long-term tier")
)
