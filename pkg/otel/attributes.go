package otel

import "go.opentelemetry.io/otel/attribute"

// 预定义的语义属性键
// 遵循 OpenTelemetry 语义约定
const (
	// Session 相关属性
	AttrSessionID    = "session.id"
	AttrSessionState = "session.state"
	AttrUserID       = "user.id"

	// Context 相关属性
	AttrContextBudget     = "context.budget"
	AttrContextReserve    = "context.reserve"
	AttrContextTokens     = "context.tokens"
	AttrContextItemCount  = "context.item_count"
	AttrContextEvicted    = "context.evicted"
	AttrContextSummarized = "context.summarized"

	// Memory 相关属性
	AttrMemoryTier      = "memory.tier"
	AttrMemoryNamespace = "memory.namespace"
	AttrMemoryKey       = "memory.key"
	AttrMemoryBackend   = "memory.backend"

	// Tool 相关属性
	AttrToolName     = "tool.name"
	AttrToolDuration = "tool.duration_ms"

	// Capability 相关属性
	AttrCapabilityKind  = "capability.kind"
	AttrCapabilityModel = "capability.model"

	// Error 相关属性
	AttrErrorType      = "error.type"
	AttrErrorMessage   = "error.message"
	AttrErrorRetryable = "error.retryable"
)

// SessionID 创建会话 ID 属性
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// UserID 创建用户 ID 属性
func UserID(id string) attribute.KeyValue {
	return attribute.String(AttrUserID, id)
}

// ContextTokens 创建装配 Token 属性
func ContextTokens(budget, reserve, total int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrContextBudget, budget),
		attribute.Int(AttrContextReserve, reserve),
		attribute.Int(AttrContextTokens, total),
	}
}

// MemoryTier 创建记忆层属性
func MemoryTier(tier string) attribute.KeyValue {
	return attribute.String(AttrMemoryTier, tier)
}

// MemoryNamespace 创建命名空间属性
func MemoryNamespace(ns string) attribute.KeyValue {
	return attribute.String(AttrMemoryNamespace, ns)
}

// ToolName 创建工具名称属性
func ToolName(name string) attribute.KeyValue {
	return attribute.String(AttrToolName, name)
}

// ToolDuration 创建工具执行时间属性（毫秒）
func ToolDuration(ms int64) attribute.KeyValue {
	return attribute.Int64(AttrToolDuration, ms)
}

// CapabilityKind 创建能力类型属性
func CapabilityKind(kind string) attribute.KeyValue {
	return attribute.String(AttrCapabilityKind, kind)
}

// ErrorAttrs 创建错误属性
func ErrorAttrs(errType, message string, retryable bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, message),
		attribute.Bool(AttrErrorRetryable, retryable),
	}
}
