package otel

// 预定义的指标名称
// 遵循 OpenTelemetry 语义约定
const (
	// Context 装配指标
	MetricContextAssemblies       = "context.assemblies"        // 计数器: 上下文装配次数
	MetricContextAssemblyDuration = "context.assembly.duration" // 直方图: 装配耗时(ms)
	MetricContextTokensTotal      = "context.tokens.total"      // 直方图: 装配后总 Token 数
	MetricContextEvictions        = "context.evictions"         // 计数器: 条目驱逐次数
	MetricContextSummarizations   = "context.summarizations"    // 计数器: 摘要压缩次数
	MetricContextOverflows        = "context.overflows"         // 计数器: 装配溢出失败次数

	// Memory 存储指标
	MetricMemoryOperations = "memory.operations" // 计数器: 记忆操作次数
	MetricMemoryHits       = "memory.hits"       // 计数器: 记忆命中次数
	MetricMemoryMisses     = "memory.misses"     // 计数器: 记忆未命中次数
	MetricMemoryExpired    = "memory.expired"    // 计数器: 过期清理条数
	MetricMemoryDegraded   = "memory.degraded"   // 计数器: 后端降级次数

	// Session 指标
	MetricSessionsActive  = "session.active"  // 仪表: 活跃会话数
	MetricSessionsCreated = "session.created" // 计数器: 会话创建次数
	MetricSessionsExpired = "session.expired" // 计数器: 会话过期次数
	MetricSessionTurns    = "session.turns"   // 计数器: 记录的对话轮次

	// Tool 指标
	MetricToolCalls        = "tool.calls"         // 计数器: 工具调用次数
	MetricToolCallDuration = "tool.call.duration" // 直方图: 工具调用耗时(ms)
	MetricToolErrors       = "tool.errors"        // 计数器: 工具错误次数

	// Capability 指标（外部 LLM 能力）
	MetricCapabilityRequests        = "capability.requests"         // 计数器: 外部能力请求次数
	MetricCapabilityRequestDuration = "capability.request.duration" // 直方图: 请求耗时(ms)
	MetricCapabilityErrors          = "capability.errors"           // 计数器: 请求错误次数
	MetricCapabilityCircuitOpen     = "capability.circuit.open"     // 计数器: 熔断拒绝次数

	// Compliance 指标
	MetricComplianceDeletes    = "compliance.deletes"    // 计数器: 用户数据删除次数
	MetricComplianceExports    = "compliance.exports"    // 计数器: 用户数据导出次数
	MetricComplianceAnonymized = "compliance.anonymized" // 计数器: 用户匿名化次数
)

// MetricUnit 指标单位
type MetricUnit string

const (
	UnitNone         MetricUnit = ""
	UnitMilliseconds MetricUnit = "ms"
	UnitSeconds      MetricUnit = "s"
	UnitBytes        MetricUnit = "By"
	UnitCount        MetricUnit = "1"
)

// MetricDescription 指标描述
type MetricDescription struct {
	Name        string
	Description string
	Unit        MetricUnit
	Type        string // counter, histogram, gauge
}

// PredefinedMetrics 预定义指标列表
var PredefinedMetrics = []MetricDescription{
	{MetricContextAssemblies, "Number of context assemblies", UnitCount, "counter"},
	{MetricContextAssemblyDuration, "Duration of context assemblies", UnitMilliseconds, "histogram"},
	{MetricContextTokensTotal, "Total tokens in assembled contexts", UnitCount, "histogram"},
	{MetricContextEvictions, "Number of context item evictions", UnitCount, "counter"},
	{MetricContextSummarizations, "Number of summarization compressions", UnitCount, "counter"},
	{MetricContextOverflows, "Number of context overflow failures", UnitCount, "counter"},

	{MetricMemoryOperations, "Number of memory store operations", UnitCount, "counter"},
	{MetricMemoryHits, "Number of memory store hits", UnitCount, "counter"},
	{MetricMemoryMisses, "Number of memory store misses", UnitCount, "counter"},
	{MetricMemoryExpired, "Number of expired records removed", UnitCount, "counter"},
	{MetricMemoryDegraded, "Number of degraded backend operations", UnitCount, "counter"},

	{MetricSessionsActive, "Number of active sessions", UnitCount, "gauge"},
	{MetricSessionsCreated, "Number of sessions created", UnitCount, "counter"},
	{MetricSessionsExpired, "Number of sessions expired", UnitCount, "counter"},
	{MetricSessionTurns, "Number of conversation turns recorded", UnitCount, "counter"},

	{MetricToolCalls, "Number of tool invocations", UnitCount, "counter"},
	{MetricToolCallDuration, "Duration of tool invocations", UnitMilliseconds, "histogram"},
	{MetricToolErrors, "Number of tool invocation errors", UnitCount, "counter"},

	{MetricCapabilityRequests, "Number of external capability requests", UnitCount, "counter"},
	{MetricCapabilityRequestDuration, "Duration of external capability requests", UnitMilliseconds, "histogram"},
	{MetricCapabilityErrors, "Number of external capability errors", UnitCount, "counter"},
	{MetricCapabilityCircuitOpen, "Number of circuit breaker rejections", UnitCount, "counter"},

	{MetricComplianceDeletes, "Number of user data deletions", UnitCount, "counter"},
	{MetricComplianceExports, "Number of user data exports", UnitCount, "counter"},
	{MetricComplianceAnonymized, "Number of user anonymizations", UnitCount, "counter"},
}
