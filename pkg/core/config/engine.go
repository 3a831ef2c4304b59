package config

import "time"

// EngineConfig 上下文组装配置
type EngineConfig struct {
	// Model 目标模型标识（决定 Token 计数语义）
	Model string `koanf:"model" yaml:"model"`
	// MaxTokens 上下文总 Token 预算
	MaxTokens int `koanf:"max_tokens" yaml:"max_tokens"`
	// ReserveTokens 为模型响应预留的 Token 数量
	ReserveTokens int `koanf:"reserve_tokens" yaml:"reserve_tokens"`
	// OptimizeThreshold 触发优化的预算占用比例 (0-1]
	OptimizeThreshold float64 `koanf:"optimize_threshold" yaml:"optimize_threshold"`
	// SummaryRatio 摘要目标相对被摘要内容的比例
	SummaryRatio float64 `koanf:"summary_ratio" yaml:"summary_ratio"`
	// RelevanceEviction 启用相关性加权淘汰模式
	RelevanceEviction bool `koanf:"relevance_eviction" yaml:"relevance_eviction"`
	// ExternalTimeout 外部能力调用（摘要、嵌入、工具）的超时
	ExternalTimeout time.Duration `koanf:"external_timeout" yaml:"external_timeout"`
}

// MemoryConfig 记忆存储配置
type MemoryConfig struct {
	// ShortTermTTL 短期记忆默认 TTL
	ShortTermTTL time.Duration `koanf:"short_term_ttl" yaml:"short_term_ttl"`
	// WorkingTTL 工作记忆默认 TTL
	WorkingTTL time.Duration `koanf:"working_ttl" yaml:"working_ttl"`
	// SearchLimit 长期记忆检索的默认返回数量
	SearchLimit int `koanf:"search_limit" yaml:"search_limit"`

	// SQLitePath SQLite 数据库路径
	SQLitePath string `koanf:"sqlite_path" yaml:"sqlite_path"`

	// Neo4j 配置
	Neo4jURI      string `koanf:"neo4j_uri" yaml:"neo4j_uri"`
	Neo4jUsername string `koanf:"neo4j_username" yaml:"neo4j_username"`
	Neo4jPassword string `koanf:"neo4j_password" yaml:"neo4j_password"`
}

// SessionConfig 会话管理配置
type SessionConfig struct {
	// Timeout 会话空闲超时，超过后标记为过期
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
	// SweepInterval 后台清扫过期会话的周期
	SweepInterval time.Duration `koanf:"sweep_interval" yaml:"sweep_interval"`
	// MaxHistoryTurns 组装上下文时纳入的最近轮次数量
	MaxHistoryTurns int `koanf:"max_history_turns" yaml:"max_history_turns"`
}
