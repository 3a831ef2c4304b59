// Package config 提供配置加载和管理功能
//
// 配置是传递给构造函数的显式结构体，而不是进程级可变状态，
// 因此同一进程内可以运行多个独立配置的引擎实例。
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// Config 全局配置结构
type Config struct {
	// Engine 上下文组装配置
	Engine EngineConfig `koanf:"engine" yaml:"engine"`
	// Memory 记忆存储配置
	Memory MemoryConfig `koanf:"memory" yaml:"memory"`
	// Session 会话管理配置
	Session SessionConfig `koanf:"session" yaml:"session"`
	// Observability 可观测性配置
	Observability ObservabilityConfig `koanf:"observability" yaml:"observability"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	// Enabled 是否启用
	Enabled bool `koanf:"enabled" yaml:"enabled"`
	// ServiceName 服务名称
	ServiceName string `koanf:"service_name" yaml:"service_name"`
	// TracerEndpoint 追踪端点
	TracerEndpoint string `koanf:"tracer_endpoint" yaml:"tracer_endpoint"`
	// MetricsEndpoint 指标端点
	MetricsEndpoint string `koanf:"metrics_endpoint" yaml:"metrics_endpoint"`
	// SampleRate 采样率 [0, 1]
	SampleRate float64 `koanf:"sample_rate" yaml:"sample_rate"`
}

// Loader 配置加载器
type Loader struct {
	k *koanf.Koanf
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{
		k: koanf.New("."),
	}
}

// LoadEnv 从环境变量加载配置
func (l *Loader) LoadEnv(prefix string) error {
	return l.k.Load(env.Provider(prefix, ".", func(s string) string {
		// 转换环境变量名: MEMFLOW_ENGINE_MAX_TOKENS -> engine.max_tokens
		// 只在第一个下划线处分段，字段名里的下划线保持原样
		s = strings.TrimPrefix(s, prefix)
		s = strings.ToLower(s)
		if section, field, ok := strings.Cut(s, "_"); ok {
			return section + "." + field
		}
		return s
	}), nil)
}

// Unmarshal 解析配置到结构体
func (l *Loader) Unmarshal(cfg *Config) error {
	return l.k.Unmarshal("", cfg)
}

// GetString 获取字符串配置值
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// GetInt 获取整数配置值
func (l *Loader) GetInt(key string) int {
	return l.k.Int(key)
}

// GetDuration 获取时间间隔配置值
func (l *Loader) GetDuration(key string) time.Duration {
	return l.k.Duration(key)
}

// Load 加载完整配置（YAML 文件 + 环境变量）
//
// 环境变量优先级高于文件；文件不存在时使用默认值。
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// 加载配置文件
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// 加载环境变量（优先级更高）
	loader := NewLoader()
	if err := loader.LoadEnv("MEMFLOW_"); err != nil {
		return nil, err
	}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// 应用默认值
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults 应用默认配置值
func applyDefaults(cfg *Config) {
	// Engine 默认值
	if cfg.Engine.MaxTokens == 0 {
		cfg.Engine.MaxTokens = 8000
	}
	if cfg.Engine.ReserveTokens == 0 {
		cfg.Engine.ReserveTokens = 1200
	}
	if cfg.Engine.OptimizeThreshold == 0 {
		cfg.Engine.OptimizeThreshold = 0.85
	}
	if cfg.Engine.SummaryRatio == 0 {
		cfg.Engine.SummaryRatio = 0.25
	}
	if cfg.Engine.Model == "" {
		cfg.Engine.Model = "gpt-4o"
	}
	if cfg.Engine.ExternalTimeout == 0 {
		cfg.Engine.ExternalTimeout = 30 * time.Second
	}

	// Memory 默认值
	if cfg.Memory.ShortTermTTL == 0 {
		cfg.Memory.ShortTermTTL = 2 * time.Hour
	}
	if cfg.Memory.WorkingTTL == 0 {
		cfg.Memory.WorkingTTL = 24 * time.Hour
	}
	if cfg.Memory.SearchLimit == 0 {
		cfg.Memory.SearchLimit = 5
	}

	// Session 默认值
	if cfg.Session.Timeout == 0 {
		cfg.Session.Timeout = 30 * time.Minute
	}
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = time.Minute
	}
	if cfg.Session.MaxHistoryTurns == 0 {
		cfg.Session.MaxHistoryTurns = 10
	}

	// Observability 默认值
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}
}
