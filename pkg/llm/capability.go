// Package llm 提供外部模型能力的统一接入
//
// 引擎本身不生成文本，摘要、嵌入和补全都通过这里的能力接口
// 接入外部提供商，并统一套上熔断和限速保护。
package llm

import (
	"context"
)

// Summarizer 摘要能力
type Summarizer interface {
	// Summarize 将文本压缩到目标 Token 数以内
	Summarize(ctx context.Context, text string, targetTokens int) (string, error)
}

// Embedder 嵌入能力
type Embedder interface {
	// Embed 批量生成嵌入向量
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer 补全能力
type Completer interface {
	// Complete 根据提示生成补全文本
	Complete(ctx context.Context, prompt string) (string, error)
}

// Capability 聚合全部外部能力
type Capability interface {
	Summarizer
	Embedder
	Completer
}
