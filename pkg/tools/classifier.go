package tools

import "context"

// Classifier 判定哪些工具适用于一个查询
//
// 意图识别不是 Invoker 的职责，通常由外部模型能力实现。
// 返回空切片表示没有工具适用。
type Classifier interface {
	Classify(ctx context.Context, query string, defs []ToolDefinition) ([]ToolCall, error)
}
