// Package tools 提供工具注册与调用
package tools

import (
	"context"
)

// Tool 定义工具的核心接口
//
// 工具让引擎在装配上下文时获取外部信息，
// 例如检索文档、查询数据库或调用 API。
type Tool interface {
	// Name 返回工具唯一名称
	Name() string

	// Description 返回工具描述
	// 描述应清晰说明工具的功能，帮助模型理解何时使用此工具
	Description() string

	// Parameters 返回参数 Schema
	// 遵循 JSON Schema 格式，调用前用于参数验证
	Parameters() ParameterSchema

	// Execute 执行工具
	//
	// 参数:
	//   - ctx: 上下文，用于超时和取消控制
	//   - args: 工具参数
	//
	// 返回:
	//   - string: 工具执行结果文本
	//   - error: 执行错误
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// FuncTool 将普通函数包装为工具
type FuncTool struct {
	name        string
	description string
	parameters  ParameterSchema
	fn          func(ctx context.Context, args map[string]interface{}) (string, error)
}

// NewFuncTool 创建函数工具
func NewFuncTool(name, description string, parameters ParameterSchema,
	fn func(ctx context.Context, args map[string]interface{}) (string, error)) *FuncTool {
	return &FuncTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// Name 返回工具名称
func (t *FuncTool) Name() string { return t.name }

// Description 返回工具描述
func (t *FuncTool) Description() string { return t.description }

// Parameters 返回参数 Schema
func (t *FuncTool) Parameters() ParameterSchema { return t.parameters }

// Execute 执行工具
func (t *FuncTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return t.fn(ctx, args)
}

// compile-time interface check
var _ Tool = (*FuncTool)(nil)
