package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/easyops/memflow-go/pkg/core/errors"
	"github.com/easyops/memflow-go/pkg/otel"
)

// Invoker 工具调用器
//
// 在执行前按 Schema 验证参数，应用超时，统一包装执行失败。
type Invoker struct {
	registry *Registry
	timeout  time.Duration
	logger   otel.Logger
	metrics  otel.Metrics
	tracer   otel.Tracer
}

// InvokerOption 调用器配置选项
type InvokerOption func(*Invoker)

// WithInvokerTimeout 设置单次调用超时
func WithInvokerTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) {
		i.timeout = d
	}
}

// WithInvokerLogger 设置日志器
func WithInvokerLogger(logger otel.Logger) InvokerOption {
	return func(i *Invoker) {
		i.logger = logger
	}
}

// WithInvokerMetrics 设置指标收集器
func WithInvokerMetrics(metrics otel.Metrics) InvokerOption {
	return func(i *Invoker) {
		i.metrics = metrics
	}
}

// WithInvokerTracer 设置追踪器
func WithInvokerTracer(tracer otel.Tracer) InvokerOption {
	return func(i *Invoker) {
		i.tracer = tracer
	}
}

// NewInvoker 创建工具调用器
func NewInvoker(registry *Registry, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		registry: registry,
		timeout:  30 * time.Second,
		logger:   otel.NewNoopLogger(),
		metrics:  otel.NewNoopMetrics(),
		tracer:   otel.NewNoopTracer(),
	}

	for _, opt := range opts {
		opt(inv)
	}

	return inv
}

// Invoke 调用工具
//
// 未注册的工具返回 ErrToolNotFound，参数不符合 Schema 返回
// ErrInvalidParameters，执行失败包装原因返回 ErrToolExecutionFailed。
// 成功与失败的结果都可转换为上下文条目。
func (inv *Invoker) Invoke(ctx context.Context, name string, args map[string]interface{}) (ToolResult, error) {
	ctx, span := inv.tracer.Start(ctx, "tool.invoke",
		otel.WithAttributes(otel.ToolName(name)))
	defer span.End()

	tool, err := inv.registry.Get(name)
	if err != nil {
		span.RecordError(err)
		return NewToolError(name, err), err
	}

	// 执行前验证，不符合 Schema 的调用不会触达工具
	if err := Validate(tool.Parameters(), args); err != nil {
		inv.metrics.Counter(otel.MetricToolErrors).Add(ctx, 1, otel.NewAttr("tool", name))
		span.RecordError(err)
		return NewToolError(name, err), err
	}

	if inv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	start := time.Now()
	inv.metrics.Counter(otel.MetricToolCalls).Add(ctx, 1, otel.NewAttr("tool", name))

	output, execErr := tool.Execute(ctx, args)
	elapsed := time.Since(start)
	inv.metrics.Histogram(otel.MetricToolCallDuration).Record(ctx, float64(elapsed.Milliseconds()),
		otel.NewAttr("tool", name))

	if execErr != nil {
		wrapped := fmt.Errorf("%w: %s: %v", errors.ErrToolExecutionFailed, name, execErr)
		inv.metrics.Counter(otel.MetricToolErrors).Add(ctx, 1, otel.NewAttr("tool", name))
		inv.logger.WithContext(ctx).Warn("tool execution failed",
			"tool", name, "duration_ms", elapsed.Milliseconds(), "error", execErr)
		span.RecordError(wrapped)
		span.SetStatus(otel.StatusError, "tool execution failed")

		result := NewToolError(name, wrapped)
		result.Duration = elapsed
		return result, wrapped
	}

	span.SetAttributes(otel.ToolDuration(elapsed.Milliseconds()))

	result := NewToolResult(name, output)
	result.Duration = elapsed
	return result, nil
}

// InvokeAll 顺序调用多个工具
//
// 单个工具失败不会中断后续调用，失败结果带错误内容返回。
func (inv *Invoker) InvokeAll(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))

	for i, call := range calls {
		select {
		case <-ctx.Done():
			for j := i; j < len(calls); j++ {
				results[j] = NewToolError(calls[j].Name, errors.ErrContextCanceled)
			}
			return results
		default:
			results[i], _ = inv.Invoke(ctx, call.Name, call.Args)
		}
	}

	return results
}

// ToolCall 工具调用请求
type ToolCall struct {
	// ID 调用唯一标识
	ID string
	// Name 工具名称
	Name string
	// Args 参数
	Args map[string]interface{}
}
