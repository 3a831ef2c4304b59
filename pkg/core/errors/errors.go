// Package errors 定义引擎的通用错误类型
package errors

import (
	"errors"
	"fmt"
)

// 通用错误
var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidInput 输入无效
	ErrInvalidInput = errors.New("invalid input")
	// ErrContextCanceled 上下文被取消
	ErrContextCanceled = errors.New("context canceled")
	// ErrTimeout 外部调用超时
	ErrTimeout = errors.New("external call timeout")
)

// 上下文组装相关错误
var (
	// ErrContextOverflow 完整优化后仍无法满足 Token 预算
	ErrContextOverflow = errors.New("context overflow: budget cannot be satisfied")
	// ErrItemTooLarge 单个条目超出整体预算
	ErrItemTooLarge = errors.New("context item exceeds token budget")
)

// 会话相关错误
var (
	// ErrSessionNotFound 会话未被跟踪
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired 会话已过期
	ErrSessionExpired = errors.New("session expired")
)

// 工具相关错误
var (
	// ErrDuplicateTool 工具名已注册
	ErrDuplicateTool = errors.New("tool already registered")
	// ErrToolNotFound 工具未找到
	ErrToolNotFound = errors.New("tool not found")
	// ErrInvalidParameters 工具参数不符合 Schema
	ErrInvalidParameters = errors.New("invalid tool parameters")
	// ErrToolExecutionFailed 工具执行失败
	ErrToolExecutionFailed = errors.New("tool execution failed")
)

// 存储相关错误
var (
	// ErrNotFound 记录未找到（或已过期）
	ErrNotFound = errors.New("record not found")
	// ErrStorageUnavailable 存储后端不可用
	ErrStorageUnavailable = errors.New("storage backend unavailable")
)

// 合规操作相关错误
var (
	// ErrComplianceFailed 删除/导出/匿名化未原子完成，需要重试
	ErrComplianceFailed = errors.New("compliance operation did not complete")
)

// 外部能力相关错误
var (
	// ErrCircuitOpen 熔断器打开，外部能力暂时拒绝请求
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrCapabilityUnavailable 外部能力未配置
	ErrCapabilityUnavailable = errors.New("capability not configured")
	// ErrRateLimited 请求被限速
	ErrRateLimited = errors.New("rate limited")
)

// Is 判断错误链中是否包含目标错误
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 提取错误链中的目标类型
func As(err error, target any) bool {
	return errors.As(err, target)
}

// WrapError 包装错误并添加上下文信息
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// IsRetryable 判断错误是否可重试
//
// 合规操作失败必须重试；瞬时存储故障和超时也可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrComplianceFailed) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrRateLimited)
}

// IsFatal 判断错误是否为致命错误（不可恢复）
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInvalidConfig)
}
