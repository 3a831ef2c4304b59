package memory

import (
	"context"
)

// ScanFilter 扫描过滤条件
//
// 零值字段不参与过滤。
type ScanFilter struct {
	// Namespace 按命名空间过滤
	Namespace string
	// OwnerUserID 按所属用户过滤
	OwnerUserID string
	// Limit 返回数量限制，0 表示不限制
	Limit int
}

// TierBackend 单层存储后端接口
//
// 具体后端通过依赖注入替换：测试用进程内 map，
// 生产用 SQLite 或 Neo4j。实现必须按键并发安全，
// 且单条记录的写入是原子的（不会观察到半写记录）。
type TierBackend interface {
	// Get 按键读取记录；不存在返回 ErrNotFound
	Get(ctx context.Context, namespace, key string) (*Record, error)

	// Set 写入/覆盖记录（整条替换）
	Set(ctx context.Context, record *Record) error

	// Delete 删除记录；删除不存在的键不是错误
	Delete(ctx context.Context, namespace, key string) error

	// Scan 按过滤条件枚举记录
	Scan(ctx context.Context, filter ScanFilter) ([]*Record, error)

	// Close 关闭后端
	Close() error
}
