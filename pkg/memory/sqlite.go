package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/easyops/memflow-go/pkg/core/errors"
)

// SQLiteBackend SQLite 存储后端
//
// 工作记忆和长期记忆的持久化后端。单条记录写入使用
// upsert，整条替换，保证原子性。
type SQLiteBackend struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteBackend 创建 SQLite 后端
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	b := &SQLiteBackend{db: db, now: time.Now}

	if err := b.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return b, nil
}

// initSchema 初始化表结构
func (b *SQLiteBackend) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS records (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT,
		owner_user_id TEXT,
		embedding TEXT,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		expires_at INTEGER,
		PRIMARY KEY (namespace, key)
	);
	CREATE INDEX IF NOT EXISTS idx_records_owner ON records(owner_user_id);
	CREATE INDEX IF NOT EXISTS idx_records_expires ON records(expires_at);
	`

	_, err := b.db.Exec(query)
	return err
}

// Get 按键读取记录
func (b *SQLiteBackend) Get(ctx context.Context, namespace, key string) (*Record, error) {
	query := `SELECT key, namespace, value, owner_user_id, embedding, metadata, created_at, expires_at
		FROM records WHERE namespace = ? AND key = ?`

	rec, err := b.scanRow(b.db.QueryRowContext(ctx, query, namespace, key))
	if err != nil {
		return nil, err
	}

	// 惰性过期：读到过期记录返回 ErrNotFound 并尽力删除
	if rec.Expired(b.now()) {
		_, _ = b.db.ExecContext(ctx,
			`DELETE FROM records WHERE namespace = ? AND key = ? AND expires_at IS NOT NULL AND expires_at < ?`,
			namespace, key, b.now().UnixMilli())
		return nil, errors.ErrNotFound
	}

	return rec, nil
}

// Set 写入/覆盖记录
func (b *SQLiteBackend) Set(ctx context.Context, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	embedding, err := json.Marshal(record.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var expiresAt interface{}
	if !record.ExpiresAt.IsZero() {
		expiresAt = record.ExpiresAt.UnixMilli()
	}

	query := `
	INSERT INTO records (namespace, key, value, owner_user_id, embedding, metadata, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(namespace, key) DO UPDATE SET
		value = excluded.value,
		owner_user_id = excluded.owner_user_id,
		embedding = excluded.embedding,
		metadata = excluded.metadata,
		created_at = excluded.created_at,
		expires_at = excluded.expires_at
	`

	_, err = b.db.ExecContext(ctx, query,
		record.Namespace, record.Key, record.Value, record.OwnerUserID,
		string(embedding), string(metadata),
		record.CreatedAt.UnixMilli(), expiresAt)
	return err
}

// Delete 删除记录（幂等）
func (b *SQLiteBackend) Delete(ctx context.Context, namespace, key string) error {
	_, err := b.db.ExecContext(ctx,
		`DELETE FROM records WHERE namespace = ? AND key = ?`, namespace, key)
	return err
}

// Scan 按过滤条件枚举记录
func (b *SQLiteBackend) Scan(ctx context.Context, filter ScanFilter) ([]*Record, error) {
	query := `SELECT key, namespace, value, owner_user_id, embedding, metadata, created_at, expires_at
		FROM records WHERE (expires_at IS NULL OR expires_at >= ?)`
	args := []interface{}{b.now().UnixMilli()}

	if filter.Namespace != "" {
		query += " AND namespace = ?"
		args = append(args, filter.Namespace)
	}
	if filter.OwnerUserID != "" {
		query += " AND owner_user_id = ?"
		args = append(args, filter.OwnerUserID)
	}
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*Record
	for rows.Next() {
		rec, err := b.scanRows(rows)
		if err != nil {
			continue // 跳过无效记录
		}
		results = append(results, rec)
	}

	return results, rows.Err()
}

// Close 关闭连接
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRow 扫描单行结果
func (b *SQLiteBackend) scanRow(row *sql.Row) (*Record, error) {
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	return rec, err
}

// scanRows 扫描多行结果中的一行
func (b *SQLiteBackend) scanRows(rows *sql.Rows) (*Record, error) {
	return scanRecord(rows)
}

func scanRecord(s rowScanner) (*Record, error) {
	var rec Record
	var owner, embeddingStr, metadataStr sql.NullString
	var createdAt int64
	var expiresAt sql.NullInt64

	err := s.Scan(&rec.Key, &rec.Namespace, &rec.Value, &owner,
		&embeddingStr, &metadataStr, &createdAt, &expiresAt)
	if err != nil {
		return nil, err
	}

	rec.OwnerUserID = owner.String
	rec.CreatedAt = time.UnixMilli(createdAt)
	if expiresAt.Valid {
		rec.ExpiresAt = time.UnixMilli(expiresAt.Int64)
	}
	if embeddingStr.Valid && embeddingStr.String != "" && embeddingStr.String != "null" {
		if err := json.Unmarshal([]byte(embeddingStr.String), &rec.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
		}
	}
	if metadataStr.Valid && metadataStr.String != "" && metadataStr.String != "null" {
		if err := json.Unmarshal([]byte(metadataStr.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &rec, nil
}

// Compile-time interface check
var _ TierBackend = (*SQLiteBackend)(nil)
