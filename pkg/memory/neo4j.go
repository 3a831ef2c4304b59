package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/easyops/memflow-go/pkg/core/errors"
)

// Neo4jConfig Neo4j 配置
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
}

// Neo4jBackend Neo4j 存储后端
//
// 将记录存储为 (:MemoryRecord) 节点的长期记忆后端。
// 适合需要与知识图谱共库部署的场景。
type Neo4jBackend struct {
	driver neo4j.DriverWithContext
	now    func() time.Time
}

// NewNeo4jBackend 创建 Neo4j 后端
func NewNeo4jBackend(config Neo4jConfig) (*Neo4jBackend, error) {
	if config.URI == "" {
		config.URI = "bolt://localhost:7687"
	}

	auth := neo4j.NoAuth()
	if config.Username != "" && config.Password != "" {
		auth = neo4j.BasicAuth(config.Username, config.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(config.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	b := &Neo4jBackend{driver: driver, now: time.Now}

	if err := b.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return b, nil
}

// createIndexes 创建索引
func (b *Neo4jBackend) createIndexes(ctx context.Context) error {
	session := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	indexes := []string{
		"CREATE INDEX record_ns_key IF NOT EXISTS FOR (r:MemoryRecord) ON (r.namespace, r.key)",
		"CREATE INDEX record_owner IF NOT EXISTS FOR (r:MemoryRecord) ON (r.owner_user_id)",
	}

	for _, idx := range indexes {
		_, err := session.Run(ctx, idx, nil)
		if err != nil {
			// 忽略索引已存在的错误
			if !strings.Contains(err.Error(), "already exists") {
				return err
			}
		}
	}

	return nil
}

// Get 按键读取记录
func (b *Neo4jBackend) Get(ctx context.Context, namespace, key string) (*Record, error) {
	session := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := `MATCH (r:MemoryRecord {namespace: $namespace, key: $key}) RETURN r`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"namespace": namespace,
		"key":       key,
	})
	if err != nil {
		return nil, err
	}

	if result.Next(ctx) {
		nodeVal, _ := result.Record().Get("r")
		node := nodeVal.(neo4j.Node)
		rec, err := b.nodeToRecord(node)
		if err != nil {
			return nil, err
		}
		if rec.Expired(b.now()) {
			_ = b.Delete(ctx, namespace, key)
			return nil, errors.ErrNotFound
		}
		return rec, nil
	}

	return nil, errors.ErrNotFound
}

// Set 写入/覆盖记录
func (b *Neo4jBackend) Set(ctx context.Context, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	session := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	embedding, err := json.Marshal(record.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var expiresAt int64
	if !record.ExpiresAt.IsZero() {
		expiresAt = record.ExpiresAt.UnixMilli()
	}

	query := `
	MERGE (r:MemoryRecord {namespace: $namespace, key: $key})
	SET
		r.value = $value,
		r.owner_user_id = $owner,
		r.embedding = $embedding,
		r.metadata = $metadata,
		r.created_at = $createdAt,
		r.expires_at = $expiresAt
	`

	params := map[string]interface{}{
		"namespace": record.Namespace,
		"key":       record.Key,
		"value":     record.Value,
		"owner":     record.OwnerUserID,
		"embedding": string(embedding),
		"metadata":  string(metadata),
		"createdAt": record.CreatedAt.UnixMilli(),
		"expiresAt": expiresAt,
	}

	_, err = session.Run(ctx, query, params)
	return err
}

// Delete 删除记录（幂等）
func (b *Neo4jBackend) Delete(ctx context.Context, namespace, key string) error {
	session := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := `MATCH (r:MemoryRecord {namespace: $namespace, key: $key}) DETACH DELETE r`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"namespace": namespace,
		"key":       key,
	})
	return err
}

// Scan 按过滤条件枚举记录
func (b *Neo4jBackend) Scan(ctx context.Context, filter ScanFilter) ([]*Record, error) {
	session := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	var conditions []string
	params := map[string]interface{}{
		"now": b.now().UnixMilli(),
	}

	conditions = append(conditions, "(r.expires_at = 0 OR r.expires_at >= $now)")
	if filter.Namespace != "" {
		conditions = append(conditions, "r.namespace = $namespace")
		params["namespace"] = filter.Namespace
	}
	if filter.OwnerUserID != "" {
		conditions = append(conditions, "r.owner_user_id = $owner")
		params["owner"] = filter.OwnerUserID
	}

	query := "MATCH (r:MemoryRecord) WHERE " + strings.Join(conditions, " AND ") + " RETURN r"
	if filter.Limit > 0 {
		query += " LIMIT $limit"
		params["limit"] = filter.Limit
	}

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	var records []*Record
	for result.Next(ctx) {
		nodeVal, _ := result.Record().Get("r")
		node := nodeVal.(neo4j.Node)
		rec, err := b.nodeToRecord(node)
		if err != nil {
			continue // 跳过无效记录
		}
		records = append(records, rec)
	}

	return records, nil
}

// Close 关闭连接
func (b *Neo4jBackend) Close() error {
	return b.driver.Close(context.Background())
}

// nodeToRecord 将节点转换为记录
func (b *Neo4jBackend) nodeToRecord(node neo4j.Node) (*Record, error) {
	rec := &Record{
		Namespace:   getStringProp(node, "namespace"),
		Key:         getStringProp(node, "key"),
		Value:       getStringProp(node, "value"),
		OwnerUserID: getStringProp(node, "owner_user_id"),
		Tier:        TierLongTerm,
	}

	if createdAt, ok := node.Props["created_at"].(int64); ok {
		rec.CreatedAt = time.UnixMilli(createdAt)
	}
	if expiresAt, ok := node.Props["expires_at"].(int64); ok && expiresAt > 0 {
		rec.ExpiresAt = time.UnixMilli(expiresAt)
	}

	if s := getStringProp(node, "embedding"); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &rec.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
		}
	}
	if s := getStringProp(node, "metadata"); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return rec, nil
}

func getStringProp(node neo4j.Node, key string) string {
	if v, ok := node.Props[key].(string); ok {
		return v
	}
	return ""
}

// Compile-time interface check
var _ TierBackend = (*Neo4jBackend)(nil)
