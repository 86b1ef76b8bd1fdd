// Package milvus 封装长期记忆语义库使用的 Milvus 客户端。
// 集合为固定 Schema：fingerprint 主键、embedding 向量、任务输入输出文本与写入时间。
package milvus

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"Minerva_2.0/internal/config"
)

// 集合字段名。
const (
	FieldFingerprint = "fingerprint"
	FieldEmbedding   = "embedding"
	FieldInput       = "input"
	FieldOutput      = "output"
	FieldCreatedAt   = "created_at"
)

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// MilvusClient 包含了 Milvus 客户端实例和相关配置。
type MilvusClient struct {
	Client client.Client        // Milvus 客户端实例。
	Config *config.MilvusConfig // Milvus 配置。
}

// GetClient 使用单例模式创建并返回一个 Milvus 客户端实例。
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("无法连接到 Milvus: %w", err)
			return
		}
		log.Println("✅ 成功连接到 Milvus!")
		instance = &MilvusClient{Client: c, Config: cfg}
	})
	return instance, initErr
}

// Close 安全地关闭与 Milvus 的连接。
func (c *MilvusClient) Close() {
	if c.Client != nil {
		c.Client.Close()
		log.Println("ℹ️ 已安全关闭 Milvus 连接。")
	}
}

// HealthCheck 检查 Milvus 连接的健康状况。
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("Milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("Milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollection 确保记忆集合存在；不存在时按固定 Schema 创建并建立 COSINE 索引。
func (c *MilvusClient) EnsureCollection(ctx context.Context) error {
	collName := c.Config.Collection

	has, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("检查集合 '%s' 是否存在失败: %w", collName, err)
	}
	if has {
		return nil
	}

	schema := entity.NewSchema().
		WithName(collName).
		WithDescription("agent long-term memory entries").
		WithField(entity.NewField().
			WithName(FieldFingerprint).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(64).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName(FieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(c.Config.Dim))).
		WithField(entity.NewField().
			WithName(FieldInput).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(16384)).
		WithField(entity.NewField().
			WithName(FieldOutput).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(65535)).
		WithField(entity.NewField().
			WithName(FieldCreatedAt).
			WithDataType(entity.FieldTypeInt64))

	if err := c.Client.CreateCollection(ctx, schema, 1); err != nil {
		return fmt.Errorf("创建集合 '%s' 失败: %w", collName, err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 128)
	if err != nil {
		return fmt.Errorf("构建索引参数失败: %w", err)
	}
	if err := c.Client.CreateIndex(ctx, collName, FieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("为集合 '%s' 创建索引失败: %w", collName, err)
	}

	log.Printf("✅ 集合 '%s' 创建完成 (dim=%d)", collName, c.Config.Dim)
	return nil
}

// Upsert 按 fingerprint 写入或覆盖一条记忆。重复写入同一指纹是幂等的。
func (c *MilvusClient) Upsert(ctx context.Context, fingerprint string, vector []float32, input, output string, createdAt int64) error {
	collName := c.Config.Collection

	fpCol := entity.NewColumnVarChar(FieldFingerprint, []string{fingerprint})
	vecCol := entity.NewColumnFloatVector(FieldEmbedding, c.Config.Dim, [][]float32{vector})
	inCol := entity.NewColumnVarChar(FieldInput, []string{input})
	outCol := entity.NewColumnVarChar(FieldOutput, []string{output})
	tsCol := entity.NewColumnInt64(FieldCreatedAt, []int64{createdAt})

	if _, err := c.Client.Upsert(ctx, collName, "", fpCol, vecCol, inCol, outCol, tsCol); err != nil {
		return fmt.Errorf("写入 Milvus 记忆失败: %w", err)
	}
	return nil
}

// Search 执行向量相似度搜索，返回最多 topK 条结果。
// 输出字段包含 output 与 created_at，调用方根据距离阈值自行过滤。
func (c *MilvusClient) Search(ctx context.Context, topK int, vector []float32) ([]client.SearchResult, error) {
	collName := c.Config.Collection

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return nil, fmt.Errorf("加载集合 '%s' 失败: %w", collName, err)
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(10)
	searchVectors := []entity.Vector{entity.FloatVector(vector)}

	results, err := c.Client.Search(
		ctx,
		collName,
		nil,
		"",
		[]string{FieldOutput, FieldCreatedAt},
		searchVectors,
		FieldEmbedding,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("Milvus 搜索失败: %w", err)
	}
	return results, nil
}
