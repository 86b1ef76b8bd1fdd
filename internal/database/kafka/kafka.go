package kafka

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"Minerva_2.0/internal/config"
)

// KafkaClient 持有任务完成事件流的 Kafka writer 单例。
type KafkaClient struct {
	Writer *kafka.Writer
	Config *config.KafkaConfig
}

var (
	client  *KafkaClient
	once    sync.Once
	initErr error
)

// GetClient 使用单例模式初始化并返回一个 KafkaClient 实例。
// 首次调用时，它会连接到 Kafka 并在事件主题不存在时自动创建。
func GetClient(cfg *config.KafkaConfig) (*KafkaClient, error) {
	once.Do(func() {
		if len(cfg.Brokers) == 0 {
			initErr = fmt.Errorf("未配置 Kafka brokers")
			return
		}
		if cfg.Topic == "" {
			initErr = fmt.Errorf("未配置 Kafka topic")
			return
		}

		// 1. 建立管理连接
		conn, err := kafka.Dial("tcp", cfg.Brokers[0])
		if err != nil {
			initErr = fmt.Errorf("kafka 初始化连接失败: %w", err)
			return
		}
		defer conn.Close()

		// 2. 主题不存在时自动创建
		partitions, err := conn.ReadPartitions()
		if err != nil {
			initErr = fmt.Errorf("无法读取 Kafka 分区信息: %w", err)
			return
		}
		exists := false
		for _, p := range partitions {
			if p.Topic == cfg.Topic {
				exists = true
				break
			}
		}
		if !exists {
			log.Printf("主题 '%s' 不存在，准备创建...", cfg.Topic)
			err = conn.CreateTopics(kafka.TopicConfig{
				Topic:             cfg.Topic,
				NumPartitions:     1,
				ReplicationFactor: 1,
			})
			if err != nil {
				initErr = fmt.Errorf("自动创建 Kafka 主题失败: %w", err)
				return
			}
		}

		// 3. 创建 writer
		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
		}

		log.Println("✅ 成功连接到 Kafka!")
		client = &KafkaClient{Writer: writer, Config: cfg}
	})

	return client, initErr
}

// Publish 向事件主题写入一条消息，key 用于分区路由。
func (k *KafkaClient) Publish(ctx context.Context, key, value []byte) error {
	return k.Writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

// Close 安全地关闭单例的 Kafka writer。
func Close() error {
	if client != nil && client.Writer != nil {
		return client.Writer.Close()
	}
	return nil
}
