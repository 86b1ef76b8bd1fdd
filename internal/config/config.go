package config

import (
	"fmt"
	"os"

	"Minerva_2.0/internal/models"
	"gopkg.in/yaml.v3"
)

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// ServerConfig 定义了 HTTP 服务的监听配置。
type ServerConfig struct {
	Address string `yaml:"address"` // 监听地址 (例如: ":8080")
}

// RegistryConfig 定义了 agent 注册表的静态目录和健康检查参数。
type RegistryConfig struct {
	Agents          []models.AgentDescriptor `yaml:"agents"`          // 静态 agent 目录，启动时加载一次
	HealthInterval  string                   `yaml:"healthInterval"`  // 后台健康检查周期 (例如: "15s")
	ProbeTimeout    string                   `yaml:"probeTimeout"`    // 单次健康探测的超时 (例如: "2s")
}

// OrchestratorConfig 定义了会话编排器的行为参数。
type OrchestratorConfig struct {
	HistoryLimit       int     `yaml:"historyLimit"`       // 会话历史保留的最大轮数
	DispatchThreshold  float64 `yaml:"dispatchThreshold"`  // 置信度达到该值即可进入派发流程
	ClarifyThreshold   float64 `yaml:"clarifyThreshold"`   // 置信度低于该值时总是要求澄清
	ModelTimeout       string  `yaml:"modelTimeout"`       // 单次模型调用的超时 (例如: "20s")
}

// DispatcherConfig 定义了任务派发器的行为参数。
type DispatcherConfig struct {
	SenderID      string `yaml:"senderID"`      // 填入 TaskEnvelope 的发送方标识
	WorkerTimeout string `yaml:"workerTimeout"` // 单次 worker 调用的超时 (例如: "15s")
}

// GeminiConfig 包含了 Gemini 模型的配置。
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"` // Gemini API 密钥
	Model  string `yaml:"model"`  // Gemini 模型名称
}

// OpenAIConfig 包含了 OpenAI 兼容服务的配置。
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`  // API 密钥
	Model   string `yaml:"model"`   // 模型名称
	BaseURL string `yaml:"baseURL"` // 服务基础 URL (可选，兼容自建服务)
}

// OllamaConfig 包含了 Ollama 本地模型服务的配置。
type OllamaConfig struct {
	Model   string `yaml:"model"`   // 模型名称
	BaseURL string `yaml:"baseURL"` // Ollama 服务地址 (默认: "http://localhost:11434")
}

// LLMConfig 包含了不同LLM提供商的配置。
type LLMConfig struct {
	Provider string       `yaml:"provider"` // LLM提供商 (例如: "gemini", "openai", "ollama")
	Gemini   GeminiConfig `yaml:"gemini"`   // Gemini 模型配置
	OpenAI   OpenAIConfig `yaml:"openai"`   // OpenAI 模型配置
	Ollama   OllamaConfig `yaml:"ollama"`   // Ollama 模型配置
}

// EmbeddingConfig 包含了不同Embedding提供商的配置。
type EmbeddingConfig struct {
	Provider string       `yaml:"provider"` // Embedding提供商 (例如: "gemini", "openai", "ollama")
	Gemini   GeminiConfig `yaml:"gemini"`   // Gemini 模型配置
	OpenAI   OpenAIConfig `yaml:"openai"`   // OpenAI 模型配置
	Ollama   OllamaConfig `yaml:"ollama"`   // Ollama 模型配置
}

// STMConfig 定义了短期记忆的容量参数。
type STMConfig struct {
	Capacity int `yaml:"capacity"` // 每个 agent 的环形缓冲区容量
}

// ExactStoreConfig 定义了 LTM 精确匹配存储的驱动。
type ExactStoreConfig struct {
	Driver string `yaml:"driver"` // "redis" 或 "memory"
}

// SemanticStoreConfig 定义了 LTM 语义匹配存储的驱动和阈值。
type SemanticStoreConfig struct {
	Driver      string  `yaml:"driver"`      // "milvus" 或 "memory"
	MaxDistance float64 `yaml:"maxDistance"` // 命中允许的最大余弦距离 (经验值约 0.3)
	TopK        int     `yaml:"topK"`        // 最近邻搜索返回的候选数量
}

// MemoryConfig 汇总了 STM 和 LTM 两级记忆的配置。
type MemoryConfig struct {
	STM      STMConfig           `yaml:"stm"`
	Exact    ExactStoreConfig    `yaml:"exact"`
	Semantic SemanticStoreConfig `yaml:"semantic"`
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MilvusConfig 定义了 Milvus 向量库的连接和集合配置。
type MilvusConfig struct {
	Address    string `yaml:"address"`    // Milvus 服务地址
	Collection string `yaml:"collection"` // LTM 向量集合名称
	Dim        int    `yaml:"dim"`        // 向量维度，必须与 embedding 模型一致
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Enabled    bool   `yaml:"enabled"`    // 是否启用任务记录持久化
	Address    string `yaml:"address"`    // MongoDB 连接 URI
	Username   string `yaml:"username"`   // 用户名
	Password   string `yaml:"password"`   // 密码
	Database   string `yaml:"database"`   // 数据库名称
	Collection string `yaml:"collection"` // 任务记录集合名称
}

// KafkaConfig 定义了完成事件发布的 Kafka 配置。
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"` // 是否发布完成事件
	Brokers []string `yaml:"brokers"` // Kafka broker 地址列表
	Topic   string   `yaml:"topic"`   // 完成事件主题
}

// EtcdConfig 定义了 Etcd 服务发现的连接配置。
type EtcdConfig struct {
	Enabled   bool     `yaml:"enabled"`   // 是否启用动态地址发现
	Endpoints []string `yaml:"endpoints"` // Etcd 节点地址列表
	Prefix    string   `yaml:"prefix"`    // agent 注册键前缀 (例如: "/minerva/agents/")
}

// DatabaseConfigs 包含所有外部存储的配置。
type DatabaseConfigs struct {
	Redis   RedisConfig  `yaml:"redis"`   // Redis 配置 (LTM 精确匹配存储)
	Milvus  MilvusConfig `yaml:"milvus"`  // Milvus 配置 (LTM 语义存储)
	MongoDB MongoConfig  `yaml:"mongodb"` // MongoDB 配置 (任务记录)
	Kafka   KafkaConfig  `yaml:"kafka"`   // Kafka 配置 (完成事件)
	Etcd    EtcdConfig   `yaml:"etcd"`    // Etcd 配置 (服务发现)
}

// TokenBucketConfig 定义了令牌桶算法的配置。
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// RateLimiterConfig 定义了限流器的配置。
type RateLimiterConfig struct {
	Enabled     bool              `yaml:"enabled"`
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App          AppInfo            `yaml:"app"`          // 应用程序信息
	Logger       LoggerConfig       `yaml:"logger"`       // 日志记录器配置
	Server       ServerConfig       `yaml:"server"`       // HTTP 服务配置
	Registry     RegistryConfig     `yaml:"registry"`     // agent 注册表配置
	Orchestrator OrchestratorConfig `yaml:"orchestrator"` // 编排器配置
	Dispatcher   DispatcherConfig   `yaml:"dispatcher"`   // 派发器配置
	LLM          LLMConfig          `yaml:"llm"`          // LLM 配置部分
	Embedding    EmbeddingConfig    `yaml:"embedding"`    // Embedding 配置部分
	Memory       MemoryConfig       `yaml:"memory"`       // 两级记忆配置
	Databases    DatabaseConfigs    `yaml:"databases"`    // 外部存储配置
	Middleware   MiddlewareConfig   `yaml:"middleware"`   // 中间件配置
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析后的应用程序配置结构体。
//	error: 如果文件读取或解析失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	// 读取 YAML 文件内容。
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig // 声明一个AppConfig变量用于存储解析后的配置。
	// 将 YAML 内容解析到 cfg 结构体中。
	err = yaml.Unmarshal(yamlFile, &cfg)
	if err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil // 返回解析后的配置和nil错误。
}

// applyDefaults 为未显式配置的字段填充缺省值。
func (c *AppConfig) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Registry.HealthInterval == "" {
		c.Registry.HealthInterval = "15s"
	}
	if c.Registry.ProbeTimeout == "" {
		c.Registry.ProbeTimeout = "2s"
	}
	if c.Orchestrator.HistoryLimit == 0 {
		c.Orchestrator.HistoryLimit = 10
	}
	if c.Orchestrator.DispatchThreshold == 0 {
		c.Orchestrator.DispatchThreshold = 0.70
	}
	if c.Orchestrator.ClarifyThreshold == 0 {
		c.Orchestrator.ClarifyThreshold = 0.50
	}
	if c.Orchestrator.ModelTimeout == "" {
		c.Orchestrator.ModelTimeout = "20s"
	}
	if c.Dispatcher.SenderID == "" {
		c.Dispatcher.SenderID = "supervisor_main"
	}
	if c.Dispatcher.WorkerTimeout == "" {
		c.Dispatcher.WorkerTimeout = "15s"
	}
	if c.Memory.STM.Capacity == 0 {
		c.Memory.STM.Capacity = 10
	}
	if c.Memory.Exact.Driver == "" {
		c.Memory.Exact.Driver = "memory"
	}
	if c.Memory.Semantic.Driver == "" {
		c.Memory.Semantic.Driver = "memory"
	}
	if c.Memory.Semantic.MaxDistance == 0 {
		c.Memory.Semantic.MaxDistance = 0.3
	}
	if c.Memory.Semantic.TopK == 0 {
		c.Memory.Semantic.TopK = 5
	}
	if c.Databases.Etcd.Prefix == "" {
		c.Databases.Etcd.Prefix = "/minerva/agents/"
	}
}
