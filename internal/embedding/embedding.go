// Package embedding 封装各家厂商的文本嵌入模型客户端，
// 语义记忆检索用它把任务请求转换为向量。
package embedding

import (
	"fmt"

	"Minerva_2.0/internal/config"
)

// NewEmdModel 根据配置创建并返回一个新的 Embedding 模型实例。
//
// 返回值:
//
//	Embedding: 新创建的 Embedding 模型实例。
//	error: 如果提供商不支持或模型初始化失败，则返回错误。
func NewEmdModel(cfg config.EmbeddingConfig) (Embedding, error) {
	// 根据提供商类型创建相应的 Embedding 模型实例。
	switch cfg.Provider {
	case "gemini":
		return NewGoogleModel(cfg.Gemini.APIKey, cfg.Gemini.Model)
	case "openai":
		return NewOpenAIModel(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	case "ollama":
		return NewOllamaModel(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
