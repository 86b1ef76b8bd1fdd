// Package llm 封装各家大模型的文本补全客户端。
// 调度模型每轮对话只做一次单 prompt 补全，不使用工具调用，也不使用流式输出。
package llm

import (
	"context"
	"fmt"

	"Minerva_2.0/internal/config"
)

// Client 定义了所有大型语言模型客户端必须实现的通用接口。
type Client interface {
	// Complete 发送单个 prompt 并返回模型的完整文本输出。
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewClient 是一个工厂函数，根据提供的配置创建并返回一个实现了 Client 接口的客户端。
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(ctx, cfg.Gemini.Model, cfg.Gemini.APIKey)
	case "openai":
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "ollama":
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
