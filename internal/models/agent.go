package models

// AgentStatus 表示注册表中某个 worker agent 的健康状态。
type AgentStatus string

const (
	AgentStatusHealthy   AgentStatus = "HEALTHY"   // 最近一次健康检查成功
	AgentStatusUnhealthy AgentStatus = "UNHEALTHY" // 最近一次健康检查失败
	AgentStatusUnknown   AgentStatus = "UNKNOWN"   // 启动后尚未检查过
)

// MemoryStrategy 表示某个 agent 的 LTM 缓存查找策略。
type MemoryStrategy string

const (
	MemoryStrategyExact    MemoryStrategy = "exact"    // 按内容指纹精确匹配
	MemoryStrategySemantic MemoryStrategy = "semantic" // 按向量相似度匹配
	MemoryStrategyNone     MemoryStrategy = "none"     // 不做缓存
)

// ParameterSpec 描述了 agent 所需的一个参数：名称、类型以及是否必填。
// Type 的取值为 "string"、"int"、"float"、"bool" 或 "list"。
type ParameterSpec struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required" yaml:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// AgentDescriptor 包含了描述一个 worker agent 所需的所有信息。
// 描述符由注册表在启动时从静态目录加载；Status 字段只能由健康监控器修改。
type AgentDescriptor struct {
	ID           string          `json:"id" yaml:"id"`                     // Agent 的唯一标识符
	Name         string          `json:"name" yaml:"name"`                 // 便于阅读的名称
	Description  string          `json:"description" yaml:"description"`   // 对 Agent 能力的总体描述
	Address      string          `json:"address" yaml:"address"`           // Agent 服务的基础 URL (例如: "http://localhost:9001")
	Capabilities []string        `json:"capabilities" yaml:"capabilities"` // 能力标签，关键词兜底路由使用
	Keywords     []string        `json:"keywords" yaml:"keywords"`         // 提示词中列出的匹配关键词
	Parameters   []ParameterSpec `json:"parameters" yaml:"parameters"`     // 有序的参数 Schema
	Memory       MemoryStrategy  `json:"memory" yaml:"memory"`             // LTM 查找策略，默认为 "exact"
	Status       AgentStatus     `json:"status" yaml:"-"`                  // 当前健康状态
}

// RequiredParameters 返回 Schema 中所有必填参数的名称，保持声明顺序。
func (d *AgentDescriptor) RequiredParameters() []string {
	var names []string
	for _, p := range d.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// Clone 返回描述符的一个深拷贝，供注册表对外发布不可变快照使用。
func (d *AgentDescriptor) Clone() AgentDescriptor {
	out := *d
	out.Capabilities = append([]string(nil), d.Capabilities...)
	out.Keywords = append([]string(nil), d.Keywords...)
	out.Parameters = append([]ParameterSpec(nil), d.Parameters...)
	return out
}
