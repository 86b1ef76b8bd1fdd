// Package registry 负责 agent 目录的加载、查询以及健康监控。
// 目录在启动时从静态配置加载一次；之后只有健康监控器会修改 Status，
// 可选的 etcd 服务发现会覆盖 agent 的网络地址。
package registry

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"Minerva_2.0/internal/config"
	"Minerva_2.0/internal/discovery/etcd"
	"Minerva_2.0/internal/models"
	"Minerva_2.0/pkg/logger"
)

// 参数 Schema 允许的类型。
var validParamTypes = map[string]bool{
	"string": true,
	"int":    true,
	"float":  true,
	"bool":   true,
	"list":   true,
}

// Registry 持有 agent 描述符表，对外发布不可变快照。
// 状态表遵循单写多读：只有健康检查路径会写 Status。
type Registry struct {
	agents       map[string]*models.AgentDescriptor
	order        []string // 目录的声明顺序，ListAgents 按此排序
	mutex        sync.RWMutex
	probeClient  *http.Client
	probeTimeout time.Duration
	log          *logger.Logger
	sd           *etcd.ServiceDiscovery // 可选，为 nil 时只用静态地址
}

// Load 从静态配置加载 agent 目录。目录格式非法时立即返回错误（快速失败，不可恢复）。
func Load(cfg config.RegistryConfig, log *logger.Logger) (*Registry, error) {
	if len(cfg.Agents) == 0 {
		return nil, fmt.Errorf("agent 目录为空")
	}

	probeTimeout, err := time.ParseDuration(cfg.ProbeTimeout)
	if err != nil {
		return nil, fmt.Errorf("非法的 probeTimeout: %w", err)
	}

	agents := make(map[string]*models.AgentDescriptor, len(cfg.Agents))
	order := make([]string, 0, len(cfg.Agents))
	for i := range cfg.Agents {
		desc := cfg.Agents[i].Clone()
		if desc.ID == "" {
			return nil, fmt.Errorf("目录第 %d 项缺少 agent id", i)
		}
		if desc.Address == "" {
			return nil, fmt.Errorf("agent '%s' 缺少网络地址", desc.ID)
		}
		if _, dup := agents[desc.ID]; dup {
			return nil, fmt.Errorf("目录中存在重复的 agent id '%s'", desc.ID)
		}
		for _, p := range desc.Parameters {
			if p.Name == "" {
				return nil, fmt.Errorf("agent '%s' 存在未命名参数", desc.ID)
			}
			if !validParamTypes[p.Type] {
				return nil, fmt.Errorf("agent '%s' 的参数 '%s' 类型非法: %q", desc.ID, p.Name, p.Type)
			}
		}
		switch desc.Memory {
		case models.MemoryStrategyExact, models.MemoryStrategySemantic, models.MemoryStrategyNone:
		case "":
			desc.Memory = models.MemoryStrategyExact
		default:
			return nil, fmt.Errorf("agent '%s' 的记忆策略非法: %q", desc.ID, desc.Memory)
		}
		desc.Status = models.AgentStatusUnknown
		agents[desc.ID] = &desc
		order = append(order, desc.ID)
	}

	log.WithPayload(map[string]interface{}{"agents": len(agents)}).Info("agent 目录加载完成")
	return &Registry{
		agents:       agents,
		order:        order,
		probeClient:  &http.Client{Timeout: probeTimeout},
		probeTimeout: probeTimeout,
		log:          log,
	}, nil
}

// WithDiscovery 挂载 etcd 服务发现，此后监控循环会用注册的地址覆盖静态地址。
func (r *Registry) WithDiscovery(sd *etcd.ServiceDiscovery) *Registry {
	r.sd = sd
	return r
}

// ListAgents 返回目录的不可变快照，按声明顺序排列。
func (r *Registry) ListAgents() []models.AgentDescriptor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]models.AgentDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id].Clone())
	}
	return out
}

// GetAgent 按 id 返回描述符快照；不存在时返回 AGENT_NOT_FOUND。
func (r *Registry) GetAgent(id string) (models.AgentDescriptor, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	desc, ok := r.agents[id]
	if !ok {
		return models.AgentDescriptor{}, models.NewSupervisorError(
			models.CodeAgentNotFound, fmt.Sprintf("agent %q is not registered", id), nil)
	}
	return desc.Clone(), nil
}

// StatusCounts 返回各健康状态下的 agent 数量，供统计接口使用。
func (r *Registry) StatusCounts() map[models.AgentStatus]int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	counts := make(map[models.AgentStatus]int)
	for _, desc := range r.agents {
		counts[desc.Status]++
	}
	return counts
}

// sortedIDs 返回排序后的 agent id 列表，监控循环按固定顺序巡检。
func (r *Registry) sortedIDs() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
