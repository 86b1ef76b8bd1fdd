package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"Minerva_2.0/internal/models"
)

// CheckHealth 对单个 agent 发起一次探测：GET {address}/health，
// 任何失败（连接拒绝、超时、非 2xx）都判定为 UNHEALTHY。
// 探测结果写回状态表，状态发生迁移时记录日志。
func (r *Registry) CheckHealth(ctx context.Context, id string) models.AgentStatus {
	r.mutex.RLock()
	desc, ok := r.agents[id]
	if !ok {
		r.mutex.RUnlock()
		return models.AgentStatusUnknown
	}
	addr := desc.Address
	r.mutex.RUnlock()

	status := r.probe(ctx, addr)
	r.setStatus(id, status)
	return status
}

func (r *Registry) probe(ctx context.Context, addr string) models.AgentStatus {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	url := strings.TrimRight(addr, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.AgentStatusUnhealthy
	}
	resp, err := r.probeClient.Do(req)
	if err != nil {
		return models.AgentStatusUnhealthy
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.AgentStatusUnhealthy
	}
	return models.AgentStatusHealthy
}

func (r *Registry) setStatus(id string, status models.AgentStatus) {
	r.mutex.Lock()
	desc, ok := r.agents[id]
	if !ok {
		r.mutex.Unlock()
		return
	}
	prev := desc.Status
	desc.Status = status
	r.mutex.Unlock()

	if prev != status {
		r.log.WithAgent(id).WithPayload(map[string]interface{}{
			"from": string(prev),
			"to":   string(status),
		}).Info("agent 健康状态迁移")
	}
}

// EnsureHealthy 是派发前的守门检查：最近一次已知状态为 HEALTHY 则直接放行；
// 否则同步补做一次探测，仍不健康时返回 AGENT_UNAVAILABLE。
func (r *Registry) EnsureHealthy(ctx context.Context, id string) error {
	r.mutex.RLock()
	desc, ok := r.agents[id]
	if !ok {
		r.mutex.RUnlock()
		return models.NewSupervisorError(
			models.CodeAgentNotFound, fmt.Sprintf("agent %q is not registered", id), nil)
	}
	status := desc.Status
	r.mutex.RUnlock()

	if status == models.AgentStatusHealthy {
		return nil
	}
	if r.CheckHealth(ctx, id) == models.AgentStatusHealthy {
		return nil
	}
	return models.NewSupervisorError(
		models.CodeAgentUnavailable, fmt.Sprintf("agent %q is unavailable", id), nil)
}

// StartMonitor 启动后台监控循环，按 interval 周期巡检全部 agent。
// ctx 取消后循环退出。启用服务发现时每轮先刷新动态地址。
func (r *Registry) StartMonitor(ctx context.Context, interval time.Duration) {
	go func() {
		// 启动时先做一轮，让状态表尽快脱离 UNKNOWN。
		r.sweep(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
}

func (r *Registry) sweep(ctx context.Context) {
	if r.sd != nil {
		r.refreshAddresses(ctx)
	}
	for _, id := range r.sortedIDs() {
		if ctx.Err() != nil {
			return
		}
		r.CheckHealth(ctx, id)
	}
}

// refreshAddresses 用 etcd 中注册的地址覆盖静态目录地址。
// etcd 查询失败只记日志，保留上一次的地址。
func (r *Registry) refreshAddresses(ctx context.Context) {
	resolved, err := r.sd.Resolve(ctx)
	if err != nil {
		r.log.WithError(err).Warn("刷新 etcd 服务地址失败")
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for id, addr := range resolved {
		if desc, ok := r.agents[id]; ok && addr != "" && desc.Address != addr {
			desc.Address = addr
			r.log.WithAgent(id).WithPayload(map[string]interface{}{
				"address": addr,
			}).Info("agent 地址已由服务发现更新")
		}
	}
}
