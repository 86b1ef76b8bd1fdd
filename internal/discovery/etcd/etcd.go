package etcd

import (
	"context"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// ServiceDiscovery wraps the etcd client for agent address registration and lookup.
type ServiceDiscovery struct {
	cli    *clientv3.Client // etcd client
	prefix string           // key prefix for agent registrations, e.g. "/minerva/agents/"
}

// NewServiceDiscovery creates a new ServiceDiscovery.
func NewServiceDiscovery(endpoints []string, prefix string) (*ServiceDiscovery, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ServiceDiscovery{cli: cli, prefix: prefix}, nil
}

// Register publishes an agent's address under a leased key and keeps the lease alive.
// The returned channel stops the keep-alive loop when closed.
func (s *ServiceDiscovery) Register(agentID, addr string, ttl int64) (chan<- struct{}, error) {
	leaseResp, err := s.cli.Grant(context.Background(), ttl)
	if err != nil {
		return nil, err
	}

	key := s.prefix + agentID
	_, err = s.cli.Put(context.Background(), key, addr, clientv3.WithLease(leaseResp.ID))
	if err != nil {
		return nil, err
	}

	keepAliveCh, err := s.cli.KeepAlive(context.Background(), leaseResp.ID)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				s.cli.Delete(context.Background(), key)
				return
			case _, ok := <-keepAliveCh:
				if !ok {
					// Lease expired or was revoked; etcd drops the key on its own.
					return
				}
			}
		}
	}()

	return stop, nil
}

// Resolve returns the currently registered agent addresses keyed by agent id.
func (s *ServiceDiscovery) Resolve(ctx context.Context) (map[string]string, error) {
	resp, err := s.cli.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	addrs := make(map[string]string, len(resp.Kvs))
	for _, ev := range resp.Kvs {
		agentID := strings.TrimPrefix(string(ev.Key), s.prefix)
		addrs[agentID] = string(ev.Value)
	}
	return addrs, nil
}

// Close closes the etcd client.
func (s *ServiceDiscovery) Close() error {
	return s.cli.Close()
}
