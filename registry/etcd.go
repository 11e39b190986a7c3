package registry

import (
	"context"
	"encoding/json"
	"log/slog"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/simrpc/"

// EtcdRegistry implements Registry on etcd v3.
//
// Layout:
//
//	Key:   /simrpc/<serviceName>/<addr>
//	Value: JSON-encoded Instance
//
// Announcements are tied to TTL leases so a crashed server disappears on
// its own once its lease stops being renewed.
type EtcdRegistry struct {
	client *clientv3.Client
	logger *slog.Logger
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, logger: slog.Default()}, nil
}

// Close releases the underlying etcd client.
func (r *EtcdRegistry) Close() error { return r.client.Close() }

func key(serviceName, addr string) string {
	return keyPrefix + serviceName + "/" + addr
}

// Register announces the instance under a TTL lease and keeps renewing the
// lease in the background. The lease ID stays local to this call so one
// EtcdRegistry can safely announce for several servers concurrently.
func (r *EtcdRegistry) Register(ctx context.Context, serviceName string, inst Instance, ttlSeconds int64) error {
	lease, err := r.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return err
	}

	val, err := json.Marshal(inst)
	if err != nil {
		return err
	}

	if _, err := r.client.Put(ctx, key(serviceName, inst.Addr), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// KeepAlive renews the lease until the client closes. Responses must
	// be drained or the renewal channel stalls.
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
		r.logger.Debug("lease renewal stopped", "service", serviceName, "addr", inst.Addr)
	}()
	return nil
}

// Deregister removes the announcement immediately.
func (r *EtcdRegistry) Deregister(ctx context.Context, serviceName, addr string) error {
	_, err := r.client.Delete(ctx, key(serviceName, addr))
	return err
}

// Discover lists all instances announced under serviceName.
func (r *EtcdRegistry) Discover(ctx context.Context, serviceName string) ([]Instance, error) {
	resp, err := r.client.Get(ctx, keyPrefix+serviceName+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			r.logger.Warn("skipping malformed instance", "key", string(kv.Key), "err", err)
			continue
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Watch re-lists the instances on every change under the service prefix.
// Re-listing is simpler than folding individual watch events and discovery
// traffic is low.
func (r *EtcdRegistry) Watch(ctx context.Context, serviceName string) <-chan []Instance {
	out := make(chan []Instance, 1)
	go func() {
		defer close(out)
		watchCh := r.client.Watch(ctx, keyPrefix+serviceName+"/", clientv3.WithPrefix())
		for range watchCh {
			instances, err := r.Discover(ctx, serviceName)
			if err != nil {
				r.logger.Warn("discover after watch event failed", "service", serviceName, "err", err)
				continue
			}
			select {
			case out <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
