package discovery

// etcd layout entries:
//
//	Key:   {prefix}{name}
//	Value: endpoint URL, e.g. "wss://edge-1.example.com/socket"
//
// Entries are published with a TTL lease kept alive by the publisher: if the edge node
// dies the lease expires and the endpoint disappears from the layout.

import (
	"context"
	"fmt"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultEtcdPrefix is the key prefix layout entries live under.
const DefaultEtcdPrefix = "/bunkr/layout/socket/"

// EtcdSource builds a layout from the endpoints stored under a key prefix.
// Endpoints are returned in key order.
type EtcdSource struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	prefix string
}

// NewEtcdSource connects to the given etcd endpoints.
func NewEtcdSource(endpoints []string, prefix string) (*EtcdSource, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &EtcdSource{client: c, prefix: prefix}, nil
}

func (s *EtcdSource) Layout(ctx context.Context) (*Layout, error) {
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("discovery: etcd get %s: %w", s.prefix, err)
	}

	layout := &Layout{Socket: make([]string, 0, len(resp.Kvs))}
	for _, kv := range resp.Kvs {
		endpoint := strings.TrimSpace(string(kv.Value))
		if endpoint == "" {
			continue
		}
		layout.Socket = append(layout.Socket, endpoint)
	}
	if len(layout.Socket) == 0 {
		return nil, ErrEmptyLayout
	}
	return layout, nil
}

// Publish stores an endpoint under name with a TTL lease and keeps the lease alive until
// ctx is done.
func (s *EtcdSource) Publish(ctx context.Context, name, endpoint string, ttl int64) error {
	lease, err := s.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	_, err = s.client.Put(ctx, s.prefix+name, endpoint, clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := s.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain keepalive responses so the channel never fills up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Withdraw removes an endpoint.
func (s *EtcdSource) Withdraw(ctx context.Context, name string) error {
	_, err := s.client.Delete(ctx, s.prefix+name)
	return err
}

// Close releases the etcd connection.
func (s *EtcdSource) Close() error {
	return s.client.Close()
}
