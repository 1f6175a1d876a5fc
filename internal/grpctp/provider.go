package grpctp

import (
	"context"
	"sync"
)

// EndpointProvider lists reachable endpoints (host:port) for a fully
// qualified service name such as "shop.Books". Implementations must be safe
// for concurrent use.
type EndpointProvider interface {
	Endpoints(ctx context.Context, service string) ([]string, error)
}

// ProviderFunc adapts a function to EndpointProvider.
type ProviderFunc func(ctx context.Context, service string) ([]string, error)

func (f ProviderFunc) Endpoints(ctx context.Context, service string) ([]string, error) {
	return f(ctx, service)
}

// StaticEndpoints is a provider backed by an in-memory map from service name
// to endpoints.
type StaticEndpoints struct {
	mu   sync.RWMutex
	data map[string][]string
}

func NewStaticEndpoints(m map[string][]string) *StaticEndpoints {
	s := &StaticEndpoints{data: make(map[string][]string, len(m))}
	for k, v := range m {
		s.Set(k, v...)
	}
	return s
}

// Set replaces the endpoints of service.
func (s *StaticEndpoints) Set(service string, endpoints ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[service] = append([]string(nil), endpoints...)
}

func (s *StaticEndpoints) Endpoints(_ context.Context, service string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.data[service]
	if len(arr) == 0 {
		return nil, ErrNoEndpoints
	}
	return append([]string(nil), arr...), nil
}
