package grpctp

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
)

// connPool holds up to size client connections to one endpoint. Connections
// are multiplexed, so they are shared rather than checked out; calls are
// spread over them round robin and new ones are created lazily.
type connPool struct {
	endpoint string
	size     int
	dialOpts []grpc.DialOption

	mu    sync.Mutex
	conns []*grpc.ClientConn
	next  atomic.Uint64
}

func newConnPool(endpoint string, size int, dialOpts []grpc.DialOption) *connPool {
	if size <= 0 {
		size = 2
	}
	return &connPool{endpoint: endpoint, size: size, dialOpts: dialOpts}
}

func (p *connPool) get() (*grpc.ClientConn, error) {
	n := p.next.Add(1) - 1
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.size < 0 {
		return nil, ErrClosed
	}
	if len(p.conns) < p.size {
		cc, err := grpc.NewClient(p.endpoint, p.dialOpts...)
		if err != nil {
			return nil, errors.Wrapf(err, "grpctp: connecting to %s", p.endpoint)
		}
		p.conns = append(p.conns, cc)
		return cc, nil
	}
	return p.conns[n%uint64(len(p.conns))], nil
}

func (p *connPool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, cc := range p.conns {
		if err := cc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.conns = nil
	p.size = -1
	return errors.Join(errs...)
}
