package healthcheck

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type healthClient struct {
	cc     *grpc.ClientConn
	hc     healthpb.HealthClient
	target string
}

func newHealthClient(target string, opts ...grpc.DialOption) (*healthClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &healthClient{
		cc:     conn,
		hc:     healthpb.NewHealthClient(conn),
		target: target,
	}, nil
}

// GRPCProber checks backends with the standard gRPC health checking
// protocol. A backend is healthy only when it reports SERVING.
type GRPCProber struct {
	// Port replaces the port of the backend address when dialing. The
	// address port is used if Port is zero.
	Port int
	// Service is the service name sent in the health check request.
	Service     string
	DialOptions []grpc.DialOption

	clients sync.Map // addr: *healthClient
	mu      sync.Mutex
}

func NewGRPCProber(port int) *GRPCProber {
	return &GRPCProber{Port: port}
}

func (p *GRPCProber) Probe(ctx context.Context, addr string) error {
	logEntry := logrus.WithFields(logrus.Fields{
		"func_name": "GRPCProber.Probe",
		"addr":      addr,
	})
	c, err := p.client(addr)
	if err != nil {
		return &ProbeError{Addr: addr, Err: err}
	}
	resp, err := c.hc.Check(ctx, &healthpb.HealthCheckRequest{Service: p.Service})
	if err != nil {
		return &ProbeError{Addr: addr, Err: err}
	}
	logEntry.Debugf("target:[%s] status:[%s]", c.target, resp.GetStatus())
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return &ProbeError{Addr: addr, Err: fmt.Errorf("status %s", resp.GetStatus())}
	}
	return nil
}

func (p *GRPCProber) client(addr string) (*healthClient, error) {
	if v, ok := p.clients.Load(addr); ok {
		return v.(*healthClient), nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.clients.Load(addr); ok {
		return v.(*healthClient), nil
	}
	target, err := p.target(addr)
	if err != nil {
		return nil, err
	}
	c, err := newHealthClient(target, p.DialOptions...)
	if err != nil {
		return nil, err
	}
	p.clients.Store(addr, c)
	return c, nil
}

// target turns a backend base URL into a host:port dial target.
func (p *GRPCProber) target(addr string) (string, error) {
	hostport := addr
	if u, err := url.Parse(addr); err == nil && u.Host != "" {
		hostport = u.Host
	}
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		if p.Port == 0 {
			return "", fmt.Errorf("no port in %q: %w", addr, err)
		}
		host = hostport
	}
	if p.Port != 0 {
		port = strconv.Itoa(p.Port)
	}
	return net.JoinHostPort(host, port), nil
}

// Prune closes the connections of backends not listed in addrs.
func (p *GRPCProber) Prune(addrs []string) {
	logEntry := logrus.WithFields(logrus.Fields{
		"func_name": "GRPCProber.Prune",
	})
	sorted := append([]string(nil), addrs...)
	sort.Strings(sorted)
	p.clients.Range(func(key, value interface{}) bool {
		oldaddr := key.(string)
		i := sort.SearchStrings(sorted, oldaddr)
		if i >= len(sorted) || sorted[i] != oldaddr {
			p.clients.Delete(oldaddr)
			if err := value.(*healthClient).cc.Close(); err != nil {
				logEntry.Errorf("close %s: %v", oldaddr, err)
			}
		}
		return true
	})
}

// Close releases every cached connection.
func (p *GRPCProber) Close() error {
	p.Prune(nil)
	return nil
}
