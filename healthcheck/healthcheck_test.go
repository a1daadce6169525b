package healthcheck

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/heartbeat":
			w.WriteHeader(http.StatusOK)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	p := NewHTTPProber()
	require.NoError(t, p.Probe(context.Background(), srv.URL))
	require.NoError(t, p.Probe(context.Background(), srv.URL+"/"))

	for _, test := range []struct {
		name string
		path string
		addr string
	}{
		{name: "status", path: "/broken", addr: srv.URL},
		{name: "timeout", path: "/slow", addr: srv.URL},
		{name: "refused", path: DefaultPath, addr: "http://127.0.0.1:1"},
	} {
		t.Run(test.name, func(t *testing.T) {
			p := &HTTPProber{Client: &http.Client{}, Path: test.path}
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			err := p.Probe(ctx, test.addr)
			var perr *ProbeError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, test.addr, perr.Addr)
		})
	}
}

func startHealthServer(t *testing.T) (*health.Server, int) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	hs := health.NewServer()
	g := grpc.NewServer()
	healthpb.RegisterHealthServer(g, hs)
	go g.Serve(lis)
	t.Cleanup(g.Stop)
	return hs, lis.Addr().(*net.TCPAddr).Port
}

func TestGRPCProber(t *testing.T) {
	hs, port := startHealthServer(t)
	p := NewGRPCProber(port)
	defer p.Close()

	// The address port is the HTTP one; the prober dials the gRPC port.
	addr := "http://127.0.0.1:5000"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	require.NoError(t, p.Probe(ctx, addr))

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	var perr *ProbeError
	require.ErrorAs(t, p.Probe(ctx, addr), &perr)

	_, ok := p.clients.Load(addr)
	assert.True(t, ok)
	p.Prune([]string{"http://other:5000"})
	_, ok = p.clients.Load(addr)
	assert.False(t, ok)
}

func TestGRPCProberUnreachable(t *testing.T) {
	p := &GRPCProber{}
	defer p.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Probe(ctx, "http://127.0.0.1:1"))
}

func TestGRPCProberTarget(t *testing.T) {
	for _, test := range []struct {
		port int
		addr string
		exp  string
	}{
		{0, "http://server1:5000", "server1:5000"},
		{50051, "http://server1:5000", "server1:50051"},
		{50051, "server2", "server2:50051"},
		{0, "127.0.0.1:7000", "127.0.0.1:7000"},
	} {
		t.Run(fmt.Sprintf("%d-%s", test.port, test.addr), func(t *testing.T) {
			p := &GRPCProber{Port: test.port}
			act, err := p.target(test.addr)
			require.NoError(t, err)
			assert.Equal(t, test.exp, act)
		})
	}
	_, err := (&GRPCProber{}).target("server2")
	assert.Error(t, err)
}
