package example

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HttpServer is a demo backend. It answers /home with its name and reports
// its health both on /heartbeat and over the gRPC health protocol.
type HttpServer struct {
	opts    *Options
	healthy atomic.Bool
	health  *health.Server
}

func CreateHttpServer(opts *Options) *HttpServer {
	h := &HttpServer{
		opts:   opts,
		health: health.NewServer(),
	}
	h.SetHealthy(true)
	return h
}

// SetHealthy switches the answers of both health endpoints.
func (h *HttpServer) SetHealthy(ok bool) {
	h.healthy.Store(ok)
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
}

// Main serves HTTP and, if HealthPort is set, gRPC health until ctx is done.
func (h *HttpServer) Main(ctx context.Context) error {
	logEntry := logrus.WithFields(logrus.Fields{
		"func_name":  "httpServer.Main",
		"ServerName": h.opts.ServerName,
		"HTTPPort":   h.opts.HTTPPort,
		"HealthPort": h.opts.HealthPort,
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", h.opts.HTTPPort),
		Handler: h.Handler(),
	}
	errc := make(chan error, 2)
	go func() {
		logEntry.Infof("start http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var g *grpc.Server
	if h.opts.HealthPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", h.opts.HealthPort))
		if err != nil {
			return err
		}
		g = grpc.NewServer()
		healthpb.RegisterHealthServer(g, h.health)
		go func() {
			logEntry.Infof("start grpc health server")
			if err := g.Serve(lis); err != nil {
				errc <- err
			}
		}()
	}

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
	}
	logEntry.Infof("shutting down")
	if g != nil {
		g.Stop()
	}
	sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)
	return err
}

func (h *HttpServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /heartbeat", h.heartbeatHandler)
	mux.HandleFunc("GET /{path...}", h.homeHandler)
	return mux
}

// HealthServer returns the gRPC health service of the backend.
func (h *HttpServer) HealthServer() healthpb.HealthServer {
	return h.health
}

func (h *HttpServer) heartbeatHandler(w http.ResponseWriter, _ *http.Request) {
	if !h.healthy.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HttpServer) homeHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{
		"message": "Hello from " + h.opts.ServerName,
	}
	if p := r.PathValue("path"); p != "home" {
		body["path"] = "/" + p
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
