package frontend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"kelub/hashlb/balancer"
)

// RoutingKeyHeader carries an optional routing key. Requests with the same
// key go to the same backend while the ring is unchanged.
const RoutingKeyHeader = "X-Routing-Key"

type instancesRequest struct {
	Instances []string `json:"instances"`
}

type HttpServer struct {
	router   *balancer.Router
	registry *balancer.Registry
	srv      *http.Server
}

func CreateHttpServer(router *balancer.Router, registry *balancer.Registry) *HttpServer {
	return &HttpServer{
		router:   router,
		registry: registry,
	}
}

// Main serves on addr until ctx is done.
func (h *HttpServer) Main(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return h.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done and then shuts down gracefully.
func (h *HttpServer) Serve(ctx context.Context, lis net.Listener) error {
	logEntry := logrus.WithFields(logrus.Fields{
		"func_name": "httpServer.Serve",
		"addr":      lis.Addr().String(),
	})
	h.srv = &http.Server{Handler: h.Handler()}
	errc := make(chan error, 1)
	go func() {
		logEntry.Infof("start http load balancer on %s", lis.Addr())
		errc <- h.srv.Serve(lis)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logEntry.Infof("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *HttpServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.rootHandler)
	mux.HandleFunc("GET /heartbeat", h.heartbeatHandler)
	mux.HandleFunc("GET /rep", h.replicasHandler)
	mux.HandleFunc("POST /add", h.addHandler)
	mux.HandleFunc("DELETE /rm", h.removeHandler)
	mux.HandleFunc("GET /{path...}", h.proxyHandler)
	return mux
}

func (h *HttpServer) rootHandler(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, "Load Balancer is running!")
}

func (h *HttpServer) heartbeatHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *HttpServer) replicasHandler(w http.ResponseWriter, _ *http.Request) {
	replicas := balancer.Names(h.registry.ListActive())
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(replicas),
		"replicas": replicas,
	})
}

func (h *HttpServer) addHandler(w http.ResponseWriter, r *http.Request) {
	var req instancesRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	added, total, err := h.registry.Register(req.Instances)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Replicas added",
		"added":       nonNil(added),
		"total_known": total,
	})
}

func (h *HttpServer) removeHandler(w http.ResponseWriter, r *http.Request) {
	var req instancesRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	removed, remaining := h.registry.Deregister(req.Instances)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":         "Replicas removed",
		"removed":         nonNil(removed),
		"remaining_known": remaining,
	})
}

func (h *HttpServer) proxyHandler(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		key = r.Header.Get(RoutingKeyHeader)
	}
	path := "/" + r.PathValue("path")
	resp, err := h.router.Route(r.Context(), key, path)
	var ferr *balancer.ForwardError
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
	case errors.Is(err, balancer.ErrNoBackend):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "No backend servers available",
		})
	case errors.As(err, &ferr):
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   fmt.Sprintf("Failed to reach %s%s", ferr.Backend.Addr, ferr.Path),
			"details": ferr.Err.Error(),
		})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
