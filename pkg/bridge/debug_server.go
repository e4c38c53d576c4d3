package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-drift/pushbridge/pkg/sdk"
)

// Snapshot is a point-in-time view of the bridge for diagnostics.
type Snapshot struct {
	Pending    int            `json:"pending"`
	Queued     int            `json:"queued"`
	Handles    int            `json:"handles"`
	Listeners  map[string]int `json:"listeners"`
	Subscribed []string       `json:"subscribed"`
}

// Snapshot reports pending notifications, queued messages and listeners per
// category. Categories without listeners are omitted.
func (b *Bridge) Snapshot() Snapshot {
	s := Snapshot{
		Pending:    b.display.Pending(),
		Queued:     b.reg.Outbox().Len(),
		Handles:    b.reg.Len(),
		Listeners:  make(map[string]int),
		Subscribed: []string{},
	}
	for _, c := range sdk.Categories() {
		if n := b.mux.ListenerCount(c); n > 0 {
			s.Listeners[string(c)] = n
		}
		if b.mux.Subscribed(c) {
			s.Subscribed = append(s.Subscribed, string(c))
		}
	}
	return s
}

// DebugHandler serves /health, /state, /commands and, when gatherer is not
// nil, /metrics.
func DebugHandler(b *Bridge, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, b.Snapshot())
	})
	mux.HandleFunc("/commands", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, b.Commands())
	})
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// DebugServer serves DebugHandler over HTTP.
type DebugServer struct {
	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// StartDebugServer listens on addr and serves diagnostics for b in the
// background. Use ":0" for an ephemeral port.
func StartDebugServer(addr string, b *Bridge, gatherer prometheus.Gatherer) (*DebugServer, error) {
	// Bind first to fail fast on port conflicts.
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("debug server listen: %w", err)
	}

	s := &DebugServer{
		server: &http.Server{
			Handler:           DebugHandler(b, gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
	}
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			b.log.Error("debug server failed", slog.String("error", err.Error()))
		}
	}()
	b.log.Info("debug server listening", slog.String("addr", listener.Addr().String()))
	return s, nil
}

// Addr returns the listening address.
func (s *DebugServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close shuts the server down, waiting for open requests until ctx is done.
func (s *DebugServer) Close(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
