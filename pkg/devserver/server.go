// Package devserver serves the generated client modules and runs the
// authoritative side of the sync protocol during development. Each
// websocket session owns its own field state and a serialized recompute
// loop, so two browser tabs never see each other's optimistic values.
package devserver

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mirageui/mirage/internal/metrics"
	"github.com/mirageui/mirage/pkg/decl"
	"github.com/mirageui/mirage/pkg/graph"
)

// Config configures the dev server.
type Config struct {
	// Addr is the listen address, "host:port".
	Addr string

	// ArtifactDir is the directory the writer produced, served under
	// /artifacts/ and as /manifest.json.
	ArtifactDir string

	// Log defaults to slog.Default().
	Log *slog.Logger
}

// unitRuntime pairs a unit's declarations with its built graph.
type unitRuntime struct {
	unit  *decl.Unit
	graph *graph.Graph
}

// Server is the development HTTP + sync server.
type Server struct {
	cfg      Config
	log      *slog.Logger
	units    map[string]*unitRuntime
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New creates a dev server. Register units before serving.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:   cfg,
		log:   log,
		units: make(map[string]*unitRuntime),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Dev server only, any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register makes a unit available to sync sessions.
func (s *Server) Register(u *decl.Unit, g *graph.Graph) {
	s.units[u.Name] = &unitRuntime{unit: u, graph: g}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	fs := http.FileServer(http.Dir(s.cfg.ArtifactDir))
	r.Get("/artifacts/*", func(w http.ResponseWriter, req *http.Request) {
		// Artifact names embed their content hash, safe to cache forever.
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		http.StripPrefix("/artifacts/", fs).ServeHTTP(w, req)
	})
	r.Get("/manifest.json", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, req, s.cfg.ArtifactDir+"/manifest.json")
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	r.Get("/sync", s.handleSync)
	return r
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.ListenAndServe() }()
	s.log.Info("dev server listening", "addr", s.cfg.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// handleSync upgrades the connection and runs a session to completion.
func (s *Server) handleSync(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	sess := newSession(ulid.Make().String(), conn, s.units, s.log)
	metrics.RecordSessionOpen()
	defer metrics.RecordSessionClose()
	sess.run()
}

// requestLogger logs each HTTP request at debug with method, path,
// status, and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, req)
		s.log.Debug("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", sw.status,
			"duration", time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade through the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
