package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/cjeanneret/camguard/internal/journal"
	"github.com/gorilla/mux"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, broadcaster *StatusBroadcaster, capture CaptureFunc, j *journal.Journal, formDefaults FormConfig) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: sub static fs: %w", err)
	}
	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, capture, j, formDefaults, subFS),
	}, nil
}

// Router returns an http.Handler with all routes registered.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/capture", s.handlers.HandleCapture).Methods(http.MethodPost)
	r.HandleFunc("/history", s.handlers.HandleHistory).Methods(http.MethodGet)
	r.HandleFunc("/config", s.handlers.HandleConfig).Methods(http.MethodGet)
	r.HandleFunc("/status/stream", s.handlers.HandleStatusStream).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	r.HandleFunc("/", s.handlers.ServeIndex).Methods(http.MethodGet)
	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
// Captures started over HTTP inherit ctx.
func (s *Server) Run(ctx context.Context) error {
	s.handlers.baseCtx = ctx
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
