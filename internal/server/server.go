// Package server is a thin HTTP facade over a storage engine: every
// handler forwards directly to the engine and back, with no cluster
// coordination layer in between (spec §1 sanctions this as an
// out-of-scope collaborator, not part of the engine's core).
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mini-dynamo/bitcask/internal/storage"
)

// Server is the HTTP surface for a single Bitcask engine instance.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	db         *storage.Bitcask
	log        *zap.SugaredLogger
	startTime  time.Time
}

// New builds a Server bound to db, with routes already installed.
func New(addr string, db *storage.Bitcask, log *zap.SugaredLogger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		db:        db,
		log:       log,
		startTime: time.Now(),
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(recoveryMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/keys/{key}", s.handleGet).Methods(http.MethodGet)
	s.router.HandleFunc("/keys/{key}", s.handlePut).Methods(http.MethodPut, http.MethodPost)
	s.router.HandleFunc("/keys/{key}", s.handleDelete).Methods(http.MethodDelete)
	s.router.HandleFunc("/keys", s.handleListKeys).Methods(http.MethodGet)
	s.router.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	s.router.HandleFunc("/merge", s.handleMerge).Methods(http.MethodPost)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
}

// ListenAndServe starts serving HTTP requests; it blocks until Shutdown
// is called or the listener fails.
func (s *Server) ListenAndServe() error {
	s.log.Infow("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Infow("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
