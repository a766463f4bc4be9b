// Package httpapi exposes the engine over REST and a websocket
// state-update stream, following the teacher's
// internal/interfaces/http.Server shape: a gorilla/mux router, one
// middleware chain, and small per-route handlers.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/amm-discovery/internal/engine"
)

// ServerConfig configures listen address and request timeouts.
type ServerConfig struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns sane defaults for a local engine API.
func DefaultServerConfig(listenAddr string) ServerConfig {
	return ServerConfig{
		ListenAddr:   listenAddr,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the REST+websocket front for one Engine.
type Server struct {
	router *mux.Router
	server *http.Server
	config ServerConfig

	eng    *engine.Engine
	hub    *hub
	cancel context.CancelFunc
}

// NewServer builds a Server wired to eng. Call Start to begin listening.
func NewServer(config ServerConfig, eng *engine.Engine) *Server {
	router := mux.NewRouter()
	h := newHub()

	s := &Server{
		router: router,
		config: config,
		eng:    eng,
		hub:    h,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	go h.run()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(requestIDMiddleware)
	s.router.Use(loggingMiddleware)
	s.router.Use(jsonContentTypeMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/state", s.handleGetState).Methods(http.MethodGet)
	s.router.HandleFunc("/state", s.handleSetState).Methods(http.MethodPost)
	s.router.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	s.router.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	s.router.HandleFunc("/ws", s.handleWebsocket)

	s.router.NotFoundHandler = http.HandlerFunc(handleNotFound)
}

// Start runs the websocket broadcast loop in the background and serves HTTP
// until the context is cancelled. It does not start the engine's Run loop;
// POST /start or the caller does that.
func (s *Server) Start(ctx context.Context) error {
	go s.broadcastLoop(ctx)
	log.Info().Str("addr", s.config.ListenAddr).Msg("http api listening")
	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// broadcastLoop pushes the engine's state to every websocket client
// roughly twice a second, regardless of tick cadence, so slow-ticking
// regimes still keep clients' connections alive.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(s.eng.State())
			if err != nil {
				log.Warn().Err(err).Msg("failed to marshal engine state for broadcast")
				continue
			}
			s.hub.broadcast(payload)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.State())
}

func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	body, err := decodeEngineState(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.eng.SetState(body)
	writeJSON(w, http.StatusOK, s.eng.State())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.eng.Running() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "engine already running"})
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		if err := s.eng.Run(ctx); err != nil && err != context.Canceled {
			log.Warn().Err(err).Msg("engine run loop exited with error")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.eng.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	serveWs(s.hub, w, r)
}

// Mount registers an additional handler (e.g. a Prometheus scrape
// endpoint) on this server's router. Call before Start.
func (s *Server) Mount(path string, handler http.Handler) {
	s.router.Handle(path, handler)
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("failed to encode response body")
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		log.Info().
			Str("request_id", fmt.Sprint(r.Context().Value(requestIDKey{}))).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}
