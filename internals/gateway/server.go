package gateway

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/loopline/realtime/internals/bus"
	"github.com/loopline/realtime/internals/call"
	"github.com/loopline/realtime/internals/config"
	"github.com/loopline/realtime/internals/livestream"
	"github.com/loopline/realtime/internals/moderation"
	"github.com/loopline/realtime/internals/presence"
)

var safeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

// Server is the HTTP and websocket surface of the coordination layer. Request
// handlers and event handlers share nothing but the TTL store and the bus.
type Server struct {
	config *config.Config
	logger *zap.Logger

	hub        *bus.Hub
	calls      *call.Manager
	streams    *livestream.Coordinator
	presence   *presence.Tracker
	moderation *moderation.Service

	httpServer *http.Server

	rateLimiters   map[string]*rate.Limiter
	rateLimitersMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(
	cfg *config.Config,
	hub *bus.Hub,
	calls *call.Manager,
	streams *livestream.Coordinator,
	tracker *presence.Tracker,
	mod *moderation.Service,
	logger *zap.Logger,
) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		config:       cfg,
		logger:       logger,
		hub:          hub,
		calls:        calls,
		streams:      streams,
		presence:     tracker,
		moderation:   mod,
		rateLimiters: make(map[string]*rate.Limiter),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (s *Server) Start() error {
	s.logger.Info("Starting coordination server",
		zap.String("host", s.config.Server.Host),
		zap.Int("port", s.config.Server.Port),
	)

	go s.hub.Run()

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/calls", s.corsMiddleware(s.handleInitiateCall))
	mux.HandleFunc("/api/calls/validate", s.corsMiddleware(s.handleValidateToken))
	mux.HandleFunc("/api/reports", s.corsMiddleware(s.handleCreateReport))
	mux.HandleFunc("/api/bans", s.corsMiddleware(s.handleBanViewer))
	mux.HandleFunc("/health", s.handleHealth)

	if s.config.Metrics.Enabled {
		mux.Handle(s.config.Metrics.Path, promhttp.Handler())
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      mux,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	go func() {
		<-s.ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer shutdownCancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Coordination server started")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop() {
	s.logger.Info("Stopping coordination server")
	s.cancel()
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-User-Name, X-User-Avatar")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// allowRequest applies a per-user token bucket.
func (s *Server) allowRequest(userID string) bool {
	s.rateLimitersMu.Lock()
	limiter, ok := s.rateLimiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.config.Server.RateLimitPerSec), s.config.Server.RateLimitBurst)
		s.rateLimiters[userID] = limiter
	}
	s.rateLimitersMu.Unlock()

	return limiter.Allow()
}

// validID checks an identifier before it reaches any store key.
func (s *Server) validID(id string) bool {
	return id != "" && len(id) <= s.config.Server.MaxIDLength && safeIDPattern.MatchString(id)
}
