// Package server exposes the job service over REST and a websocket status
// stream.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/sheetcast/internal/models"
	"github.com/raphaelgruber/sheetcast/internal/service"
	"golang.org/x/time/rate"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "sheetcast"

// defaultPollInterval is how often the status stream polls the store.
const defaultPollInterval = 500 * time.Millisecond

// Jobs is the job service as used by the HTTP layer.
type Jobs interface {
	Create(ctx context.Context, source string, opts models.Options) (*models.Job, error)
	GetStatus(ctx context.Context, jobID string) (service.StatusView, error)
	GetResult(ctx context.Context, jobID string) (*models.Job, error)
	GetVisualization(ctx context.Context, jobID string) (models.PianoRoll, error)
	ArtifactPath(jobID, format string) (service.Artifact, error)
	Stats(ctx context.Context) service.Stats
	Watch(ctx context.Context, jobID string, interval time.Duration) (<-chan service.StatusView, error)
}

// Options configures a Server.
type Options struct {
	AllowedOrigins []string
	SubmitRate     float64 // submissions per second, <= 0 disables limiting
	SubmitBurst    int
	PollInterval   time.Duration
}

// Server routes HTTP requests to the job service.
type Server struct {
	jobs     Jobs
	logger   *slog.Logger
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	poll     time.Duration
	router   *mux.Router
}

// New creates a Server with all routes registered.
func New(jobs Jobs, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if opts.SubmitRate > 0 {
		limit = rate.Limit(opts.SubmitRate)
	}
	burst := max(opts.SubmitBurst, 1)
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	s := &Server{
		jobs:    jobs,
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
		poll:    poll,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
	s.router = s.routes(opts.AllowedOrigins)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes(origins []string) *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(s.logger))
	r.Use(CORSMiddleware(origins))

	r.HandleFunc("/health", s.health).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/transcribe", s.transcribe).Methods("POST", "OPTIONS")
	api.HandleFunc("/status/{id}", s.status).Methods("GET")
	api.HandleFunc("/status/{id}/stream", s.streamStatus).Methods("GET")
	api.HandleFunc("/result/{id}", s.result).Methods("GET")
	api.HandleFunc("/download/{id}/{format}", s.download).Methods("GET")
	api.HandleFunc("/piano-roll/{id}", s.pianoRoll).Methods("GET")
	api.HandleFunc("/stats", s.stats).Methods("GET")
	return r
}

// originChecker admits same-host requests and the configured origins.
func originChecker(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin) {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
