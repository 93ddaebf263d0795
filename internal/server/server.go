package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iksnae/chatstream/internal/llm"
)

const (
	chatRoute     = "/api/chat"
	enhancerRoute = "/api/enhancer"
	healthRoute   = "/healthz"
	metricsRoute  = "/metrics"

	// transcripts carry whole files, so the limit is generous
	maxBodyBytes = 8 << 20
)

// Upstream streams a completion for a prompt
type Upstream interface {
	ChatStream(ctx context.Context, model, systemPrompt string, maxTokens int, messages []llm.Message, callback llm.StreamCallback) error
}

// Options configures the relay
type Options struct {
	Upstream  Upstream
	Model     string
	MaxTokens int
	Logger    zerolog.Logger
}

// Server relays chat and enhancer requests to the upstream model
type Server struct {
	upstream  Upstream
	model     string
	maxTokens int
	logger    zerolog.Logger
}

// New creates a relay server
func New(opts Options) *Server {
	return &Server{
		upstream:  opts.Upstream,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		logger:    opts.Logger,
	}
}

// Router creates and configures the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(Metrics)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(s.logger))
	r.Use(chimw.Recoverer)

	r.Handle(metricsRoute, promhttp.Handler())
	r.Get(healthRoute, s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(MaxBodySize(maxBodyBytes))
		r.Post(chatRoute, s.handleChat)
		r.Post(enhancerRoute, s.handleEnhancer)
	})

	return r
}

// HTTPServer wraps the router in an http.Server listening on addr.
// There is no write timeout: replies stream for as long as the model writes.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
