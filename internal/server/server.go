package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"mediadrop/internal/provider"
	"mediadrop/internal/widget"
)

// Config wires the server. Provider is required; everything else has a
// usable zero value.
type Config struct {
	Addr    string // e.g. ":8080"
	Version string

	// Provider is the media host client, built once by the caller.
	Provider provider.Provider
	// Breaker, when set, is reported on /health and exported as a gauge.
	// The caller is expected to have wrapped Provider with it.
	Breaker *provider.CircuitBreaker

	// Upload are the options sent with every provider call.
	Upload provider.UploadOptions
	// MaxRequestBytes caps the request body. Zero disables the cap.
	MaxRequestBytes int64
	// ProviderTimeout bounds the provider call. Zero means the request
	// context alone decides.
	ProviderTimeout time.Duration

	// RateLimit is upload requests per minute per client IP. Zero disables.
	RateLimit int

	// Images restricts which result URLs the page renders as <img>.
	Images widget.RemotePattern

	Logger   *Logger
	Registry *prometheus.Registry
}

type Server struct {
	cfg        Config
	httpServer *http.Server
	handler    http.Handler
	log        *Logger
	metrics    *Metrics
	limiter    *rateLimiter
}

func New(cfg Config) *Server {
	s := &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: NewMetrics(cfg.Registry, cfg.Version),
	}
	if s.log == nil {
		s.log = DefaultLogger
	}
	if cfg.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit, time.Minute, s.log)
	}
	if cfg.Breaker != nil {
		s.metrics.SetBreakerState(cfg.Breaker.State())
		cfg.Breaker.OnStateChange(func(from, to provider.CircuitState) {
			s.metrics.SetBreakerState(to)
			s.log.Warn("provider circuit state changed", map[string]any{
				"provider": cfg.Provider.Name(),
				"from":     from.String(),
				"to":       to.String(),
			})
		})
	}

	s.handler = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)
	r.Use(securityHeadersMiddleware(s.cfg.Images.Origin()))
	r.Use(CompressionMiddleware)

	r.Method(http.MethodGet, "/", widget.NewPage(widget.PageConfig{
		Endpoint: uploadPath,
		Images:   s.cfg.Images,
		Filter:   widget.DefaultFilter(),
	}))
	r.Get("/health", s.HandleHealth)
	r.Get("/live", s.HandleLive)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	upload := r.With()
	if s.limiter != nil {
		upload = r.With(s.limiter.middleware)
	}
	upload.Post(uploadPath, s.uploadHandler())

	return r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.Info("listening", map[string]any{
		"addr":     ln.Addr().String(),
		"provider": s.cfg.Provider.Name(),
	})
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
