// Package relay serves the reqly relay endpoint: it accepts a JSON envelope
// describing a request, performs it and returns the upstream response as is.
package relay

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	reqlyhttp "github.com/abdul-hamid-achik/reqly/packages/http"
)

const (
	DefaultAddr = "127.0.0.1:8765"
	// MaxEnvelopeSize bounds the accepted envelope body.
	MaxEnvelopeSize = 32 << 20
)

// ErrRelayUnauthorized is reported when the API key is missing or wrong.
var ErrRelayUnauthorized = errors.New("invalid or missing API key")

// hopHeaders are not forwarded back to the caller.
var hopHeaders = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Content-Length":    true,
	"Te":                true,
	"Trailer":           true,
	"Upgrade":           true,
}

// Server is the relay endpoint
type Server struct {
	addr    string
	apiKey  string
	client  *reqlyhttp.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	router  chi.Router
}

// Option is a functional option for Server
type Option func(*Server)

// WithAddr sets the listen address
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithAPIKey requires callers to send key in the X-API-Key header.
// An empty key disables the check.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithRateLimit caps accepted requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(s *Server) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithClient sets the client used for upstream calls.
func WithClient(c *reqlyhttp.Client) Option {
	return func(s *Server) {
		if c != nil {
			s.client = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a relay server
func NewServer(opts ...Option) *Server {
	s := &Server{
		addr:   DefaultAddr,
		client: reqlyhttp.NewClient(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit, s.authenticate)
		r.Post("/proxy", s.handleProxy)
	})
	s.router = r
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	return s.addr
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("relay listening", "addr", ln.Addr().String(), "auth", s.apiKey != "", "rateLimited", s.limiter != nil)
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			got := r.Header.Get(reqlyhttp.RelayAPIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, ErrRelayUnauthorized.Error())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxEnvelopeSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "envelope too large")
		return
	}

	envelope, err := reqlyhttp.DecodeEnvelope(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	upstream, err := envelope.Request()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	resp, err := s.client.Send(r.Context(), upstream)
	if err != nil {
		kind, msg := reqlyhttp.ClassifyError(err)
		s.logger.Warn("relay upstream failed",
			"method", upstream.Method, "url", upstream.URL, "kind", kind.String(), "error", err)
		status := http.StatusBadGateway
		if kind == reqlyhttp.FailureTimeout {
			status = http.StatusGatewayTimeout
		}
		w.Header().Set(reqlyhttp.RelayFailureHeader, kind.String())
		writeError(w, status, msg)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		if hopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		s.logger.Warn("relay response copy failed", "url", upstream.URL, "error", err)
	}

	s.logger.Debug("relayed request",
		"method", upstream.Method, "url", upstream.URL,
		"status", resp.StatusCode, "bytes", n, "duration", time.Since(start))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
