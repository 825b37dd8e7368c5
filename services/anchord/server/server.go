package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"anchorledger/core/anchor"
	"anchorledger/core/events"
	"anchorledger/observability"
	"anchorledger/services/anchord/journal"
)

// EventJournal is the read side of the audit journal.
type EventJournal interface {
	Query(ctx context.Context, filter journal.Filter) ([]journal.Entry, error)
}

// Config captures the HTTP listener settings.
type Config struct {
	ListenAddress string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	RateLimit     RateLimit
}

// Server exposes the ledger over HTTP.
type Server struct {
	cfg     Config
	ledger  *anchor.Service
	feed    *events.Feed
	journal EventJournal
	auth    *Authenticator
	limiter *ClientLimiter
	logger  *slog.Logger
	handler http.Handler
}

// New builds the router. feed, journal and auth may be nil; the matching
// routes then answer 404.
func New(cfg Config, ledger *anchor.Service, feed *events.Feed, j EventJournal, auth *Authenticator, logger *slog.Logger) (*Server, error) {
	if ledger == nil {
		return nil, fmt.Errorf("server: ledger required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		ledger:  ledger,
		feed:    feed,
		journal: j,
		auth:    auth,
		logger:  logger.With(slog.String("component", "http")),
	}
	if cfg.RateLimit.PerSecond > 0 {
		s.limiter = NewClientLimiter(cfg.RateLimit)
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler. Tests mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(v1 chi.Router) {
		// The stream hijacks the connection and sets per-message deadlines.
		v1.Get("/events/stream", s.handleStream)

		v1.Group(func(bounded chi.Router) {
			bounded.Use(s.writeDeadline)
			bounded.Group(func(writes chi.Router) {
				writes.Use(s.limiter.Middleware("anchors"))
				writes.With(s.observe("anchor")).Post("/anchors", s.handleAnchor)
				writes.With(s.observe("batch_anchor")).Post("/anchors/batch", s.handleBatchAnchor)
			})
			bounded.With(s.observe("verify")).Get("/anchors/{user}/{dataHash}", s.handleVerify)
			bounded.With(s.observe("history")).Get("/users/{user}/anchors", s.handleHistory)
			bounded.With(s.observe("user_status")).Get("/users/{user}/status", s.handleUserStatus)
			bounded.With(s.observe("domain")).Get("/domain", s.handleDomain)
			bounded.With(s.observe("status")).Get("/status", s.handleStatus)
			bounded.With(s.observe("events")).Get("/events", s.handleEvents)

			bounded.Route("/admin", func(admin chi.Router) {
				admin.Use(s.auth.Middleware)
				admin.With(s.observe("pause")).Post("/pause", s.handlePause)
				admin.With(s.observe("unpause")).Post("/unpause", s.handleUnpause)
			})
		})
	})
	return otelhttp.NewHandler(r, "anchord.http")
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", slog.String("addr", s.cfg.ListenAddress))
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return ctx.Err()
}

const timeoutBody = `{"error":"Timeout","message":"request timed out"}`

// writeDeadline bounds a request by WriteTimeout. It is applied per route
// group rather than on http.Server so long-lived streams are unaffected.
func (s *Server) writeDeadline(next http.Handler) http.Handler {
	return http.TimeoutHandler(next, s.cfg.WriteTimeout, timeoutBody)
}

type requestIDKey struct{}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) observe(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			elapsed := time.Since(start)
			observability.API().Observe(route, recorder.status, elapsed)
			s.logger.Debug("request served",
				slog.String("route", route),
				slog.String("request_id", requestIDFrom(r.Context())),
				slog.Int("status", recorder.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}
