package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/openfroyo/descriptions/pkg/descriptions"
	"github.com/openfroyo/descriptions/pkg/stores"
	"github.com/openfroyo/descriptions/pkg/telemetry"
)

// Config configures a Server.
type Config struct {
	Addr string

	// SchemaDir holds the view schema files.
	SchemaDir string
	// WatchSchemas reloads views when their files change.
	WatchSchemas bool

	Store stores.Store

	// Policy is optional.
	Policy descriptions.Authorizer

	Telemetry *telemetry.Telemetry
	Logger    zerolog.Logger

	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server serves descriptions views of stored entities over HTTP.
type Server struct {
	cfg      Config
	catalog  *Catalog
	sessions *SessionManager
	tel      *telemetry.Telemetry
	logger   zerolog.Logger
	router   chi.Router
}

// New creates a server. Call Load before serving.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("server requires a store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	tel := cfg.Telemetry
	if tel == nil {
		tel = telemetry.NewNop()
		events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true, BufferSize: 256})
		if err != nil {
			return nil, err
		}
		tel.Events = events
	}

	logger := cfg.Logger.With().Str("component", "server").Logger()
	catalog := NewCatalog(cfg.SchemaDir, cfg.Logger)

	s := &Server{
		cfg:      cfg,
		catalog:  catalog,
		sessions: NewSessionManager(catalog, cfg.Store, cfg.Policy, tel, cfg.Logger, cfg.IdleTimeout),
		tel:      tel,
		logger:   logger,
	}
	s.router = s.routes()
	return s, nil
}

// Catalog returns the view catalog.
func (s *Server) Catalog() *Catalog { return s.catalog }

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager { return s.sessions }

// Load reads the schema directory.
func (s *Server) Load(ctx context.Context) error {
	if s.cfg.SchemaDir == "" {
		return nil
	}
	return s.catalog.Load(ctx)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.tel.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/views", s.handleListViews)
		r.Route("/views/{view}/entities/{id}", func(r chi.Router) {
			r.Get("/", s.handleRender)
			r.Post("/reload", s.handleReload)
			r.Post("/fields/{key}:{action}", s.handleFieldAction)
			r.Get("/live", s.handleLive)
		})

		r.Get("/entities", s.handleListEntities)
		r.Put("/entities/{id}", s.handlePutEntity)
		r.Get("/entities/{id}", s.handleGetEntity)
		r.Delete("/entities/{id}", s.handleDeleteEntity)
		r.Get("/entities/{id}/audit", s.handleListAudit)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		timer := telemetry.NewTimer()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", timer.Duration()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request served")
	})
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.WatchSchemas && s.cfg.SchemaDir != "" {
		if err := s.catalog.Watch(ctx, s.sessions.ApplySchema); err != nil {
			return err
		}
	}
	go s.expireSessions(ctx)

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Strs("views", s.catalog.Names()).Msg("Serving descriptions")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("Shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) expireSessions(ctx context.Context) {
	interval := s.sessions.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sessions.Cleanup()
		}
	}
}
