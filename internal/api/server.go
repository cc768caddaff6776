package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/shohag/aptnotify/internal/config"
	"github.com/shohag/aptnotify/internal/dispatch"
	"github.com/shohag/aptnotify/internal/gateway"
	"github.com/shohag/aptnotify/internal/history"
	"github.com/shohag/aptnotify/internal/metrics"
	"github.com/shohag/aptnotify/internal/storage"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Store   storage.Storage
	Service *dispatch.Service
	Gateway *gateway.Client
	History *history.Cache
}

type Server struct {
	cfg           config.ServerConfig
	deps          Deps
	router        *chi.Mux
	notifications *NotificationHandler
	log           zerolog.Logger
	http          *http.Server
}

func NewServer(cfg config.ServerConfig, deps Deps, log zerolog.Logger) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(LoggingMiddleware(s.log))

	aptHandler := NewApartmentHandler(s.deps.Store)
	dueHandler := NewDueHandler(s.deps.Store)
	settingsHandler := NewSettingsHandler(s.deps.Store)
	gwHandler := NewGatewayHandler(s.deps.Service, s.deps.Gateway)
	s.notifications = NewNotificationHandler(s.deps.Service, s.deps.Store, s.deps.History, s.log)
	statsHandler := NewStatsHandler(s.deps.Store)

	// Health and metrics, no auth
	r.Get("/health", statsHandler.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AdminAuthMiddleware(s.cfg.AdminToken))

		// Apartments
		r.Get("/apartments", aptHandler.List)
		r.Get("/apartments/{number}", aptHandler.Get)
		r.Put("/apartments/{number}", aptHandler.Put)
		r.Delete("/apartments/{number}", aptHandler.Delete)

		// Dues
		r.Get("/dues", dueHandler.List)
		r.Put("/dues", dueHandler.Put)
		r.Post("/dues/{id}/pay", dueHandler.Pay)
		r.Delete("/dues/{id}", dueHandler.Delete)

		// Settings
		r.Get("/settings/whatsapp", settingsHandler.GetWhatsApp)
		r.Put("/settings/whatsapp", settingsHandler.PutWhatsApp)

		// Gateway
		r.Get("/gateway/state", gwHandler.State)

		// Notifications
		r.Post("/notifications/bulk", s.notifications.Bulk)
		r.Post("/notifications/reminders", s.notifications.Reminders)
		r.Get("/notifications", s.notifications.List)
		r.Get("/notifications/recent", s.notifications.Recent)
		r.Get("/notifications/{id}", s.notifications.Get)

		// Stats
		r.Get("/stats", statsHandler.Stats)
	})

	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests, then waits for background dispatches.
// Dispatches are not cancelled; the wait is bounded by timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	if waitErr := s.notifications.Wait(ctx); waitErr != nil {
		s.log.Warn().Err(waitErr).Msg("background dispatches still running at shutdown")
	}
	return err
}
