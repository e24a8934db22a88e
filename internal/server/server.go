// Package server exposes the screening and collection operations over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/stockhunter/stockhunter/internal/config"
	"github.com/stockhunter/stockhunter/internal/modules/collector"
	"github.com/stockhunter/stockhunter/internal/modules/master"
	"github.com/stockhunter/stockhunter/internal/modules/prices"
	"github.com/stockhunter/stockhunter/pkg/logger"
)

// Server is the HTTP front of the screener.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	cfg       *config.Config
	store     *prices.Store
	universe  *master.Manager
	collector *collector.Collector
	clients   *ClientProvider
	system    *SystemHandlers
}

// New wires the router. The caller owns the lifecycle via Start/Shutdown.
func New(cfg *config.Config, store *prices.Store, universe *master.Manager, c *collector.Collector, clients *ClientProvider, log zerolog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       logger.Component(log, "server"),
		cfg:       cfg,
		store:     store,
		universe:  universe,
		collector: c,
		clients:   clients,
		system:    NewSystemHandlers(store, cfg.DataDir, log),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(10 * time.Minute))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/screen", s.handleScreen)
		r.Post("/validate-credentials", s.handleValidateCredentials)
		r.Get("/stock-codes", s.handleStockCodes)

		r.Route("/us", func(r chi.Router) {
			r.Post("/screen", s.handleUSScreen)
			r.Get("/symbols", s.handleUSSymbols)
		})

		r.Route("/database", func(r chi.Router) {
			r.Get("/status", s.handleDatabaseStatus)
			r.Get("/progress", s.handleProgress)
			r.Get("/progress/ws", s.handleProgressWS)
			r.Post("/initialize", s.handleInitialize)
			r.Post("/update", s.handleUpdate)
			r.Post("/sync-stock-names", s.handleSyncStockNames)
			r.Post("/upload-stock-master", s.handleUploadStockMaster)
		})

		r.Get("/system/status", s.system.handleSystemStatus)
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
