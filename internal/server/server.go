// Package server provides the HTTP server and routing for Hestia.
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

	"github.com/apostolou/hestia/internal/auth"
	"github.com/apostolou/hestia/internal/config"
	"github.com/apostolou/hestia/internal/database"
	"github.com/apostolou/hestia/internal/modules/assets"
	assetshandlers "github.com/apostolou/hestia/internal/modules/assets/handlers"
	"github.com/apostolou/hestia/internal/modules/currency"
	currencyhandlers "github.com/apostolou/hestia/internal/modules/currency/handlers"
	"github.com/apostolou/hestia/internal/modules/export"
	exporthandlers "github.com/apostolou/hestia/internal/modules/export/handlers"
	"github.com/apostolou/hestia/internal/modules/fixeddeposit"
	fixeddeposithandlers "github.com/apostolou/hestia/internal/modules/fixeddeposit/handlers"
	"github.com/apostolou/hestia/internal/modules/holdings"
	"github.com/apostolou/hestia/internal/modules/impact"
	"github.com/apostolou/hestia/internal/modules/institutions"
	institutionshandlers "github.com/apostolou/hestia/internal/modules/institutions/handlers"
	"github.com/apostolou/hestia/internal/modules/ledger"
	ledgerhandlers "github.com/apostolou/hestia/internal/modules/ledger/handlers"
	"github.com/apostolou/hestia/internal/modules/pnl"
	pnlhandlers "github.com/apostolou/hestia/internal/modules/pnl/handlers"
	"github.com/apostolou/hestia/internal/modules/portfolio"
	portfoliohandlers "github.com/apostolou/hestia/internal/modules/portfolio/handlers"
	"github.com/apostolou/hestia/internal/modules/settings"
	settingshandlers "github.com/apostolou/hestia/internal/modules/settings/handlers"
	"github.com/apostolou/hestia/internal/modules/snapshots"
	snapshotshandlers "github.com/apostolou/hestia/internal/modules/snapshots/handlers"
	"github.com/apostolou/hestia/internal/reliability"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Config      *config.Config
	ConfigDB    *database.DB
	LedgerDB    *database.DB
	PortfolioDB *database.DB
	CacheDB     *database.DB

	SettingsRepo     *settings.Repository
	PortfolioRepo    *portfolio.Repository
	PortfolioService *portfolio.Service
	HoldingsRepo     *holdings.Repository
	InstitutionRepo  *institutions.Repository
	CashRepo         *institutions.CashRepository
	AssetsRepo       *assets.Repository
	LedgerRepo       *ledger.Repository
	ImpactService    *impact.Service
	PnLService       *pnl.Service
	DepositService   *fixeddeposit.Service
	SnapshotsRepo    *snapshots.Repository
	SnapshotsService *snapshots.Service
	ExportService    *export.Service
	CurrencyService  *currency.Service
	AuthService      *auth.Service

	ReliabilityHandler *reliability.Handler
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            Config
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	databases := map[string]*database.DB{
		"config":    cfg.ConfigDB,
		"ledger":    cfg.LedgerDB,
		"portfolio": cfg.PortfolioDB,
		"cache":     cfg.CacheDB,
	}

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg,
		systemHandlers: NewSystemHandlers(cfg.Config.DataDir, databases, cfg.Log),
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Liveness probe, always open
	s.router.Get("/health", s.systemHandlers.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Login and session endpoints stay outside the session check so
		// a locked-out client can still authenticate.
		s.cfg.AuthService.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(s.cfg.AuthService.Middleware)

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
			})

			portfolioHandler := portfoliohandlers.NewHandler(s.cfg.PortfolioRepo, s.cfg.PortfolioService, s.cfg.HoldingsRepo, s.log)
			portfolioHandler.RegisterRoutes(r)

			institutionsHandler := institutionshandlers.NewHandler(s.cfg.InstitutionRepo, s.cfg.CashRepo, s.log)
			institutionsHandler.RegisterRoutes(r)

			assetsHandler := assetshandlers.NewHandler(s.cfg.AssetsRepo, s.log)
			assetsHandler.RegisterRoutes(r)

			ledgerHandler := ledgerhandlers.NewHandler(s.cfg.LedgerRepo, s.cfg.ImpactService, s.log)
			ledgerHandler.RegisterRoutes(r)

			pnlHandler := pnlhandlers.NewHandler(s.cfg.PnLService, s.log)
			pnlHandler.RegisterRoutes(r)

			depositHandler := fixeddeposithandlers.NewHandler(s.cfg.DepositService, s.log)
			depositHandler.RegisterRoutes(r)

			snapshotsHandler := snapshotshandlers.NewHandler(s.cfg.SnapshotsRepo, s.cfg.SnapshotsService, s.log)
			snapshotsHandler.RegisterRoutes(r)

			exportHandler := exporthandlers.NewHandler(s.cfg.ExportService, s.log)
			exportHandler.RegisterRoutes(r)

			currencyHandler := currencyhandlers.NewHandler(s.cfg.CurrencyService, s.log)
			currencyHandler.RegisterRoutes(r)

			settingsHandler := settingshandlers.NewHandler(s.cfg.SettingsRepo, s.log)
			settingsHandler.RegisterRoutes(r)

			if s.cfg.ReliabilityHandler != nil {
				s.cfg.ReliabilityHandler.RegisterRoutes(r)
			}
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Config.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
