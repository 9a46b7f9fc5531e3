// Package main is the entry point for the Hestia household portfolio
// bookkeeping system. It tracks portfolios, institutions, assets and an
// immutable transaction ledger across a small set of SQLite databases.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/auth"
	"github.com/apostolou/hestia/internal/clientdata"
	"github.com/apostolou/hestia/internal/clients/exchangerate"
	"github.com/apostolou/hestia/internal/config"
	"github.com/apostolou/hestia/internal/database"
	"github.com/apostolou/hestia/internal/modules/assets"
	"github.com/apostolou/hestia/internal/modules/currency"
	"github.com/apostolou/hestia/internal/modules/export"
	"github.com/apostolou/hestia/internal/modules/fixeddeposit"
	"github.com/apostolou/hestia/internal/modules/holdings"
	"github.com/apostolou/hestia/internal/modules/impact"
	"github.com/apostolou/hestia/internal/modules/institutions"
	"github.com/apostolou/hestia/internal/modules/ledger"
	"github.com/apostolou/hestia/internal/modules/pnl"
	"github.com/apostolou/hestia/internal/modules/portfolio"
	"github.com/apostolou/hestia/internal/modules/settings"
	"github.com/apostolou/hestia/internal/modules/snapshots"
	"github.com/apostolou/hestia/internal/reliability"
	"github.com/apostolou/hestia/internal/scheduler"
	"github.com/apostolou/hestia/internal/server"
	"github.com/apostolou/hestia/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Hestia")

	// Apply a staged restore BEFORE any database is opened. Restores are
	// staged via the API and executed on the next startup so live
	// connections never see files swapped out from under them.
	restored, err := reliability.ApplyStagedRestore(cfg.DataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to apply staged restore")
	}
	if restored {
		log.Info().Msg("Staged restore applied, proceeding with normal startup")
	}

	configDB := mustOpenDB(log, cfg.DataDir, "config", database.ProfileStandard)
	defer configDB.Close()
	ledgerDB := mustOpenDB(log, cfg.DataDir, "ledger", database.ProfileLedger)
	defer ledgerDB.Close()
	portfolioDB := mustOpenDB(log, cfg.DataDir, "portfolio", database.ProfileStandard)
	defer portfolioDB.Close()
	cacheDB := mustOpenDB(log, cfg.DataDir, "cache", database.ProfileCache)
	defer cacheDB.Close()

	// Repositories
	settingsRepo := settings.NewRepository(configDB.Conn(), log)
	portfolioRepo := portfolio.NewRepository(portfolioDB.Conn(), log)
	holdingsRepo := holdings.NewRepository(portfolioDB.Conn(), log)
	institutionsRepo := institutions.NewRepository(portfolioDB.Conn(), log)
	cashRepo := institutions.NewCashRepository(portfolioDB.Conn(), log)
	assetsRepo := assets.NewRepository(portfolioDB.Conn(), log)
	ledgerRepo := ledger.NewRepository(ledgerDB.Conn(), log)
	snapshotsRepo := snapshots.NewRepository(cacheDB.Conn(), log)
	clientCacheRepo := clientdata.NewRepository(cacheDB.Conn())

	// Settings DB values (S3 credentials, retention) override environment
	if err := cfg.UpdateFromSettings(settingsRepo); err != nil {
		log.Warn().Err(err).Msg("Failed to update config from settings DB, using environment variables")
	}

	// Services
	rateClient := exchangerate.NewClient(cfg.ExchangeRateURL, clientCacheRepo, log)
	currencyService := currency.NewService(rateClient, settingsRepo, log)
	impactService := impact.NewService(
		portfolioDB.Conn(), ledgerDB.Conn(),
		ledgerRepo, portfolioRepo, holdingsRepo, assetsRepo, cashRepo,
		currencyService, log,
	)
	portfolioService := portfolio.NewService(portfolioRepo, holdingsRepo, currencyService, log)
	pnlService := pnl.NewService(ledgerRepo, assetsRepo, log)
	depositService := fixeddeposit.NewService(assetsRepo, impactService, log)
	snapshotsService := snapshots.NewService(snapshotsRepo, portfolioService, log)
	exportService := export.NewService(ledgerRepo, holdingsRepo, log)
	authService := auth.NewService(settingsRepo, log)

	// Reliability stack: local backups, JSON export/import, optional S3
	databases := map[string]*database.DB{
		"config":    configDB,
		"ledger":    ledgerDB,
		"portfolio": portfolioDB,
		"cache":     cacheDB,
	}
	backupService := reliability.NewBackupService(databases, filepath.Join(cfg.DataDir, "backups"), log)
	jsonBackupService := reliability.NewJSONBackupService(configDB, ledgerDB, portfolioDB, log)
	restoreService := reliability.NewRestoreService(cfg.DataDir, log)

	var s3BackupService *reliability.S3BackupService
	if cfg.CloudBackupEnabled() {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize S3 client, cloud backup disabled")
		} else {
			s3BackupService = reliability.NewS3BackupService(s3Client, backupService, cfg.DataDir, log)
			log.Info().Str("bucket", cfg.S3Bucket).Msg("Cloud backup enabled")
		}
	}
	reliabilityHandler := reliability.NewHandler(jsonBackupService, s3BackupService, restoreService, cfg.DataDir, log)

	// Background jobs
	sched := scheduler.New(log)
	registerJob(log, sched, "15 0 * * *", scheduler.NewMaturityScanJob(depositService))
	registerJob(log, sched, "0 22 * * *", scheduler.NewSnapshotJob(snapshotsService))
	registerJob(log, sched, "30 2 * * *", scheduler.NewLocalBackupJob(backupService, cfg.BackupRetentionDays))
	if s3BackupService != nil {
		registerJob(log, sched, "0 3 * * 0", scheduler.NewCloudBackupJob(s3BackupService, cfg.BackupRetentionDays))
	}
	registerJob(log, sched, "45 3 * * *", scheduler.NewCacheCleanupJob(clientCacheRepo))
	registerJob(log, sched, "5 * * * *", scheduler.NewRateRefreshJob(rateClient, cfg.BaseCurrency))
	sched.Start()

	srv := server.New(server.Config{
		Log:         log,
		Config:      cfg,
		ConfigDB:    configDB,
		LedgerDB:    ledgerDB,
		PortfolioDB: portfolioDB,
		CacheDB:     cacheDB,

		SettingsRepo:     settingsRepo,
		PortfolioRepo:    portfolioRepo,
		PortfolioService: portfolioService,
		HoldingsRepo:     holdingsRepo,
		InstitutionRepo:  institutionsRepo,
		CashRepo:         cashRepo,
		AssetsRepo:       assetsRepo,
		LedgerRepo:       ledgerRepo,
		ImpactService:    impactService,
		PnLService:       pnlService,
		DepositService:   depositService,
		SnapshotsRepo:    snapshotsRepo,
		SnapshotsService: snapshotsService,
		ExportService:    exportService,
		CurrencyService:  currencyService,
		AuthService:      authService,

		ReliabilityHandler: reliabilityHandler,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// mustOpenDB opens one of the application databases and runs its
// schema migrations, exiting on failure.
func mustOpenDB(log zerolog.Logger, dataDir, name string, profile database.DatabaseProfile) *database.DB {
	db, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		log.Fatal().Err(err).Str("database", name).Msg("Failed to open database")
	}
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Str("database", name).Msg("Failed to migrate database")
	}
	return db
}

func registerJob(log zerolog.Logger, sched *scheduler.Scheduler, schedule string, job scheduler.Job) {
	if err := sched.AddJob(schedule, job); err != nil {
		log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register scheduled job")
	}
}
