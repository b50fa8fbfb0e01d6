package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/volumetria/volumetria/internal/config"
	"github.com/volumetria/volumetria/internal/domain/integrity"
	"github.com/volumetria/volumetria/internal/domain/pipeline"
	"github.com/volumetria/volumetria/internal/domain/records"
	"github.com/volumetria/volumetria/internal/domain/reference"
	"github.com/volumetria/volumetria/internal/domain/rejection"
	"github.com/volumetria/volumetria/internal/domain/rules"
	"github.com/volumetria/volumetria/internal/domain/upload"
	"github.com/volumetria/volumetria/internal/platform/db"
	"github.com/volumetria/volumetria/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "volumetria-server",
		Short: "Volumetry rule-application API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the volumetry API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference tables from a YAML seed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			sf, err := reference.LoadSeedFile(file)
			if err != nil {
				return err
			}
			counts, err := reference.Seed(ctx, reference.NewRepoPG(pool), sf)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded: %+v\n", *counts)
			return nil
		},
	}
	cmd.Flags().String("file", "./seeds/catalog.yaml", "Path to the seed file")
	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Repositories
	recordRepo := records.NewRepoPG(pool)
	referenceRepo := reference.NewRepoPG(pool)
	ledgerRepo := rejection.NewRepoPG(pool)
	runRepo := pipeline.NewRepoPG(pool)
	uploadRepo := upload.NewRepoPG(pool)

	// Services
	uploadSvc := upload.NewService(uploadRepo, recordRepo,
		time.Duration(cfg.StuckUploadTimeoutMinutes)*time.Minute, logger)
	rejectionSvc := rejection.NewService(ledgerRepo, recordRepo, cfg.ChunkSize, logger)
	recordSvc := records.NewService(recordRepo, uploadSvc, cfg.ChunkSize, logger)
	integritySvc := integrity.NewService(recordRepo, uploadSvc, logger)

	env := &rules.Env{
		Records:   recordRepo,
		Catalog:   referenceRepo,
		Ledger:    rejectionSvc,
		Policy:    rules.Policy{HardExcludedCompanies: toSet(cfg.HardExcludedCompanies), NeuroPhysicians: toSet(cfg.NeuroPhysicians)},
		ChunkSize: cfg.ChunkSize,
		Log:       logger,
	}
	orch := pipeline.NewOrchestrator(rules.NewRegistry(), env, runRepo,
		time.Duration(cfg.RuleTimeoutSeconds)*time.Second, cfg.SuccessThresholdPct, logger)
	pipelineSvc := pipeline.NewService(orch, runRepo, recordRepo, cfg.DefaultReferencePeriod, logger)

	// Freshly ingested batches run through the pipeline detached, so the
	// upload response returns as soon as the rows are in.
	recordSvc.SetPipelineTrigger(func(sel records.Selector, referencePeriod string) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			p, err := pipelineSvc.Apply(ctx, pipeline.ApplyRequest{
				SourceFile:      string(sel.SourceFile),
				UploadBatch:     sel.UploadBatch,
				ReferencePeriod: referencePeriod,
			})
			if err != nil {
				logger.Error().Err(err).Str("selector", sel.String()).Msg("post-ingest pipeline failed")
				return
			}
			logger.Info().Str("selector", sel.String()).Int("percent", p.PercentSuccess).Msg("post-ingest pipeline finished")
		}()
	})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))

	apiV1 := e.Group("/api/v1")
	records.NewHandler(recordSvc).RegisterRoutes(apiV1)
	reference.NewHandler(referenceRepo).RegisterRoutes(apiV1)
	rejection.NewHandler(rejectionSvc).RegisterRoutes(apiV1)
	pipeline.NewHandler(pipelineSvc).RegisterRoutes(apiV1)
	upload.NewHandler(uploadSvc).RegisterRoutes(apiV1)
	integrity.NewHandler(integritySvc).RegisterRoutes(apiV1)

	e.GET("/health", db.HealthHandler(pool))

	// Stuck-upload sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go uploadSvc.SweepLoop(sweepCtx, time.Duration(cfg.SweepIntervalMinutes)*time.Minute)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}
