package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/italolelis/potd_downloader/internal/config"
	"github.com/italolelis/potd_downloader/internal/cycle"
	"github.com/italolelis/potd_downloader/internal/http/rest"
	"github.com/italolelis/potd_downloader/internal/logctx"
	"github.com/italolelis/potd_downloader/internal/schedule"
	"github.com/italolelis/potd_downloader/internal/storage"
	"github.com/italolelis/potd_downloader/internal/storage/sqlite"
	"github.com/italolelis/potd_downloader/internal/telemetry"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run a cycle every day at RUN_AT (UTC) and serve the status API",
	ArgsUsage: "[download_dir] [archive_dir]",
	Action: func(ctx context.Context, command *cli.Command) error {
		cfg, err := loadConfig(ctx, command)
		if err != nil {
			return err
		}

		return runDaemon(ctx, cfg)
	},
}

func runDaemon(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	logger.InfoContext(ctx, "potd downloader starting...",
		"version", Version,
		"log_level", cfg.LogLevel,
		"download_dir", cfg.DownloadDir,
		"archive_dir", cfg.ArchiveDir,
		"run_at", cfg.RunAt,
	)

	// =========================================================================
	// Start Telemetry
	tel, err := setupTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(ctx, tel)

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedPictureRepository(database, tel)

	// =========================================================================
	// Start Cycle Runner
	runner, err := buildRunner(ctx, cfg, tel, repo)
	if err != nil {
		return err
	}

	hour, minute, err := cfg.RunAtTime()
	if err != nil {
		return err
	}

	scheduler, err := schedule.NewDaily(hour, minute, cfg.RunOnStart, func(ctx context.Context) error {
		_, err := runner.Run(cycle.WithTrigger(ctx, cycle.TriggerSchedule))

		return err
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	// =========================================================================
	// Start API Service
	if cfg.Web.Enabled {
		server := setupServer(gctx, cfg, tel, runner, repo)

		g.Go(func() error {
			logger.InfoContext(ctx, "initializing API support", "host", cfg.Web.BindAddress)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}

			return nil
		})

		g.Go(func() error {
			<-gctx.Done()

			logger.InfoContext(ctx, "start shutdown")

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.ErrorContext(ctx, "failed to gracefully shutdown the server", "err", err)

				if err := server.Close(); err != nil {
					return fmt.Errorf("could not stop server gracefully: %w", err)
				}
			}

			return nil
		})
	}

	return g.Wait()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, runner rest.CycleRunner, repo storage.PictureReadRepository) *http.Server {
	pictures := rest.NewPicturesHandler(runner, repo, cfg.Web.Username, cfg.Web.Password)

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      rest.NewRouter(tel, pictures),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
