package main

import (
	"context"
	"fmt"
	"time"

	"github.com/italolelis/potd_downloader/internal/archive"
	"github.com/italolelis/potd_downloader/internal/config"
	"github.com/italolelis/potd_downloader/internal/cycle"
	"github.com/italolelis/potd_downloader/internal/downloader"
	"github.com/italolelis/potd_downloader/internal/httpclient"
	"github.com/italolelis/potd_downloader/internal/logctx"
	"github.com/italolelis/potd_downloader/internal/notifier"
	"github.com/italolelis/potd_downloader/internal/potd"
	"github.com/italolelis/potd_downloader/internal/storage"
	"github.com/italolelis/potd_downloader/internal/telemetry"
	"github.com/spf13/afero"
)

const telemetryShutdownTimeout = 10 * time.Second

func setupTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	return tel, nil
}

func shutdownTelemetry(ctx context.Context, tel *telemetry.Telemetry) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryShutdownTimeout)
	defer cancel()

	if err := tel.Shutdown(shutdownCtx); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to shutdown telemetry", "err", err)
	}
}

// buildRunner assembles a cycle runner from the configuration.
func buildRunner(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, repo storage.PictureWriteRepository) (*cycle.Runner, error) {
	logger := logctx.LoggerFromContext(ctx)

	client := httpclient.New(httpclient.Config{
		Timeout:  cfg.RequestTimeout,
		MaxTries: cfg.MaxRetries,
	})
	fs := afero.NewOsFs()

	var rotatorOpts []archive.Option

	if cfg.MirrorArchive() {
		rotatorOpts = append(rotatorOpts, archive.WithTreeLayout())
	}

	if cfg.S3.Bucket != "" {
		mirror, err := archive.NewS3Mirror(ctx, archive.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set up archive mirror: %w", err)
		}

		logger.InfoContext(ctx, "archive mirror enabled", "mirror", mirror.Name())

		rotatorOpts = append(rotatorOpts, archive.WithMirror(mirror))
	}

	var notif notifier.Notifier = notifier.Nop{}
	if cfg.DiscordWebhookURL != "" {
		notif = notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)
	}

	clock := potd.UTCClock{}

	return cycle.NewRunner(
		cycle.Config{
			DownloadDir: cfg.DownloadDir,
			ArchiveDir:  cfg.ArchiveDir,
			LockFile:    cfg.LockFile,
		},
		potd.NewResolver(cfg.MetadataEndpoint, client),
		archive.NewRotator(fs, rotatorOpts...),
		downloader.NewDownloader(fs, client, clock, cfg.MaxBytes),
		cycle.WithRepository(repo),
		cycle.WithNotifier(notif),
		cycle.WithTelemetry(tel),
		cycle.WithClock(clock),
	), nil
}
