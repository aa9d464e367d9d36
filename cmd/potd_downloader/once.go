package main

import (
	"context"
	"fmt"

	"github.com/italolelis/potd_downloader/internal/cycle"
	"github.com/italolelis/potd_downloader/internal/storage/sqlite"
	"github.com/urfave/cli/v3"
)

var onceCommand = &cli.Command{
	Name:      "once",
	Usage:     "Run a single cycle and exit",
	ArgsUsage: "[download_dir] [archive_dir]",
	Action: func(ctx context.Context, command *cli.Command) error {
		cfg, err := loadConfig(ctx, command)
		if err != nil {
			return err
		}

		tel, err := setupTelemetry(ctx, cfg)
		if err != nil {
			return err
		}
		defer shutdownTelemetry(ctx, tel)

		database, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to init database: %w", err)
		}
		defer database.Close()

		runner, err := buildRunner(ctx, cfg, tel, sqlite.NewInstrumentedPictureRepository(database, tel))
		if err != nil {
			return err
		}

		result, err := runner.Run(cycle.WithTrigger(ctx, cycle.TriggerCLI))
		if err != nil {
			return err
		}

		fmt.Fprintf(command.Root().Writer, "Downloaded %s\n", result.Picture.Path)

		return nil
	},
}
