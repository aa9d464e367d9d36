package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/italolelis/potd_downloader/internal/config"
	"github.com/italolelis/potd_downloader/internal/logctx"
	"github.com/italolelis/potd_downloader/internal/potd"
	"github.com/urfave/cli/v3"
)

type configKey struct{}

func main() {
	app := &cli.Command{
		Name:      "potd_downloader",
		Usage:     "Download the picture of the day and archive the previous ones",
		ArgsUsage: "[download_dir] [archive_dir]",
		Commands: []*cli.Command{
			runCommand,
			onceCommand,
			versionCommand,
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			cfg, err := config.LoadConfig()
			if err != nil {
				return nil, cli.Exit(err, potd.ExitConfig)
			}

			logger := logctx.New(os.Stdout, cfg.SlogLevel())
			slog.SetDefault(logger)

			ctx = logctx.WithLogger(ctx, logger)

			return context.WithValue(ctx, configKey{}, cfg), nil
		},
		// without a command the daemon runs, same as "run"
		Action: runCommand.Action,
		ExitErrHandler: func(ctx context.Context, command *cli.Command, err error) {
			if err == nil {
				return
			}

			logctx.LoggerFromContext(ctx).ErrorContext(ctx, "fatal error", "err", err)
			os.Exit(exitCode(err))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		// errors are reported by ExitErrHandler, this covers flag parsing failures
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// loadConfig returns the environment configuration with the positional directories applied.
func loadConfig(ctx context.Context, command *cli.Command) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok {
		return nil, cli.Exit("configuration was not loaded", potd.ExitConfig)
	}

	cfg.ApplyArgs(command.Args().Slice())

	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(err, potd.ExitConfig)
	}

	return cfg, nil
}

func exitCode(err error) int {
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return potd.ExitCode(err)
}
