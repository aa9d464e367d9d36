// Package cycle runs one picture of the day cycle: resolve the picture URL, rotate the
// previous pictures into the archive and download the new one.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/italolelis/potd_downloader/internal/archive"
	"github.com/italolelis/potd_downloader/internal/downloader"
	"github.com/italolelis/potd_downloader/internal/logctx"
	"github.com/italolelis/potd_downloader/internal/notifier"
	"github.com/italolelis/potd_downloader/internal/potd"
	"github.com/italolelis/potd_downloader/internal/storage"
	"github.com/italolelis/potd_downloader/internal/telemetry"
)

const (
	TriggerCLI      = "cli"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

type URLResolver interface {
	ResolvePictureURL(ctx context.Context) (string, error)
}

type Rotator interface {
	Rotate(ctx context.Context, downloadDir, archiveDir string) (*archive.Report, error)
}

type Downloader interface {
	Download(ctx context.Context, url string, destinationDir string) (*downloader.Picture, error)
}

type Config struct {
	DownloadDir string
	ArchiveDir  string
	// LockFile defaults to a file next to the download directory.
	LockFile string
}

// Result describes a successful cycle.
type Result struct {
	ID         string              `json:"id"`
	Trigger    string              `json:"trigger"`
	PictureURL string              `json:"picture_url"`
	Picture    *downloader.Picture `json:"picture"`
	Archived   []archive.Move      `json:"archived"`
	StartedAt  time.Time           `json:"started_at"`
	Duration   time.Duration       `json:"duration"`
}

type Runner struct {
	cfg        Config
	resolver   URLResolver
	rotator    Rotator
	downloader Downloader

	repo      storage.PictureWriteRepository
	notifier  notifier.Notifier
	telemetry *telemetry.Telemetry
	clock     potd.Clock

	mu   sync.Mutex
	lock *flock.Flock
}

type Option func(*Runner)

func WithRepository(repo storage.PictureWriteRepository) Option {
	return func(r *Runner) {
		r.repo = repo
	}
}

func WithNotifier(n notifier.Notifier) Option {
	return func(r *Runner) {
		r.notifier = n
	}
}

func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(r *Runner) {
		r.telemetry = tel
	}
}

func WithClock(clock potd.Clock) Option {
	return func(r *Runner) {
		r.clock = clock
	}
}

func NewRunner(cfg Config, resolver URLResolver, rotator Rotator, dl Downloader, opts ...Option) *Runner {
	if cfg.LockFile == "" {
		cfg.LockFile = filepath.Clean(cfg.DownloadDir) + ".lock"
	}

	r := &Runner{
		cfg:        cfg,
		resolver:   resolver,
		rotator:    rotator,
		downloader: dl,
		notifier:   notifier.Nop{},
		clock:      potd.UTCClock{},
		lock:       flock.New(cfg.LockFile),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

type triggerKey struct{}

// WithTrigger records what started the cycle run with ctx.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

func triggerFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}

	return TriggerCLI
}

// Run executes one cycle. Nothing touches the filesystem until the picture URL is resolved,
// and the download is skipped when the rotation fails.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		ID:        uuid.New().String(),
		Trigger:   triggerFromContext(ctx),
		StartedAt: r.clock.Now(),
	}

	ctx = logctx.With(ctx, "cycle_id", result.ID, "trigger", result.Trigger)
	logger := logctx.LoggerFromContext(ctx)

	logger.InfoContext(ctx, "starting cycle", "download_dir", r.cfg.DownloadDir, "archive_dir", r.cfg.ArchiveDir)

	err := r.telemetry.InstrumentCycle(ctx, result.Trigger, func(ctx context.Context) error {
		return r.run(ctx, result)
	})

	result.Duration = r.clock.Now().Sub(result.StartedAt)

	if err != nil {
		logger.ErrorContext(ctx, "cycle failed", "err", err)
		r.notify(ctx, fmt.Sprintf("Picture of the day cycle failed: %v", err))

		return nil, err
	}

	logger.InfoContext(ctx, "downloaded picture of the day",
		"date", potd.DateStamp(result.Picture.Date),
		"file_path", result.Picture.Path,
		"archived", len(result.Archived),
	)
	r.notify(ctx, fmt.Sprintf("Picture of the day for %s saved as %s", potd.DateStamp(result.Picture.Date), result.Picture.FileName))

	return result, nil
}

func (r *Runner) run(ctx context.Context, result *Result) error {
	logger := logctx.LoggerFromContext(ctx)

	err := r.telemetry.InstrumentResolve(ctx, func(ctx context.Context) error {
		var err error

		result.PictureURL, err = r.resolver.ResolvePictureURL(ctx)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to resolve picture url: %w", err)
	}

	logger.DebugContext(ctx, "resolved picture url", "url", result.PictureURL)

	unlock, err := r.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	var report *archive.Report

	err = r.telemetry.InstrumentRotation(ctx, func(ctx context.Context) error {
		var err error

		report, err = r.rotator.Rotate(ctx, r.cfg.DownloadDir, r.cfg.ArchiveDir)

		return err
	})

	if report != nil {
		result.Archived = report.Moved
		r.recordRotation(ctx, report, err)
	}

	if err != nil {
		return fmt.Errorf("failed to rotate pictures: %w", err)
	}

	err = r.telemetry.InstrumentDownload(ctx, func(ctx context.Context) error {
		var err error

		result.Picture, err = r.downloader.Download(ctx, result.PictureURL, r.cfg.DownloadDir)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to download picture: %w", err)
	}

	if r.telemetry != nil {
		r.telemetry.RecordDownloadedBytes(result.Picture.Size)
	}

	r.track(ctx, result.Picture)

	return nil
}

// acquire takes the process and file locks guarding the download and archive directories.
func (r *Runner) acquire() (func(), error) {
	if !r.mu.TryLock() {
		return nil, potd.ErrCycleInProgress
	}

	if err := os.MkdirAll(filepath.Dir(r.cfg.LockFile), 0755); err != nil {
		r.mu.Unlock()

		return nil, &potd.IOError{Op: "mkdir", Path: filepath.Dir(r.cfg.LockFile), Err: err}
	}

	locked, err := r.lock.TryLock()
	if err != nil {
		r.mu.Unlock()

		return nil, &potd.IOError{Op: "lock", Path: r.cfg.LockFile, Err: err}
	}

	if !locked {
		r.mu.Unlock()

		return nil, fmt.Errorf("%w: %s is held by another process", potd.ErrCycleInProgress, r.cfg.LockFile)
	}

	return func() {
		r.lock.Unlock()
		r.mu.Unlock()
	}, nil
}

func (r *Runner) recordRotation(ctx context.Context, report *archive.Report, rotateErr error) {
	logger := logctx.LoggerFromContext(ctx)

	if r.telemetry != nil {
		failed := 0

		var rotErr *potd.RotationError
		if errors.As(rotateErr, &rotErr) {
			failed = len(rotErr.Failures)
		}

		r.telemetry.RecordRotation(len(report.Moved), failed, report.MirrorFailures)
	}

	if r.repo == nil {
		return
	}

	now := r.clock.Now()

	for _, move := range report.Moved {
		err := r.repo.MarkArchived(ctx, filepath.Base(move.From), now)

		switch {
		case errors.Is(err, storage.ErrPictureNotFound):
			logger.DebugContext(ctx, "archived file has no history record", "file", move.From)
		case err != nil:
			logger.WarnContext(ctx, "failed to record archived picture", "file", move.From, "err", err)
		}
	}
}

func (r *Runner) track(ctx context.Context, pic *downloader.Picture) {
	if r.repo == nil {
		return
	}

	err := r.repo.TrackPicture(ctx, storage.PictureRecord{
		FileName:     pic.FileName,
		SourceURL:    pic.SourceURL,
		ContentType:  pic.ContentType,
		SizeBytes:    pic.Size,
		DownloadedAt: pic.Date,
		Status:       storage.StatusDownloaded,
	})
	if err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to record downloaded picture", "file", pic.FileName, "err", err)
	}
}

func (r *Runner) notify(ctx context.Context, content string) {
	if err := r.notifier.Notify(ctx, content); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to send notification", "err", err)
	}
}
