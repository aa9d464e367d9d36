// Package archive moves previously downloaded pictures out of the download directory.
//
// A rotation walks the download directory, skipping hidden entries below the root, and
// renames every regular file into the archive directory. The archive is append-only:
// nothing here ever deletes from it, and a file with the same name is overwritten.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/italolelis/potd_downloader/internal/logctx"
	"github.com/italolelis/potd_downloader/internal/potd"
	"github.com/spf13/afero"
)

const dirPerm = 0755

// Mirror receives a copy of every archived file, e.g. an object storage bucket.
type Mirror interface {
	Name() string
	Upload(ctx context.Context, key string, data io.Reader) error
}

// Move describes one file relocated by a rotation.
type Move struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Report summarizes a rotation.
type Report struct {
	Moved          []Move `json:"moved"`
	MirrorFailures int    `json:"mirror_failures"`
}

type Rotator struct {
	fs         afero.Fs
	mirrorTree bool
	mirror     Mirror
}

type Option func(*Rotator)

// WithMirror uploads every archived file to m after it has been moved.
func WithMirror(m Mirror) Option {
	return func(r *Rotator) {
		r.mirror = m
	}
}

// WithTreeLayout keeps the subdirectory structure of the download directory in the
// archive instead of flattening every file into the archive root.
func WithTreeLayout() Option {
	return func(r *Rotator) {
		r.mirrorTree = true
	}
}

func NewRotator(fs afero.Fs, opts ...Option) *Rotator {
	r := &Rotator{fs: fs}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Rotate moves every regular file found under downloadDir into archiveDir, creating both
// directories when missing. A file that cannot be moved does not stop the rotation; all
// failures are returned together as a *potd.RotationError.
func (r *Rotator) Rotate(ctx context.Context, downloadDir, archiveDir string) (*Report, error) {
	logger := logctx.LoggerFromContext(ctx).With("download_dir", downloadDir, "archive_dir", archiveDir)

	for _, dir := range []string{downloadDir, archiveDir} {
		if err := r.fs.MkdirAll(dir, dirPerm); err != nil {
			logger.ErrorContext(ctx, "failed to create directory", "dir", dir, "err", err)

			return nil, &potd.IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}

	files, err := r.collect(downloadDir, archiveDir)
	if err != nil {
		return nil, err
	}

	report := &Report{}

	var failures []*potd.IOError

	targets := make(map[string]string, len(files))

	for _, rel := range files {
		key := r.key(rel)
		from := filepath.Join(downloadDir, rel)
		to := filepath.Join(archiveDir, key)

		if err := ctx.Err(); err != nil {
			return report, &potd.IOError{Op: "rename", Path: from, Err: err}
		}

		if prev, ok := targets[to]; ok {
			logger.WarnContext(ctx, "archive name collision, last file wins", "target", to, "previous", prev, "file", from)
		}

		targets[to] = from

		if err := r.move(from, to); err != nil {
			logger.ErrorContext(ctx, "failed to archive file", "file", from, "target", to, "err", err)

			failures = append(failures, &potd.IOError{Op: "rename", Path: from, Err: err})

			continue
		}

		logger.DebugContext(ctx, "archived file", "file", from, "target", to)

		report.Moved = append(report.Moved, Move{From: from, To: to})

		if r.mirror != nil {
			if err := r.upload(ctx, to, filepath.ToSlash(key)); err != nil {
				logger.WarnContext(ctx, "failed to mirror archived file", "mirror", r.mirror.Name(), "file", to, "err", err)

				report.MirrorFailures++
			}
		}
	}

	logger.InfoContext(ctx, "rotation finished", "moved", len(report.Moved), "failed", len(failures))

	if len(failures) > 0 {
		return report, &potd.RotationError{Failures: failures}
	}

	return report, nil
}

// collect returns the paths, relative to root, of the regular files to archive.
// Only root itself is exempt from the hidden check: a hidden file directly under root
// (depth 1) is skipped like any deeper one, and hidden directories are not entered.
// An archive directory nested in root is never walked.
func (r *Rotator) collect(root, archiveDir string) ([]string, error) {
	var files []string

	err := afero.Walk(r.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if path == root {
			return nil
		}

		if info.IsDir() && filepath.Clean(path) == filepath.Clean(archiveDir) {
			return filepath.SkipDir
		}

		if strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, rel)

		return nil
	})
	if err != nil {
		return nil, &potd.IOError{Op: "walk", Path: root, Err: err}
	}

	return files, nil
}

// key is the path of an archived file relative to the archive directory.
func (r *Rotator) key(rel string) string {
	if r.mirrorTree {
		return rel
	}

	return filepath.Base(rel)
}

func (r *Rotator) move(from, to string) error {
	if r.mirrorTree {
		if err := r.fs.MkdirAll(filepath.Dir(to), dirPerm); err != nil {
			return fmt.Errorf("failed to create archive subdirectory: %w", err)
		}
	}

	return r.fs.Rename(from, to)
}

func (r *Rotator) upload(ctx context.Context, path, key string) error {
	f, err := r.fs.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archived file: %w", err)
	}
	defer f.Close()

	return r.mirror.Upload(ctx, key, f)
}
