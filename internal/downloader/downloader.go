package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/potd_downloader/internal/downloader/progress"
	"github.com/italolelis/potd_downloader/internal/logctx"
	"github.com/italolelis/potd_downloader/internal/potd"
	"github.com/spf13/afero"
)

const (
	dirPerm = 0755

	progressInterval = int64(1024 * 1024) // 1MB
)

// Picture references a downloaded file.
type Picture struct {
	Path        string    `json:"path"`
	FileName    string    `json:"file_name"`
	Extension   string    `json:"extension"`
	ContentType string    `json:"content_type"`
	SourceURL   string    `json:"source_url"`
	Size        int64     `json:"size"`
	Date        time.Time `json:"date"`
}

type Downloader struct {
	fs       afero.Fs
	client   potd.Getter
	clock    potd.Clock
	maxBytes int64
}

// NewDownloader creates a Downloader writing into fs. A maxBytes of zero means no limit.
func NewDownloader(fs afero.Fs, client potd.Getter, clock potd.Clock, maxBytes int64) *Downloader {
	if clock == nil {
		clock = potd.UTCClock{}
	}

	return &Downloader{
		fs:       fs,
		client:   client,
		clock:    clock,
		maxBytes: maxBytes,
	}
}

// Download fetches url and stores the body in destinationDir as <date>.<extension>,
// creating the directory when needed. An existing file with the same name is truncated.
func (d *Downloader) Download(ctx context.Context, url string, destinationDir string) (*Picture, error) {
	logger := logctx.LoggerFromContext(ctx).With("url", url)

	resp, err := d.client.Get(ctx, "download", url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	ext, err := Extension(resp.Header)
	if err != nil {
		logger.DebugContext(ctx, "falling back to default extension", "extension", DefaultExtension, "reason", err)

		ext = DefaultExtension
	}

	now := d.clock.Now()
	fileName := potd.FileName(now, ext)
	targetPath := filepath.Join(destinationDir, fileName)

	if err := d.fs.MkdirAll(destinationDir, dirPerm); err != nil {
		logger.ErrorContext(ctx, "failed to create download directory", "dir", destinationDir, "err", err)

		return nil, &potd.IOError{Op: "mkdir", Path: destinationDir, Err: err}
	}

	out, err := d.fs.Create(targetPath)
	if err != nil {
		return nil, &potd.FileCreateError{Path: targetPath, Err: err}
	}

	written, err := d.writeFile(ctx, out, resp.Body, url, targetPath, resp.ContentLength)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = &potd.WriteError{Path: targetPath, Err: closeErr}
	}

	if err != nil {
		if rmErr := d.fs.Remove(targetPath); rmErr != nil {
			logger.WarnContext(ctx, "failed to remove partial download", "file_path", targetPath, "err", rmErr)
		}

		return nil, err
	}

	logger.InfoContext(ctx, "downloaded and saved picture", "target", targetPath, "size", humanize.Bytes(uint64(written)))

	return &Picture{
		Path:        targetPath,
		FileName:    fileName,
		Extension:   ext,
		ContentType: resp.Header.Get("Content-Type"),
		SourceURL:   url,
		Size:        written,
		Date:        now,
	}, nil
}

// writeFile streams reader into out, telling body read failures apart from disk write failures.
func (d *Downloader) writeFile(ctx context.Context, out io.Writer, body io.Reader, url, targetPath string, totalBytes int64) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	if totalBytes > 0 {
		logger.DebugContext(ctx, "downloading picture", "file_path", targetPath, "file_size", humanize.Bytes(uint64(totalBytes)))
	}

	if d.maxBytes > 0 && totalBytes > d.maxBytes {
		return 0, &potd.BodyReadError{URL: url, Err: fmt.Errorf("content length %s exceeds limit of %s",
			humanize.Bytes(uint64(totalBytes)), humanize.Bytes(uint64(d.maxBytes)))}
	}

	src := &recordingReader{r: body}

	var reader io.Reader = src
	if d.maxBytes > 0 {
		reader = io.LimitReader(src, d.maxBytes+1)
	}

	pr := progress.NewReader(reader, totalBytes, progressInterval, func(read int64, total int64) {
		if total > 0 {
			logger.DebugContext(ctx, "download progress",
				"downloaded", humanize.Bytes(uint64(read)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(read)*100/float64(total), 2))
		} else {
			logger.DebugContext(ctx, "download progress", "downloaded", humanize.Bytes(uint64(read)))
		}
	})

	written, err := io.Copy(out, pr)
	if err != nil {
		if src.err != nil {
			return written, &potd.BodyReadError{URL: url, Err: src.err}
		}

		return written, &potd.WriteError{Path: targetPath, Err: err}
	}

	if d.maxBytes > 0 && written > d.maxBytes {
		return written, &potd.BodyReadError{URL: url, Err: fmt.Errorf("body exceeds limit of %s", humanize.Bytes(uint64(d.maxBytes)))}
	}

	return written, nil
}

// recordingReader remembers the first non-EOF error returned by r.
type recordingReader struct {
	r   io.Reader
	err error
}

func (rr *recordingReader) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && rr.err == nil {
		rr.err = err
	}

	return n, err
}
