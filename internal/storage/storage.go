package storage

import (
	"context"
	"errors"
	"time"
)

const (
	StatusDownloaded = "downloaded"
	StatusArchived   = "archived"
)

var ErrPictureNotFound = errors.New("picture not found")

// PictureRecord represents a picture fetched by a cycle.
type PictureRecord struct {
	ID           int64      `json:"id"`
	FileName     string     `json:"file_name"`
	SourceURL    string     `json:"source_url"`
	ContentType  string     `json:"content_type"`
	SizeBytes    int64      `json:"size_bytes"`
	DownloadedAt time.Time  `json:"downloaded_at"`
	Status       string     `json:"status"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
}

type PictureReadRepository interface {
	GetPictures(ctx context.Context, limit int) ([]PictureRecord, error)
}

type PictureWriteRepository interface {
	TrackPicture(ctx context.Context, record PictureRecord) error
	// MarkArchived flags the most recent record with fileName as moved to the archive.
	MarkArchived(ctx context.Context, fileName string, at time.Time) error
}

type PictureRepository interface {
	PictureReadRepository
	PictureWriteRepository
}
