package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/potd_downloader/internal/storage"
	"github.com/italolelis/potd_downloader/internal/telemetry"
)

// InstrumentedPictureRepository wraps PictureRepository with telemetry.
type InstrumentedPictureRepository struct {
	repo      *PictureRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedPictureRepository creates a new instrumented picture repository.
func NewInstrumentedPictureRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedPictureRepository {
	return &InstrumentedPictureRepository{
		repo:      NewPictureRepository(dbConn),
		telemetry: tel,
	}
}

// TrackPicture stores a picture record with telemetry.
func (r *InstrumentedPictureRepository) TrackPicture(ctx context.Context, record storage.PictureRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "track_picture", func(ctx context.Context) error {
		return r.repo.TrackPicture(ctx, record)
	})
}

// MarkArchived updates a picture status with telemetry.
func (r *InstrumentedPictureRepository) MarkArchived(ctx context.Context, fileName string, at time.Time) error {
	return r.telemetry.InstrumentDBOperation(ctx, "mark_archived", func(ctx context.Context) error {
		return r.repo.MarkArchived(ctx, fileName, at)
	})
}

// GetPictures retrieves picture records with telemetry.
func (r *InstrumentedPictureRepository) GetPictures(ctx context.Context, limit int) ([]storage.PictureRecord, error) {
	var result []storage.PictureRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_pictures", func(ctx context.Context) error {
		var err error

		result, err = r.repo.GetPictures(ctx, limit)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
