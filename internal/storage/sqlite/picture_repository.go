package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/potd_downloader/internal/storage"
)

// PictureRepository stores picture records in SQLite.
type PictureRepository struct {
	db *sql.DB
}

func NewPictureRepository(dbConn *sql.DB) *PictureRepository {
	return &PictureRepository{db: dbConn}
}

func (r *PictureRepository) TrackPicture(ctx context.Context, record storage.PictureRecord) error {
	status := record.Status
	if status == "" {
		status = storage.StatusDownloaded
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pictures (file_name, source_url, content_type, size_bytes, downloaded_at, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.FileName, record.SourceURL, record.ContentType, record.SizeBytes,
		record.DownloadedAt.UTC().Format(time.RFC3339), status,
	)

	return err
}

// MarkArchived sets the status of the latest non archived record named fileName to archived.
// Files rotated without a record, e.g. put there by hand, return storage.ErrPictureNotFound.
func (r *PictureRepository) MarkArchived(ctx context.Context, fileName string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE pictures SET status = ?, archived_at = ?
		WHERE id = (
			SELECT id FROM pictures
			WHERE file_name = ? AND status = ?
			ORDER BY id DESC
			LIMIT 1
		)`,
		storage.StatusArchived, at.UTC().Format(time.RFC3339), fileName, storage.StatusDownloaded,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return storage.ErrPictureNotFound
	}

	return nil
}

// GetPictures returns the most recent records first. A limit of zero or less returns all of them.
func (r *PictureRepository) GetPictures(ctx context.Context, limit int) ([]storage.PictureRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT
			id,
			file_name,
			source_url,
			content_type,
			size_bytes,
			downloaded_at,
			status,
			archived_at
		FROM pictures
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pictures []storage.PictureRecord

	for rows.Next() {
		var (
			record       storage.PictureRecord
			contentType  sql.NullString
			downloadedAt string
			archivedAt   sql.NullString
		)

		err := rows.Scan(&record.ID, &record.FileName, &record.SourceURL, &contentType,
			&record.SizeBytes, &downloadedAt, &record.Status, &archivedAt)
		if err != nil {
			return nil, err
		}

		record.ContentType = contentType.String

		record.DownloadedAt, err = time.Parse(time.RFC3339, downloadedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid downloaded_at for picture %d: %w", record.ID, err)
		}

		if archivedAt.Valid {
			at, err := time.Parse(time.RFC3339, archivedAt.String)
			if err != nil {
				return nil, fmt.Errorf("invalid archived_at for picture %d: %w", record.ID, err)
			}

			record.ArchivedAt = &at
		}

		pictures = append(pictures, record)
	}

	return pictures, rows.Err()
}
