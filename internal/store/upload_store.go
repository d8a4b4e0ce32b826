package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/vbonduro/inventory/internal/domain"
)

// UploadStore is the ledger of photos landed in the cache directory.
type UploadStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewUploadStore(db *sql.DB) *UploadStore {
	return &UploadStore{db: db, now: time.Now}
}

func (s *UploadStore) Create(ctx context.Context, storageKey, originalName, mimeType string, size int64) (*domain.Upload, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO uploads (storage_key, original_name, mime_type, size_bytes, uploaded_at) VALUES (?, ?, ?, ?, ?)
	`, storageKey, originalName, mimeType, size, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to record upload: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.getByID(ctx, id)
}

func (s *UploadStore) getByID(ctx context.Context, id int64) (*domain.Upload, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, storage_key, original_name, mime_type, size_bytes, uploaded_at FROM uploads WHERE id = ?
	`, id))
}

// GetByKey returns (nil, nil) when no upload was recorded under storageKey.
func (s *UploadStore) GetByKey(ctx context.Context, storageKey string) (*domain.Upload, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, storage_key, original_name, mime_type, size_bytes, uploaded_at FROM uploads WHERE storage_key = ?
	`, storageKey))
}

func (s *UploadStore) scanOne(row *sql.Row) (*domain.Upload, error) {
	upload := &domain.Upload{}
	err := row.Scan(&upload.ID, &upload.StorageKey, &upload.OriginalName, &upload.MimeType, &upload.SizeBytes, &upload.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return upload, nil
}

// List returns every recorded upload, newest first.
func (s *UploadStore) List(ctx context.Context) ([]*domain.Upload, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, storage_key, original_name, mime_type, size_bytes, uploaded_at FROM uploads
		ORDER BY uploaded_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var uploads []*domain.Upload
	for rows.Next() {
		upload := &domain.Upload{}
		if err := rows.Scan(&upload.ID, &upload.StorageKey, &upload.OriginalName, &upload.MimeType, &upload.SizeBytes, &upload.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, upload)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating uploads: %w", err)
	}

	return uploads, nil
}

func (s *UploadStore) Delete(ctx context.Context, storageKey string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM uploads WHERE storage_key = ?
	`, storageKey)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return domain.ErrNotFound
	}

	return nil
}
