package photostore

import (
	"context"
	"io"
)

// SavedPhoto describes a photo that has been landed in storage.
type SavedPhoto struct {
	Name     string
	MimeType string
	Size     int64
}

type PhotoStore interface {
	Save(ctx context.Context, originalName string, r io.Reader) (SavedPhoto, error)
	Open(ctx context.Context, name string) (io.ReadCloser, string, error)
	// Resolve maps a stored photo reference to an absolute file path. Only the
	// base name of the reference is used.
	Resolve(name string) (string, error)
	Delete(ctx context.Context, name string) error
}
