package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/inventory/internal/domain"
	"github.com/vbonduro/inventory/internal/photostore"
)

// sniffLen is the number of leading bytes inspected for content type detection.
const sniffLen = 512

type LocalPhotoStore struct {
	basePath string
	now      func() time.Time
}

func NewLocalPhotoStore(basePath string) (*LocalPhotoStore, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid photo directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	return &LocalPhotoStore{basePath: abs, now: time.Now}, nil
}

// Save streams r into the cache directory under a freshly generated name that
// keeps the extension of originalName. The file only appears under its final
// name once fully written.
func (s *LocalPhotoStore) Save(ctx context.Context, originalName string, r io.Reader) (photostore.SavedPhoto, error) {
	if err := ctx.Err(); err != nil {
		return photostore.SavedPhoto{}, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return photostore.SavedPhoto{}, fmt.Errorf("failed to read photo: %w", err)
	}
	head = head[:n]

	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return photostore.SavedPhoto{}, fmt.Errorf("failed to create file: %w", err)
	}
	tmpPath := tmp.Name()
	discard := func() {
		if cerr := tmp.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			slog.Error("failed to close file after write error", "error", cerr)
		}
		if rerr := os.Remove(tmpPath); rerr != nil {
			slog.Error("failed to remove file after write error", "error", rerr)
		}
	}

	size, err := io.Copy(tmp, io.MultiReader(bytes.NewReader(head), r))
	if err != nil {
		discard()
		return photostore.SavedPhoto{}, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		discard()
		return photostore.SavedPhoto{}, fmt.Errorf("failed to close file: %w", err)
	}

	name := s.generateName(originalName)
	if err := os.Rename(tmpPath, filepath.Join(s.basePath, name)); err != nil {
		discard()
		return photostore.SavedPhoto{}, fmt.Errorf("failed to move file into place: %w", err)
	}

	return photostore.SavedPhoto{Name: name, MimeType: DetectMIME(head), Size: size}, nil
}

func (s *LocalPhotoStore) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	filePath, err := s.Resolve(name)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", domain.ErrPhotoFileMissing
		}
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		_ = f.Close()
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, "", fmt.Errorf("failed to rewind file: %w", err)
	}
	return f, DetectMIME(head[:n]), nil
}

func (s *LocalPhotoStore) Delete(ctx context.Context, name string) error {
	filePath, err := s.Resolve(name)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return domain.ErrPhotoFileMissing
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Resolve reduces name to its base component and joins it with the cache
// directory, so references like "/inventory-photo/../../etc/passwd" can never
// leave it.
func (s *LocalPhotoStore) Resolve(name string) (string, error) {
	base := filepath.Base(filepath.FromSlash(strings.TrimSpace(name)))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid photo reference %q", name)
	}
	return filepath.Join(s.basePath, base), nil
}

func (s *LocalPhotoStore) generateName(originalName string) string {
	return fmt.Sprintf("%d_%s%s", s.now().UnixNano(), uuid.NewString()[:8], cleanExt(originalName))
}

// cleanExt returns the lower-cased extension of name, or "" when it is not a
// short alphanumeric suffix.
func cleanExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filepath.FromSlash(name))))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

// DetectMIME sniffs the content type of a file from its leading bytes.
// net/http.DetectContentType has no WebP signature, so that is checked first.
func DetectMIME(head []byte) string {
	if isWebP(head) {
		return "image/webp"
	}
	return http.DetectContentType(head)
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}
