package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vbonduro/inventory/internal/domain"
	"github.com/vbonduro/inventory/internal/photostore"
	"github.com/vbonduro/inventory/internal/store"
)

// PhotoURLPrefix is prepended to a landed photo's file name to form the
// reference stored on the record.
const PhotoURLPrefix = "/inventory-photo/"

// itemRepository is the subset of store.ItemStore that InventoryService requires.
type itemRepository interface {
	Create(ctx context.Context, name, description string, photoPath *string) (*domain.Item, error)
	List(ctx context.Context) []*domain.Item
	Get(ctx context.Context, id int64) (*domain.Item, error)
	UpdateFields(ctx context.Context, id int64, name, description *string) (*domain.Item, error)
	UpdatePhoto(ctx context.Context, id int64, photoPath string) (*domain.Item, error)
	Delete(ctx context.Context, id int64) error
	FindPhotoPath(ctx context.Context, id int64) (string, error)
	Search(ctx context.Context, id int64, includePhoto bool) (*store.SearchResult, error)
	PhotoReferences(ctx context.Context) map[string]bool
	Len() int
}

// uploadRepository is the subset of store.UploadStore that InventoryService requires.
type uploadRepository interface {
	Create(ctx context.Context, storageKey, originalName, mimeType string, size int64) (*domain.Upload, error)
	GetByKey(ctx context.Context, storageKey string) (*domain.Upload, error)
	List(ctx context.Context) ([]*domain.Upload, error)
	Delete(ctx context.Context, storageKey string) error
}

// metricsRecorder is the subset of metrics.Metrics that InventoryService requires.
type metricsRecorder interface {
	SetItems(n int)
	PhotoUploaded()
}

// PhotoUpload is a photo attached to a request: the client's file name and
// the payload.
type PhotoUpload struct {
	Filename string
	Content  io.Reader
}

// UploadSummary is a ledger entry annotated with whether any record points at it.
type UploadSummary struct {
	*domain.Upload
	Referenced bool `json:"referenced"`
}

type InventoryService struct {
	items    itemRepository
	uploads  uploadRepository
	photoStg photostore.PhotoStore
	metrics  metricsRecorder
	logger   *slog.Logger
}

func NewInventoryService(
	items itemRepository,
	uploads uploadRepository,
	photoStg photostore.PhotoStore,
	metrics metricsRecorder,
	logger *slog.Logger,
) *InventoryService {
	s := &InventoryService{
		items:    items,
		uploads:  uploads,
		photoStg: photoStg,
		metrics:  metrics,
		logger:   logger,
	}
	s.refreshItemCount()
	return s
}

// RegisterItem creates a record, landing photo first when one is attached.
// The name is checked before anything touches the disk.
func (s *InventoryService) RegisterItem(ctx context.Context, name, description string, photo *PhotoUpload) (*domain.Item, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domain.ErrMissingName
	}

	var photoPath *string
	var saved *photostore.SavedPhoto
	if photo != nil {
		var err error
		saved, err = s.landPhoto(ctx, photo)
		if err != nil {
			return nil, err
		}
		ref := PhotoURLPrefix + saved.Name
		photoPath = &ref
	}

	item, err := s.items.Create(ctx, name, description, photoPath)
	if err != nil {
		if saved != nil {
			s.discardPhoto(ctx, saved.Name)
		}
		return nil, err
	}

	s.refreshItemCount()
	s.logger.Info("item registered", "id", item.ID, "has_photo", item.HasPhoto())
	return item, nil
}

func (s *InventoryService) ListItems(ctx context.Context) []*domain.Item {
	return s.items.List(ctx)
}

func (s *InventoryService) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	return s.items.Get(ctx, id)
}

func (s *InventoryService) UpdateItem(ctx context.Context, id int64, name, description *string) (*domain.Item, error) {
	return s.items.UpdateFields(ctx, id, name, description)
}

// UpdatePhoto lands photo and points the record at it. The record is checked
// first so an unknown id never leaves a file behind.
func (s *InventoryService) UpdatePhoto(ctx context.Context, id int64, photo *PhotoUpload) (*domain.Item, error) {
	if _, err := s.items.Get(ctx, id); err != nil {
		return nil, err
	}
	if photo == nil || photo.Content == nil {
		return nil, domain.ErrNoPhotoSupplied
	}

	saved, err := s.landPhoto(ctx, photo)
	if err != nil {
		return nil, err
	}

	item, err := s.items.UpdatePhoto(ctx, id, PhotoURLPrefix+saved.Name)
	if err != nil {
		s.discardPhoto(ctx, saved.Name)
		return nil, err
	}

	s.logger.Info("item photo updated", "id", id, "photo", saved.Name)
	return item, nil
}

func (s *InventoryService) DeleteItem(ctx context.Context, id int64) error {
	if err := s.items.Delete(ctx, id); err != nil {
		return err
	}
	s.refreshItemCount()
	s.logger.Info("item deleted", "id", id)
	return nil
}

// OpenItemPhoto opens the photo associated with record id.
func (s *InventoryService) OpenItemPhoto(ctx context.Context, id int64) (io.ReadCloser, string, error) {
	path, err := s.items.FindPhotoPath(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return s.photoStg.Open(ctx, path)
}

// Search returns the record for id. With includePhoto set the record's photo
// is opened as well; the caller must close it.
func (s *InventoryService) Search(ctx context.Context, id int64, includePhoto bool) (*domain.Item, io.ReadCloser, string, error) {
	res, err := s.items.Search(ctx, id, includePhoto)
	if err != nil {
		return nil, nil, "", err
	}
	if !includePhoto {
		return res.Item, nil, "", nil
	}
	rc, mimeType, err := s.photoStg.Open(ctx, res.PhotoPath)
	if err != nil {
		return nil, nil, "", err
	}
	return res.Item, rc, mimeType, nil
}

// OpenStoredPhoto serves a photo by file name. Only files some record points
// at, or that the ledger knows about, are exposed; anything else in the cache
// directory reads as missing.
func (s *InventoryService) OpenStoredPhoto(ctx context.Context, name string) (io.ReadCloser, string, error) {
	if !s.items.PhotoReferences(ctx)[name] {
		upload, err := s.uploads.GetByKey(ctx, name)
		if err != nil {
			return nil, "", err
		}
		if upload == nil {
			return nil, "", domain.ErrPhotoFileMissing
		}
	}
	return s.photoStg.Open(ctx, name)
}

// ListUploads returns the ledger, flagging entries no record references.
func (s *InventoryService) ListUploads(ctx context.Context) ([]UploadSummary, error) {
	uploads, err := s.uploads.List(ctx)
	if err != nil {
		return nil, err
	}
	refs := s.items.PhotoReferences(ctx)
	out := make([]UploadSummary, 0, len(uploads))
	for _, u := range uploads {
		out = append(out, UploadSummary{Upload: u, Referenced: refs[u.StorageKey]})
	}
	return out, nil
}

func (s *InventoryService) landPhoto(ctx context.Context, photo *PhotoUpload) (*photostore.SavedPhoto, error) {
	saved, err := s.photoStg.Save(ctx, photo.Filename, photo.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to save photo: %w", err)
	}
	s.metrics.PhotoUploaded()
	s.logger.Debug("photo saved", "name", saved.Name, "mime_type", saved.MimeType, "bytes", saved.Size)

	if _, err := s.uploads.Create(ctx, saved.Name, photo.Filename, saved.MimeType, saved.Size); err != nil {
		s.logger.Error("failed to record upload", "name", saved.Name, "error", err)
	}
	return &saved, nil
}

// discardPhoto removes a photo that was landed for an operation that then failed.
func (s *InventoryService) discardPhoto(ctx context.Context, name string) {
	if err := s.photoStg.Delete(ctx, name); err != nil {
		s.logger.Error("failed to remove photo after failed operation", "name", name, "error", err)
	}
	if err := s.uploads.Delete(ctx, name); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Error("failed to remove upload record after failed operation", "name", name, "error", err)
	}
}

func (s *InventoryService) refreshItemCount() {
	s.metrics.SetItems(s.items.Len())
}
