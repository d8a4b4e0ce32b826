package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/vbonduro/inventory/internal/domain"
)

// photoResolver maps a stored photo reference to a file path inside the cache
// directory. photostore.PhotoStore satisfies it.
type photoResolver interface {
	Resolve(name string) (string, error)
}

// SearchResult is the outcome of Search: the record, and the resolved photo
// path when the photo was requested.
type SearchResult struct {
	Item      *domain.Item
	PhotoPath string
}

// ItemStore owns the inventory records and the identifier counter. Reads run
// concurrently; a mutation excludes everything else until its persistence
// write has finished. A mutation whose write fails is not applied.
type ItemStore struct {
	mu        sync.RWMutex
	items     []domain.Item
	nextID    int64
	persister Persister
	photos    photoResolver
	logger    *slog.Logger
}

// NewItemStore builds the store and, when persister is non-nil, reloads the
// collection it holds. A nil persister keeps everything in memory.
func NewItemStore(persister Persister, photos photoResolver, logger *slog.Logger) (*ItemStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ItemStore{
		nextID:    1,
		persister: persister,
		photos:    photos,
		logger:    logger,
	}
	if persister == nil {
		return s, nil
	}

	items, err := persister.Load()
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(items))
	for _, item := range items {
		if item.ID <= 0 || seen[item.ID] {
			return nil, fmt.Errorf("%w: invalid or duplicate id %d", domain.ErrCorruptState, item.ID)
		}
		seen[item.ID] = true
		if item.ID >= s.nextID {
			s.nextID = item.ID + 1
		}
	}
	s.items = items
	logger.Info("inventory loaded", "items", len(items), "next_id", s.nextID)
	return s, nil
}

func (s *ItemStore) Create(ctx context.Context, name, description string, photoPath *string) (*domain.Item, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domain.ErrMissingName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := domain.Item{
		ID:          s.nextID,
		Name:        name,
		Description: description,
		PhotoPath:   nonEmpty(photoPath),
	}
	items := append(slices.Clone(s.items), item)
	if err := s.commit(ctx, items, s.nextID+1); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "item created", "id", item.ID, "has_photo", item.HasPhoto())
	return &item, nil
}

func (s *ItemStore) List(ctx context.Context) []*domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Item, 0, len(s.items))
	for i := range s.items {
		item := s.items[i]
		out = append(out, &item)
	}
	return out
}

func (s *ItemStore) Get(ctx context.Context, id int64) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	item := s.items[i]
	return &item, nil
}

// UpdateFields overwrites only the fields that are non-nil. An explicitly
// supplied blank name is rejected so a record never loses its name.
func (s *ItemStore) UpdateFields(ctx context.Context, id int64, name, description *string) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	if name != nil && strings.TrimSpace(*name) == "" {
		return nil, domain.ErrMissingName
	}

	items := slices.Clone(s.items)
	if name != nil {
		items[i].Name = *name
	}
	if description != nil {
		items[i].Description = *description
	}
	if err := s.commit(ctx, items, s.nextID); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "item updated", "id", id)
	item := items[i]
	return &item, nil
}

// UpdatePhoto replaces the photo reference. The previous photo file is left
// in place.
func (s *ItemStore) UpdatePhoto(ctx context.Context, id int64, photoPath string) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	if strings.TrimSpace(photoPath) == "" {
		return nil, domain.ErrNoPhotoSupplied
	}

	items := slices.Clone(s.items)
	items[i].PhotoPath = &photoPath
	if err := s.commit(ctx, items, s.nextID); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "item photo updated", "id", id, "photo", photoPath)
	item := items[i]
	return &item, nil
}

// Delete removes the record. Its id is never handed out again and its photo
// file is left in place.
func (s *ItemStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.ErrNotFound
	}

	items := slices.Delete(slices.Clone(s.items), i, i+1)
	if err := s.commit(ctx, items, s.nextID); err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "item deleted", "id", id)
	return nil
}

// FindPhotoPath resolves the record's photo reference to a file that exists
// in the cache directory.
func (s *ItemStore) FindPhotoPath(ctx context.Context, id int64) (string, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.resolvePhoto(item)
}

// Search looks a record up by id. With includePhoto set the resolved photo
// path is returned as well, and a missing photo is an error.
func (s *ItemStore) Search(ctx context.Context, id int64, includePhoto bool) (*SearchResult, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !includePhoto {
		return &SearchResult{Item: item}, nil
	}

	path, err := s.resolvePhoto(item)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Item: item, PhotoPath: path}, nil
}

// Len reports the number of records currently stored.
func (s *ItemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// NextID reports the identifier the next Create will assign.
func (s *ItemStore) NextID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID
}

// PhotoReferences returns the set of photo file names referenced by records.
func (s *ItemStore) PhotoReferences(ctx context.Context) map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make(map[string]bool)
	for i := range s.items {
		if s.items[i].HasPhoto() {
			refs[photoBaseName(*s.items[i].PhotoPath)] = true
		}
	}
	return refs
}

func (s *ItemStore) resolvePhoto(item *domain.Item) (string, error) {
	if !item.HasPhoto() {
		return "", domain.ErrNoPhoto
	}
	path, err := s.photos.Resolve(*item.PhotoPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPhotoFileMissing, err)
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return "", domain.ErrPhotoFileMissing
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat photo: %w", err)
	}
	return path, nil
}

// commit persists items and only then makes them the live state. Callers hold
// the write lock.
func (s *ItemStore) commit(ctx context.Context, items []domain.Item, nextID int64) error {
	if s.persister != nil {
		if err := s.persister.Save(items); err != nil {
			s.logger.ErrorContext(ctx, "failed to persist inventory", "error", err)
			return fmt.Errorf("failed to persist inventory: %w", err)
		}
	}
	s.items = items
	s.nextID = nextID
	return nil
}

func (s *ItemStore) indexOf(id int64) int {
	return slices.IndexFunc(s.items, func(item domain.Item) bool { return item.ID == id })
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := *s
	return &v
}

// photoBaseName returns the file name component of a photo reference such as
// "/inventory-photo/123_abcd1234.jpg".
func photoBaseName(ref string) string {
	if i := strings.LastIndexAny(ref, `/\`); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
