package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/inventory/internal/db"
	"github.com/vbonduro/inventory/internal/domain"
	"github.com/vbonduro/inventory/internal/photostore/local"
	"github.com/vbonduro/inventory/internal/store"
)

var minimalJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

// brokenPersister fails every save.
type brokenPersister struct{}

func (brokenPersister) Load() ([]domain.Item, error) { return nil, nil }
func (brokenPersister) Save([]domain.Item) error     { return errors.New("read-only filesystem") }

// stubMetrics records what the service reports.
type stubMetrics struct {
	mu      sync.Mutex
	items   int
	uploads int
}

func (m *stubMetrics) SetItems(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = n
}

func (m *stubMetrics) PhotoUploaded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
}

type testEnv struct {
	svc      *InventoryService
	items    *store.ItemStore
	uploads  *store.UploadStore
	metrics  *stubMetrics
	cacheDir string
}

func newTestEnv(t *testing.T, persister store.Persister) *testEnv {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, d.Close()) })

	cacheDir := t.TempDir()
	photos, err := local.NewLocalPhotoStore(cacheDir)
	require.NoError(t, err)

	items, err := store.NewItemStore(persister, photos, slog.Default())
	require.NoError(t, err)

	uploads := store.NewUploadStore(d)
	m := &stubMetrics{}
	return &testEnv{
		svc:      NewInventoryService(items, uploads, photos, m, slog.Default()),
		items:    items,
		uploads:  uploads,
		metrics:  m,
		cacheDir: cacheDir,
	}
}

func jpegUpload(name string) *PhotoUpload {
	return &PhotoUpload{Filename: name, Content: bytes.NewReader(minimalJPEG)}
}

func photoFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestInventoryServiceRegisterItem(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	item, err := env.svc.RegisterItem(ctx, "Drill", "Cordless drill", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), item.ID)
	assert.Nil(t, item.PhotoPath)
	assert.Empty(t, photoFiles(t, env.cacheDir))
	assert.Equal(t, 1, env.metrics.items)
	assert.Zero(t, env.metrics.uploads)
}

func TestInventoryServiceRegisterItem_WithPhoto(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	item, err := env.svc.RegisterItem(ctx, "Drill", "", jpegUpload("drill.jpg"))
	require.NoError(t, err)
	require.NotNil(t, item.PhotoPath)
	assert.True(t, strings.HasSuffix(*item.PhotoPath, ".jpg"))

	files := photoFiles(t, env.cacheDir)
	require.Len(t, files, 1)
	assert.Equal(t, PhotoURLPrefix+files[0], *item.PhotoPath)

	upload, err := env.uploads.GetByKey(ctx, files[0])
	require.NoError(t, err)
	require.NotNil(t, upload)
	assert.Equal(t, "drill.jpg", upload.OriginalName)
	assert.Equal(t, "image/jpeg", upload.MimeType)
	assert.Equal(t, int64(len(minimalJPEG)), upload.SizeBytes)
	assert.Equal(t, 1, env.metrics.uploads)
}

func TestInventoryServiceRegisterItem_MissingNameLandsNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.RegisterItem(ctx, "  ", "desc", jpegUpload("drill.jpg"))
	assert.ErrorIs(t, err, domain.ErrMissingName)

	assert.Empty(t, photoFiles(t, env.cacheDir))
	assert.Equal(t, 0, env.items.Len())
	assert.Equal(t, int64(1), env.items.NextID())
}

func TestInventoryServiceRegisterItem_PersistFailureDiscardsPhoto(t *testing.T) {
	env := newTestEnv(t, brokenPersister{})
	ctx := context.Background()

	_, err := env.svc.RegisterItem(ctx, "Drill", "", jpegUpload("drill.jpg"))
	require.Error(t, err)

	assert.Empty(t, photoFiles(t, env.cacheDir))
	uploads, err := env.uploads.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, uploads)
}

func TestInventoryServiceUpdatePhoto(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.RegisterItem(ctx, "Drill", "Cordless drill", nil)
	require.NoError(t, err)

	updated, err := env.svc.UpdatePhoto(ctx, 1, jpegUpload("new.png"))
	require.NoError(t, err)
	require.NotNil(t, updated.PhotoPath)
	assert.Equal(t, "Drill", updated.Name)
	assert.Equal(t, "Cordless drill", updated.Description)
	assert.True(t, strings.HasSuffix(*updated.PhotoPath, ".png"))

	rc, mimeType, err := env.svc.OpenItemPhoto(ctx, 1)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, minimalJPEG, data)
	assert.Equal(t, "image/jpeg", mimeType)
}

func TestInventoryServiceUpdatePhoto_KeepsOldFile(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.RegisterItem(ctx, "Drill", "", jpegUpload("a.jpg"))
	require.NoError(t, err)
	_, err = env.svc.UpdatePhoto(ctx, 1, jpegUpload("b.jpg"))
	require.NoError(t, err)

	assert.Len(t, photoFiles(t, env.cacheDir), 2)
}

func TestInventoryServiceUpdatePhoto_UnknownItemLandsNothing(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.svc.UpdatePhoto(context.Background(), 5, jpegUpload("a.jpg"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, photoFiles(t, env.cacheDir))
}

func TestInventoryServiceUpdatePhoto_NoPhotoSupplied(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.RegisterItem(ctx, "Drill", "", nil)
	require.NoError(t, err)

	_, err = env.svc.UpdatePhoto(ctx, 1, nil)
	assert.ErrorIs(t, err, domain.ErrNoPhotoSupplied)
}

func TestInventoryServiceOpenItemPhoto_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, _, err := env.svc.OpenItemPhoto(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.RegisterItem(ctx, "Drill", "", nil)
	require.NoError(t, err)
	_, _, err = env.svc.OpenItemPhoto(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNoPhoto)

	item, err := env.svc.UpdatePhoto(ctx, 1, jpegUpload("a.jpg"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(env.cacheDir, filepath.Base(*item.PhotoPath))))

	_, _, err = env.svc.OpenItemPhoto(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrPhotoFileMissing)
}

func TestInventoryServiceSearch(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.RegisterItem(ctx, "Drill", "Cordless drill", nil)
	require.NoError(t, err)

	item, rc, _, err := env.svc.Search(ctx, 1, false)
	require.NoError(t, err)
	assert.Nil(t, rc)
	got, err := env.svc.GetItem(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, got, item)

	_, _, _, err = env.svc.Search(ctx, 1, true)
	assert.ErrorIs(t, err, domain.ErrNoPhoto)

	_, err = env.svc.UpdatePhoto(ctx, 1, jpegUpload("a.jpg"))
	require.NoError(t, err)

	_, rc, mimeType, err := env.svc.Search(ctx, 1, true)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "image/jpeg", mimeType)

	_, _, _, err = env.svc.Search(ctx, 2, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInventoryServiceDeleteItem(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.RegisterItem(ctx, "Drill", "", jpegUpload("a.jpg"))
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteItem(ctx, 1))
	assert.ErrorIs(t, env.svc.DeleteItem(ctx, 1), domain.ErrNotFound)

	_, err = env.svc.GetItem(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Len(t, photoFiles(t, env.cacheDir), 1, "photo file is not removed with the record")
	assert.Equal(t, 0, env.metrics.items)
}

func TestInventoryServiceUpdateItem(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.RegisterItem(ctx, "Drill", "Cordless drill", nil)
	require.NoError(t, err)

	desc := "18V cordless drill"
	updated, err := env.svc.UpdateItem(ctx, 1, nil, &desc)
	require.NoError(t, err)
	assert.Equal(t, "Drill", updated.Name)
	assert.Equal(t, desc, updated.Description)

	assert.Len(t, env.svc.ListItems(ctx), 1)
}

func TestInventoryServiceListUploads(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.RegisterItem(ctx, "Drill", "", jpegUpload("a.jpg"))
	require.NoError(t, err)
	_, err = env.svc.UpdatePhoto(ctx, 1, jpegUpload("b.jpg"))
	require.NoError(t, err)

	uploads, err := env.svc.ListUploads(ctx)
	require.NoError(t, err)
	require.Len(t, uploads, 2)

	referenced := 0
	for _, u := range uploads {
		if u.Referenced {
			referenced++
			assert.Equal(t, "b.jpg", u.OriginalName)
		}
	}
	assert.Equal(t, 1, referenced)
}

func TestInventoryServiceOpenStoredPhoto(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	item, err := env.svc.RegisterItem(ctx, "Drill", "", jpegUpload("a.jpg"))
	require.NoError(t, err)

	rc, _, err := env.svc.OpenStoredPhoto(ctx, filepath.Base(*item.PhotoPath))
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	// Files in the cache directory that are not photos stay hidden.
	require.NoError(t, os.WriteFile(filepath.Join(env.cacheDir, "inventory.json"), []byte("[]"), 0644))
	_, _, err = env.svc.OpenStoredPhoto(ctx, "inventory.json")
	assert.ErrorIs(t, err, domain.ErrPhotoFileMissing)
}
