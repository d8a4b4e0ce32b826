package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/inventory/internal/domain"
)

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func TestLocalPhotoStoreSaveAndOpen(t *testing.T) {
	tmpdir := t.TempDir()
	store, err := NewLocalPhotoStore(tmpdir)
	require.NoError(t, err)

	ctx := context.Background()

	saved, err := store.Save(ctx, "drill.JPG", bytes.NewReader(jpegHeader))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d+_[0-9a-f]{8}\.jpg$`), saved.Name)
	assert.Equal(t, "image/jpeg", saved.MimeType)
	assert.Equal(t, int64(len(jpegHeader)), saved.Size)

	reader, mimeType, err := store.Open(ctx, saved.Name)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, "image/jpeg", mimeType)

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, jpegHeader, data)
}

func TestLocalPhotoStoreSaveLargePayload(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("x"), 3*sniffLen+7)
	saved, err := store.Save(context.Background(), "notes.txt", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), saved.Size)

	path, err := store.Resolve(saved.Name)
	require.NoError(t, err)
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, onDisk)
}

func TestLocalPhotoStoreNamesAreUnique(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		saved, err := store.Save(context.Background(), "a.png", bytes.NewReader([]byte("data")))
		require.NoError(t, err)
		assert.False(t, seen[saved.Name], "duplicate name %s", saved.Name)
		seen[saved.Name] = true
	}
}

func TestLocalPhotoStoreLeavesNoTempFiles(t *testing.T) {
	tmpdir := t.TempDir()
	store, err := NewLocalPhotoStore(tmpdir)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "a.gif", bytes.NewReader([]byte("GIF89a")))
	require.NoError(t, err)

	entries, err := os.ReadDir(tmpdir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), ".upload-")
}

func TestLocalPhotoStoreDelete(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	saved, err := store.Save(ctx, "a.jpg", bytes.NewReader(jpegHeader))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, saved.Name))

	_, _, err = store.Open(ctx, saved.Name)
	assert.ErrorIs(t, err, domain.ErrPhotoFileMissing)
}

func TestLocalPhotoStoreNotFound(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Open(context.Background(), "nonexistent.jpg")
	assert.ErrorIs(t, err, domain.ErrPhotoFileMissing)
}

func TestLocalPhotoStoreResolveStripsDirectories(t *testing.T) {
	tmpdir := t.TempDir()
	store, err := NewLocalPhotoStore(tmpdir)
	require.NoError(t, err)

	tests := []struct {
		ref  string
		want string
	}{
		{ref: "/inventory-photo/123_abc.jpg", want: "123_abc.jpg"},
		{ref: "../../etc/passwd", want: "passwd"},
		{ref: "plain.png", want: "plain.png"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := store.Resolve(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(store.basePath, tt.want), got)
		})
	}

	for _, bad := range []string{"", "..", "/"} {
		_, err := store.Resolve(bad)
		assert.Error(t, err, "reference %q", bad)
	}
}

func TestCleanExt(t *testing.T) {
	assert.Equal(t, ".jpg", cleanExt("Photo.JPG"))
	assert.Equal(t, ".webp", cleanExt("dir/x.webp"))
	assert.Equal(t, "", cleanExt("noext"))
	assert.Equal(t, "", cleanExt("evil.j pg"))
	assert.Equal(t, "", cleanExt("trailing."))
}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "JPEG", data: jpegHeader, want: "image/jpeg"},
		{name: "PNG", data: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, want: "image/png"},
		{name: "GIF", data: []byte("GIF89a"), want: "image/gif"},
		{name: "WebP", data: append([]byte("RIFF\x00\x00\x00\x00WEBP"), make([]byte, 10)...), want: "image/webp"},
		{name: "RIFF but not WebP", data: append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 10)...), want: "audio/wave"},
		{name: "text", data: []byte("hello"), want: "text/plain; charset=utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMIME(tt.data))
		})
	}
}
