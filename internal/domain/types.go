package domain

import "time"

// Item is one inventory record. The JSON shape is the on-disk and on-wire
// representation.
type Item struct {
	ID          int64   `json:"id"`
	Name        string  `json:"inventory_name"`
	Description string  `json:"description"`
	PhotoPath   *string `json:"photoPath"`
}

// HasPhoto reports whether a photo reference is associated with the item.
func (i *Item) HasPhoto() bool {
	return i.PhotoPath != nil && *i.PhotoPath != ""
}

// Upload is one photo landed in the cache directory, as recorded by the ledger.
type Upload struct {
	ID           int64     `json:"id"`
	StorageKey   string    `json:"storage_key"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	UploadedAt   time.Time `json:"uploaded_at"`
}
