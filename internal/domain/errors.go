package domain

import "errors"

var (
	ErrMissingName      = errors.New("inventory name is required")
	ErrNotFound         = errors.New("item not found")
	ErrNoPhoto          = errors.New("item has no photo")
	ErrPhotoFileMissing = errors.New("photo file is missing")
	ErrNoPhotoSupplied  = errors.New("photo file is required")
	ErrCorruptState     = errors.New("inventory state file is corrupt")
)
