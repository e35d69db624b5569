package store

import "errors"

var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicateLocalName = errors.New("local_name already exists")
	ErrDuplicateURL       = errors.New("source_image_url already exists")

	// ErrConflict is a unique-key collision detected by the database after
	// the pre-checks passed. Concurrent ingestions racing on the same image
	// land here; callers treat it as "already ingested".
	ErrConflict = errors.New("record already ingested")
)
