package contactsync

import "errors"

// Sentinel errors for the contact sync service layer.
var (
	ErrNoCollections = errors.New("no source collections configured")
	ErrNilRepository = errors.New("contact repository is required")
	ErrNilBatcher    = errors.New("mailerlite batcher is required")
)
