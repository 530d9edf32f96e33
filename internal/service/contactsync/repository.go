package contactsync

import (
	"context"
	"time"

	"github.com/ignite/mailerlite-sync/internal/domain"
	"github.com/ignite/mailerlite-sync/internal/mailerlite"
)

// Repository defines the data access contract for venue contact collections.
type Repository interface {
	// FindUnexported returns contacts of a collection whose export flag is
	// false or absent and whose email is present and not "", "none" or
	// "null" (case-insensitive).
	FindUnexported(ctx context.Context, collection string) ([]domain.Contact, error)

	// MarkExported sets the export flag, export date and updated_at on the
	// given contacts with one bulk update. Returns the modified count.
	MarkExported(ctx context.Context, collection string, contacts []domain.Contact, at time.Time) (int64, error)

	// InsertQuarantine writes one record to the quarantine collection.
	InsertQuarantine(ctx context.Context, rec domain.QuarantineRecord) error

	// DeleteContact removes one contact from its source collection, by
	// document id when known and by email otherwise. Returns the deleted count.
	DeleteContact(ctx context.Context, collection string, c domain.Contact) (int64, error)
}

// Batcher submits one MailerLite batch call.
type Batcher interface {
	Batch(ctx context.Context, requests []mailerlite.BatchRequest) (*mailerlite.BatchResponse, error)
}
