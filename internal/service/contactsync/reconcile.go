package contactsync

import (
	"context"
	"time"

	"github.com/ignite/mailerlite-sync/internal/domain"
	"github.com/ignite/mailerlite-sync/internal/pkg/logger"
)

// ReconcileResult counts the store writes of one reconciliation.
type ReconcileResult struct {
	Marked      int
	Quarantined int
	Deleted     int
	Skipped     int
}

// Reconciler writes upload outcomes back to the contact store.
type Reconciler struct {
	repo Repository
	now  func() time.Time
	log  *logger.Logger
}

// NewReconciler creates a reconciler. A nil clock uses time.Now.
func NewReconciler(repo Repository, now func() time.Time, log *logger.Logger) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{repo: repo, now: now, log: log}
}

// Reconcile marks successful contacts exported and quarantines failed ones.
// Contacts in neither set are not touched.
func (r *Reconciler) Reconcile(ctx context.Context, successful, failed []string, processed []domain.EligibleContact) ReconcileResult {
	var res ReconcileResult
	res.Marked = r.MarkExported(ctx, successful, processed)
	q := r.Quarantine(ctx, failed, processed)
	res.Quarantined, res.Deleted, res.Skipped = q.Quarantined, q.Deleted, q.Skipped
	return res
}

// MarkExported flags every processed record whose email succeeded, with one
// bulk update per collection. Returns the total modified count.
func (r *Reconciler) MarkExported(ctx context.Context, successful []string, processed []domain.EligibleContact) int {
	if len(successful) == 0 {
		return 0
	}
	ok := toSet(successful)

	var collections []string
	byCollection := make(map[string][]domain.Contact)
	for _, c := range processed {
		if !ok[c.Email] {
			continue
		}
		if c.Collection == "" {
			r.log.Warn("No source collection for contact, not marking", "email", c.Email)
			continue
		}
		if _, seen := byCollection[c.Collection]; !seen {
			collections = append(collections, c.Collection)
		}
		byCollection[c.Collection] = append(byCollection[c.Collection], c.Contact)
	}

	at := r.now().UTC()
	total := 0
	for _, collection := range collections {
		contacts := byCollection[collection]
		r.log.Info("Marking contacts exported", "collection", collection, "count", len(contacts))
		n, err := r.repo.MarkExported(ctx, collection, contacts, at)
		if err != nil {
			r.log.Error("Error updating contacts", "collection", collection, "error", err)
			continue
		}
		r.log.Info("Contacts marked exported", "collection", collection, "modified", n)
		total += int(n)
	}
	return total
}

// Quarantine copies each failed record to the quarantine collection and
// deletes the original only after the copy was written.
func (r *Reconciler) Quarantine(ctx context.Context, failed []string, processed []domain.EligibleContact) ReconcileResult {
	var res ReconcileResult
	if len(failed) == 0 {
		return res
	}
	bad := toSet(failed)

	for _, c := range processed {
		if !bad[c.Email] {
			continue
		}
		if c.Collection == "" {
			r.log.Warn("No source collection for failed contact, skipping", "email", c.Email)
			res.Skipped++
			continue
		}

		rec := domain.NewQuarantineRecord(c, r.now().UTC())
		if err := r.repo.InsertQuarantine(ctx, rec); err != nil {
			r.log.Error("Error quarantining contact", "email", c.Email, "collection", c.Collection, "error", err)
			continue
		}
		res.Quarantined++

		n, err := r.repo.DeleteContact(ctx, c.Collection, c.Contact)
		switch {
		case err != nil:
			r.log.Error("Error deleting quarantined contact", "email", c.Email, "collection", c.Collection, "error", err)
		case n == 0:
			r.log.Warn("Quarantined contact not found in source", "email", c.Email, "collection", c.Collection)
		default:
			res.Deleted += int(n)
			r.log.Info("Moved failed contact to quarantine", "email", c.Email, "collection", c.Collection)
		}
	}
	return res
}

func toSet(emails []string) map[string]bool {
	set := make(map[string]bool, len(emails))
	for _, e := range emails {
		set[e] = true
	}
	return set
}
