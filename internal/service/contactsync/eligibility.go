package contactsync

import (
	"context"
	"time"

	"github.com/ignite/mailerlite-sync/internal/domain"
	"github.com/ignite/mailerlite-sync/internal/pkg/logger"
	"github.com/ignite/mailerlite-sync/internal/showdate"
)

// Selector finds contacts whose show has already happened and which have not
// been exported yet. It never writes to the store.
type Selector struct {
	repo   Repository
	parser *showdate.Parser
	log    *logger.Logger
}

// NewSelector creates a selector. A nil parser uses showdate.DefaultParser.
func NewSelector(repo Repository, parser *showdate.Parser, log *logger.Logger) *Selector {
	if parser == nil {
		parser = showdate.DefaultParser()
	}
	return &Selector{repo: repo, parser: parser, log: log}
}

// SelectEligible scans the collections in order and returns every contact
// whose show date resolves to a day strictly before the civil date of now.
// A limit > 0 caps the total across collections; once reached the remaining
// collections are not read. A failing collection is logged and skipped.
func (s *Selector) SelectEligible(ctx context.Context, collections []string, now time.Time, limit int) []domain.EligibleContact {
	today := showdate.Date(now)
	var out []domain.EligibleContact

	for _, collection := range collections {
		if limitReached(out, limit) {
			s.log.Info("Contact limit reached, skipping remaining collections", "limit", limit, "collection", collection)
			break
		}
		if err := ctx.Err(); err != nil {
			s.log.Error("Selection cancelled", "collection", collection, "error", err)
			break
		}

		contacts, err := s.repo.FindUnexported(ctx, collection)
		if err != nil {
			s.log.Error("Error querying collection", "collection", collection, "error", err)
			continue
		}

		explicitFalse, missing := 0, 0
		for _, c := range contacts {
			switch c.ExportState {
			case domain.ExportPending:
				explicitFalse++
			case domain.ExportUnset:
				missing++
			}
		}
		s.log.Info("Found unexported contacts",
			"collection", collection,
			"total", len(contacts),
			"explicit_false", explicitFalse,
			"missing_field", missing,
		)

		for _, c := range contacts {
			if limitReached(out, limit) {
				break
			}
			// The store filter already excludes these; a store that returns
			// them anyway must not cause a re-export.
			if c.ExportState == domain.Exported || domain.IsNullLike(c.Email) {
				continue
			}
			date, ok := s.parser.Parse(c.ShowDate, now)
			if !ok {
				s.log.Warn("Could not parse show date", "collection", collection, "show_date", c.ShowDate, "email", c.Email)
				continue
			}
			if !date.Before(today) {
				continue
			}
			out = append(out, domain.EligibleContact{Contact: c, Collection: collection, EventDate: date})
		}
	}

	s.log.Info("Eligible contacts selected", "count", len(out))
	return out
}

func limitReached(out []domain.EligibleContact, limit int) bool {
	return limit > 0 && len(out) >= limit
}
