package contactsync

import (
	"github.com/ignite/mailerlite-sync/internal/domain"
	"github.com/ignite/mailerlite-sync/internal/pkg/logger"
)

// Transform validates emails and groups eligible contacts by their raw venue
// string. Contacts with an invalid email are excluded from the grouping and
// their original email strings are returned for quarantine.
func Transform(contacts []domain.EligibleContact, log *logger.Logger) (*domain.VenueItems, []string) {
	grouped := domain.NewVenueItems()
	var invalid []string

	for _, c := range contacts {
		if !domain.IsValidEmail(c.Email) {
			log.Warn("Invalid email format", "email", c.Email, "collection", c.Collection)
			invalid = append(invalid, c.Email)
			continue
		}

		grouped.Add(c.Venue, domain.UploadItem{
			Email:      c.Email,
			Venue:      c.Venue,
			ShowDate:   c.ShowDate,
			ShowTime:   c.ShowTime,
			TicketType: c.TicketType,
			FirstName:  c.FirstName,
			LastName:   c.LastName,
			Tickets:    c.Tickets,
			Phone:      c.Phone,
			Source:     c.Source,
		})
	}

	log.Info("Transformed contacts", "valid", grouped.Len(), "invalid", len(invalid), "venues", len(grouped.Venues()))
	return grouped, invalid
}
