package domain

// UploadItem is one valid-email eligible contact in MailerLite's shape.
type UploadItem struct {
	Email      string `json:"email"`
	Venue      string `json:"venue"`
	ShowDate   string `json:"show_date"`
	ShowTime   string `json:"show_time"`
	TicketType string `json:"ticket_type"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Tickets    int    `json:"tickets"`
	Phone      string `json:"phone,omitempty"`
	Source     string `json:"source"`
}

// VenueItems groups upload items by raw venue string. Venues iterate in the
// order they were first added, items in insertion order.
type VenueItems struct {
	order []string
	items map[string][]UploadItem
}

// NewVenueItems returns an empty grouping.
func NewVenueItems() *VenueItems {
	return &VenueItems{items: make(map[string][]UploadItem)}
}

// Add appends an item under the given venue key.
func (g *VenueItems) Add(venue string, item UploadItem) {
	if _, ok := g.items[venue]; !ok {
		g.order = append(g.order, venue)
	}
	g.items[venue] = append(g.items[venue], item)
}

// Venues returns the venue keys in first-seen order.
func (g *VenueItems) Venues() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.order...)
}

// Items returns the items for one venue.
func (g *VenueItems) Items(venue string) []UploadItem {
	if g == nil {
		return nil
	}
	return g.items[venue]
}

// Flatten returns every item, venue by venue.
func (g *VenueItems) Flatten() []UploadItem {
	if g == nil {
		return nil
	}
	var out []UploadItem
	for _, venue := range g.order {
		out = append(out, g.items[venue]...)
	}
	return out
}

// Len returns the total number of items.
func (g *VenueItems) Len() int {
	if g == nil {
		return 0
	}
	n := 0
	for _, items := range g.items {
		n += len(items)
	}
	return n
}
