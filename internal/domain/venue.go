package domain

import (
	"errors"
	"sort"
	"strings"
)

// FallbackVenue is the mapping key used for venues MailerLite has no
// dedicated group for.
const FallbackVenue = "uncategorized"

// UnknownGroup names a group id that is not present in the mapping.
const UnknownGroup = "unknown"

// ErrNoFallbackGroup is returned when the mapping lacks the fallback key.
var ErrNoFallbackGroup = errors.New("venue mapping has no fallback group")

// VenueGroups maps normalized venue names to MailerLite group ids.
type VenueGroups struct {
	groups   map[string]string
	names    map[string]string
	fallback string
}

// NewVenueGroups normalizes the given venue → group id table. fallbackKey
// must be one of the keys (case-insensitive).
func NewVenueGroups(groups map[string]string, fallbackKey string) (VenueGroups, error) {
	v := VenueGroups{
		groups:   make(map[string]string, len(groups)),
		names:    make(map[string]string, len(groups)),
		fallback: NormalizeVenue(fallbackKey),
	}
	keys := make([]string, 0, len(groups))
	for venue, id := range groups {
		key := NormalizeVenue(venue)
		v.groups[key] = id
		keys = append(keys, key)
	}
	if _, ok := v.groups[v.fallback]; !ok {
		return VenueGroups{}, ErrNoFallbackGroup
	}
	// Reverse lookup: the alphabetically first venue wins on shared ids.
	sort.Strings(keys)
	for _, key := range keys {
		id := v.groups[key]
		if _, seen := v.names[id]; !seen {
			v.names[id] = key
		}
	}
	return v, nil
}

// DefaultVenueGroups returns the production MailerLite group table.
func DefaultVenueGroups() VenueGroups {
	v, _ := NewVenueGroups(map[string]string{
		"townhouse":                  "143572270449690387",
		"stowaway":                   "143572260771333843",
		"citizen":                    "143572251965392675",
		"church":                     "143572232163034114",
		"palace":                     "143571926962407099",
		"blind barber fulton market": "148048384759956607",
		FallbackVenue:                "143572290783675542",
	}, FallbackVenue)
	return v
}

// NormalizeVenue lowercases and trims a venue string for lookup.
func NormalizeVenue(venue string) string {
	return strings.ToLower(strings.TrimSpace(venue))
}

// GroupResolution is the outcome of mapping one venue string.
type GroupResolution struct {
	ID   string
	Name string
	// Matched is false when the fallback group was used.
	Matched bool
}

// Resolve maps a raw venue string to its group. Unknown and empty venues
// resolve to the fallback group with Matched=false.
func (v VenueGroups) Resolve(venue string) GroupResolution {
	key := NormalizeVenue(venue)
	if key == "" {
		key = v.fallback
	}
	if id, ok := v.groups[key]; ok && key != v.fallback {
		return GroupResolution{ID: id, Name: key, Matched: true}
	}
	return GroupResolution{ID: v.groups[v.fallback], Name: v.fallback}
}

// NameFor reverse-maps a group id to its venue name, or UnknownGroup.
func (v VenueGroups) NameFor(groupID string) string {
	if name, ok := v.names[groupID]; ok {
		return name
	}
	return UnknownGroup
}

// Len returns the number of venues in the mapping, fallback included.
func (v VenueGroups) Len() int { return len(v.groups) }
