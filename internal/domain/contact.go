package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Document field names shared by every contact store.
const (
	FieldID                = "_id"
	FieldEmail             = "email"
	FieldVenue             = "venue"
	FieldShowDate          = "show_date"
	FieldShowTime          = "show_time"
	FieldTicketType        = "ticket_type"
	FieldFirstName         = "first_name"
	FieldLastName          = "last_name"
	FieldTickets           = "tickets"
	FieldPhone             = "phone"
	FieldSource            = "source"
	FieldAcquisitionSource = "acquisition_source"

	FieldExported         = "added_to_mailerlite"
	FieldExportedAt       = "mailerlite_added_date"
	FieldUpdatedAt        = "updated_at"
	FieldFailedAt         = "failed_at"
	FieldFailureReason    = "failure_reason"
	FieldSourceCollection = "_collection_source"
)

// FailureReasonImportFailed tags every quarantined contact.
const FailureReasonImportFailed = "mailerlite_import_failed"

// ExportState is the tri-state export marker of a contact document.
type ExportState int

const (
	// ExportUnset means the export field is absent from the document.
	ExportUnset ExportState = iota
	// ExportPending means the field is present and explicitly false.
	ExportPending
	// Exported means the contact was confirmed by MailerLite.
	Exported
)

func (s ExportState) String() string {
	switch s {
	case ExportPending:
		return "false"
	case Exported:
		return "true"
	default:
		return "missing"
	}
}

// Contact is one document from a venue's source collection.
type Contact struct {
	ID                string
	RawID             any // store-native id (ObjectID, int, string); nil when unknown
	Email             string
	Venue             string
	ShowDate          string
	ShowTime          string
	TicketType        string
	FirstName         string
	LastName          string
	Tickets           int
	Phone             string
	Source            string
	AcquisitionSource string
	ExportState       ExportState

	// Document is the complete stored document, kept so a quarantine copy
	// carries every field the upstream ingestion wrote.
	Document map[string]any
}

// ContactFromDocument maps a raw store document onto a Contact. Missing
// optional fields become "", a missing ticket count becomes 1.
func ContactFromDocument(id string, doc map[string]any) Contact {
	c := Contact{
		ID:                id,
		Email:             stringField(doc, FieldEmail),
		Venue:             stringField(doc, FieldVenue),
		ShowDate:          stringField(doc, FieldShowDate),
		ShowTime:          stringField(doc, FieldShowTime),
		TicketType:        stringField(doc, FieldTicketType),
		FirstName:         stringField(doc, FieldFirstName),
		LastName:          stringField(doc, FieldLastName),
		Tickets:           intField(doc, FieldTickets, 1),
		Phone:             stringField(doc, FieldPhone),
		Source:            stringField(doc, FieldSource),
		AcquisitionSource: stringField(doc, FieldAcquisitionSource),
		Document:          doc,
	}
	if v, ok := doc[FieldExported]; ok {
		if b, isBool := v.(bool); isBool && b {
			c.ExportState = Exported
		} else {
			c.ExportState = ExportPending
		}
	}
	return c
}

func stringField(doc map[string]any, key string) string {
	switch v := doc[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

func intField(doc map[string]any, key string, def int) int {
	switch v := doc[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// EligibleContact is a contact whose show has already happened and which has
// not yet been exported, tagged with the collection it was read from.
type EligibleContact struct {
	Contact
	Collection string
	EventDate  time.Time
}

// QuarantineRecord is the copy of a failed contact written to the
// quarantine collection.
type QuarantineRecord struct {
	SourceCollection string
	Email            string
	FailedAt         time.Time
	FailureReason    string
	Document         map[string]any
}

// NewQuarantineRecord builds the quarantine copy of an eligible contact.
func NewQuarantineRecord(c EligibleContact, failedAt time.Time) QuarantineRecord {
	return QuarantineRecord{
		SourceCollection: c.Collection,
		Email:            c.Email,
		FailedAt:         failedAt,
		FailureReason:    FailureReasonImportFailed,
		Document:         c.Document,
	}
}

// Doc returns the document to insert: the original fields plus failure
// metadata. The original document map is not modified.
func (q QuarantineRecord) Doc() map[string]any {
	out := make(map[string]any, len(q.Document)+3)
	for k, v := range q.Document {
		out[k] = v
	}
	if _, ok := out[FieldEmail]; !ok {
		out[FieldEmail] = q.Email
	}
	out[FieldSourceCollection] = q.SourceCollection
	out[FieldFailedAt] = q.FailedAt
	out[FieldFailureReason] = q.FailureReason
	return out
}
