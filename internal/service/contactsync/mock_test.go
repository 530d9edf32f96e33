package contactsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ignite/mailerlite-sync/internal/domain"
	"github.com/ignite/mailerlite-sync/internal/mailerlite"
	"github.com/ignite/mailerlite-sync/internal/pkg/logger"
)

// runClock is the fixed "now" for every test in this package.
var runClock = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return runClock }

// mockRepo is an in-memory contact store keyed by collection.
type mockRepo struct {
	mu          sync.Mutex
	collections map[string][]domain.Contact
	quarantine  []domain.QuarantineRecord

	findErr     map[string]error
	insertErr   map[string]error // keyed by email
	found       []string
	markCalls   int
	deleteCalls int
	nextID      int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		collections: make(map[string][]domain.Contact),
		findErr:     make(map[string]error),
		insertErr:   make(map[string]error),
	}
}

// add stores a document the way an upstream ingestion job would.
func (m *mockRepo) add(collection string, doc map[string]any) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("%s-%d", collection, m.nextID)
	m.collections[collection] = append(m.collections[collection], domain.ContactFromDocument(id, doc))
	return id
}

func (m *mockRepo) get(collection, id string) (domain.Contact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.collections[collection] {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Contact{}, false
}

func (m *mockRepo) FindUnexported(_ context.Context, collection string) ([]domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.found = append(m.found, collection)
	if err := m.findErr[collection]; err != nil {
		return nil, err
	}
	var out []domain.Contact
	for _, c := range m.collections[collection] {
		if c.ExportState == domain.Exported || domain.IsNullLike(c.Email) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *mockRepo) MarkExported(ctx context.Context, collection string, contacts []domain.Contact, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markCalls++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ids := make(map[string]bool, len(contacts))
	for _, c := range contacts {
		ids[c.ID] = true
	}
	var n int64
	stored := m.collections[collection]
	for i := range stored {
		if !ids[stored[i].ID] {
			continue
		}
		stored[i].ExportState = domain.Exported
		stored[i].Document[domain.FieldExported] = true
		stored[i].Document[domain.FieldExportedAt] = at
		stored[i].Document[domain.FieldUpdatedAt] = at
		n++
	}
	return n, nil
}

func (m *mockRepo) InsertQuarantine(ctx context.Context, rec domain.QuarantineRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.insertErr[rec.Email]; err != nil {
		return err
	}
	m.quarantine = append(m.quarantine, rec)
	return nil
}

func (m *mockRepo) DeleteContact(ctx context.Context, collection string, c domain.Contact) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stored := m.collections[collection]
	for i := range stored {
		if stored[i].ID == c.ID {
			m.collections[collection] = append(stored[:i], stored[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

// fakeBatcher answers batch calls with 201 for every request unless the
// email is listed in reject, echoing the email in each success body.
type fakeBatcher struct {
	mu      sync.Mutex
	calls   [][]mailerlite.BatchRequest
	reject  map[string]int
	failAll error
	// respond overrides the default behaviour when set.
	respond func(reqs []mailerlite.BatchRequest) (*mailerlite.BatchResponse, error)
}

func newFakeBatcher() *fakeBatcher {
	return &fakeBatcher{reject: make(map[string]int)}
}

func (f *fakeBatcher) Batch(_ context.Context, reqs []mailerlite.BatchRequest) (*mailerlite.BatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]mailerlite.BatchRequest(nil), reqs...))
	if f.respond != nil {
		return f.respond(reqs)
	}
	if f.failAll != nil {
		return nil, f.failAll
	}
	resp := &mailerlite.BatchResponse{Total: len(reqs)}
	for _, r := range reqs {
		if code, ok := f.reject[r.Body.Email]; ok {
			resp.Failed++
			resp.Responses = append(resp.Responses, errResp(code, "The email must be a valid email address."))
			continue
		}
		resp.Successful++
		resp.Responses = append(resp.Responses, okResp(r.Body.Email))
	}
	return resp, nil
}

func (f *fakeBatcher) submittedEmails() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, call := range f.calls {
		for _, r := range call {
			out = append(out, r.Body.Email)
		}
	}
	return out
}

func okResp(email string) mailerlite.BatchItemResponse {
	body, _ := json.Marshal(map[string]any{"data": map[string]any{"email": email}})
	return mailerlite.BatchItemResponse{Code: 201, Body: body}
}

func errResp(code int, msg string) mailerlite.BatchItemResponse {
	body, _ := json.Marshal(map[string]any{"message": msg})
	return mailerlite.BatchItemResponse{Code: code, Body: body}
}

var errTransport = errors.New("connection reset by peer")

// captureLogger returns a logger writing to a buffer, without redaction so
// tests can assert on emails.
func captureLogger() (*logger.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logger.New(&buf, logger.DEBUG, false), &buf
}

func contactDoc(email, venue, showDate string) map[string]any {
	return map[string]any{
		domain.FieldEmail:     email,
		domain.FieldVenue:     venue,
		domain.FieldShowDate:  showDate,
		domain.FieldFirstName: "Ada",
		domain.FieldLastName:  "Lovelace",
		domain.FieldSource:    "eventbrite",
	}
}

func eligible(collection, email, venue string) domain.EligibleContact {
	doc := contactDoc(email, venue, "2026-10-01")
	return domain.EligibleContact{
		Contact:    domain.ContactFromDocument(collection+":"+strings.ToLower(email)+":"+venue, doc),
		Collection: collection,
		EventDate:  time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
}
