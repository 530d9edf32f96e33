package contactsync

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/ignite/mailerlite-sync/internal/domain"
	"github.com/ignite/mailerlite-sync/internal/mailerlite"
	"github.com/ignite/mailerlite-sync/internal/pkg/logger"
)

// UploadResult partitions every submitted email into exactly one of
// Successful or Failed. SuccessByGroup lists successful emails under the
// display name of the group they were added to.
type UploadResult struct {
	Successful     []string
	Failed         []string
	SuccessByGroup map[string][]string
	// Skipped counts items dropped before submission by the email re-check.
	Skipped int
}

// Uploader submits upload items to MailerLite in fixed-size batches.
type Uploader struct {
	client    Batcher
	groups    domain.VenueGroups
	batchSize int
	log       *logger.Logger
}

// NewUploader creates an uploader. batchSize outside 1..50 is clamped to 50.
func NewUploader(client Batcher, groups domain.VenueGroups, batchSize int, log *logger.Logger) *Uploader {
	if batchSize <= 0 || batchSize > mailerlite.MaxBatchSize {
		batchSize = mailerlite.MaxBatchSize
	}
	return &Uploader{client: client, groups: groups, batchSize: batchSize, log: log}
}

// pending is one side-table row: the request as submitted plus what the
// outcome must be attributed to.
type pending struct {
	email     string
	groupName string
	phone     string
	request   mailerlite.BatchRequest
}

type emailOutcome struct {
	failed bool
	groups []string
}

// Upload builds one subscriber request per item, submits them in order and
// partitions the emails by outcome. A batch that fails as a whole fails
// every email in it. Nothing is retried.
func (u *Uploader) Upload(ctx context.Context, grouped *domain.VenueItems) UploadResult {
	result := UploadResult{SuccessByGroup: make(map[string][]string)}

	var rows []pending
	prepared := make(map[string]int)
	for _, item := range grouped.Flatten() {
		res := u.groups.Resolve(item.Venue)
		if !res.Matched {
			u.log.Warn("No group mapping for venue, using fallback", "venue", item.Venue, "email", item.Email, "group", res.Name)
		}
		if !domain.IsValidEmail(item.Email) {
			u.log.Warn("Skipping invalid email", "email", item.Email)
			result.Skipped++
			continue
		}

		sub := mailerlite.Subscriber{
			Email:  item.Email,
			Fields: mailerlite.SubscriberFields{Name: strings.TrimSpace(item.FirstName + " " + item.LastName)},
			Groups: []string{res.ID},
		}
		if phone := strings.TrimSpace(item.Phone); !domain.IsNullLike(phone) {
			sub.Fields.Phone = phone
		}
		rows = append(rows, pending{
			email:     item.Email,
			groupName: u.groups.NameFor(res.ID),
			phone:     sub.Fields.Phone,
			request:   mailerlite.NewSubscriberRequest(sub),
		})
		prepared[res.Name]++
	}

	for _, name := range sortedKeys(prepared) {
		u.log.Info("Preparing to add contacts", "group", name, "count", prepared[name])
	}

	if len(rows) == 0 {
		u.log.Info("No valid contacts to upload")
		return result
	}

	outcomes := make(map[string]*emailOutcome)
	var order []string
	for start, batchNo := 0, 1; start < len(rows); start, batchNo = start+u.batchSize, batchNo+1 {
		end := start + u.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		ok := u.submit(ctx, batchNo, batch)

		for i, row := range batch {
			o, seen := outcomes[row.email]
			if !seen {
				o = &emailOutcome{}
				outcomes[row.email] = o
				order = append(order, row.email)
			}
			if !ok[i] {
				o.failed = true
				continue
			}
			u.log.Debug("Added subscriber", "email", row.email, "group", row.groupName, "phone", row.phone != "")
			if !containsString(o.groups, row.groupName) {
				o.groups = append(o.groups, row.groupName)
			}
		}
	}

	for _, email := range order {
		o := outcomes[email]
		if o.failed {
			result.Failed = append(result.Failed, email)
			continue
		}
		result.Successful = append(result.Successful, email)
		for _, g := range o.groups {
			result.SuccessByGroup[g] = append(result.SuccessByGroup[g], email)
		}
	}

	for _, name := range sortedKeys(result.SuccessByGroup) {
		u.log.Info("Successfully added contacts to group", "group", name, "count", len(result.SuccessByGroup[name]))
	}
	return result
}

// submit sends one batch and reports per row whether it succeeded.
func (u *Uploader) submit(ctx context.Context, batchNo int, batch []pending) []bool {
	requests := make([]mailerlite.BatchRequest, len(batch))
	for i, row := range batch {
		requests[i] = row.request
	}

	u.log.Info("Submitting batch", "batch", batchNo, "size", len(batch))
	resp, err := u.client.Batch(ctx, requests)
	if err != nil {
		var apiErr *mailerlite.APIError
		if errors.As(err, &apiErr) {
			u.log.Error("Batch rejected", "batch", batchNo, "status", apiErr.StatusCode, "body", apiErr.Body)
		} else {
			u.log.Error("Batch request failed", "batch", batchNo, "error", err)
		}
		return make([]bool, len(batch))
	}

	u.log.Info("Batch completed", "batch", batchNo, "successful", resp.Successful, "failed", resp.Failed)
	return u.matchResponses(batchNo, batch, resp.Responses)
}

// matchResponses resolves each per-item response to a side-table row: by the
// echoed email when the body carries one, otherwise by position. Rows left
// unresolved are failures.
func (u *Uploader) matchResponses(batchNo int, batch []pending, responses []mailerlite.BatchItemResponse) []bool {
	ok := make([]bool, len(batch))
	resolved := make([]bool, len(batch))

	byEmail := make(map[string][]int, len(batch))
	for i, row := range batch {
		key := strings.ToLower(row.email)
		byEmail[key] = append(byEmail[key], i)
	}

	for pos, r := range responses {
		idx := -1
		if echoed := strings.ToLower(r.Email()); echoed != "" {
			for _, i := range byEmail[echoed] {
				if !resolved[i] {
					idx = i
					break
				}
			}
		}
		if idx < 0 && pos < len(batch) && !resolved[pos] {
			idx = pos
		}
		if idx < 0 {
			u.log.Warn("Unmatched batch response", "batch", batchNo, "position", pos, "code", r.Code)
			continue
		}

		resolved[idx] = true
		ok[idx] = r.OK()
		if !ok[idx] {
			u.log.Warn("Subscriber rejected", "batch", batchNo, "email", batch[idx].email, "code", r.Code, "message", r.Message())
		}
	}

	for i, done := range resolved {
		if !done {
			u.log.Warn("No response for subscriber", "batch", batchNo, "email", batch[i].email)
		}
	}
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
