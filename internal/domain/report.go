package domain

import "time"

// SyncReport summarizes one run of the sync pipeline.
type SyncReport struct {
	RunID      string    `json:"run_id" dynamodbav:"run_id"`
	StartedAt  time.Time `json:"started_at" dynamodbav:"started_at"`
	FinishedAt time.Time `json:"finished_at" dynamodbav:"finished_at"`
	Limit      int       `json:"limit,omitempty" dynamodbav:"limit,omitempty"`

	Selected      int `json:"selected" dynamodbav:"selected"`
	InvalidEmails int `json:"invalid_emails" dynamodbav:"invalid_emails"`
	Successful    int `json:"successful" dynamodbav:"successful"`
	Failed        int `json:"failed" dynamodbav:"failed"`
	Marked        int `json:"marked" dynamodbav:"marked"`
	Quarantined   int `json:"quarantined" dynamodbav:"quarantined"`
	Deleted       int `json:"deleted" dynamodbav:"deleted"`

	// ByGroup counts successful uploads per MailerLite group name.
	ByGroup map[string]int `json:"by_group,omitempty" dynamodbav:"by_group,omitempty"`
	Error   string         `json:"error,omitempty" dynamodbav:"error,omitempty"`
}

// Duration returns how long the run took.
func (r SyncReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// TotalProcessed is successes plus every failure routed to quarantine.
func (r SyncReport) TotalProcessed() int {
	return r.Successful + r.Failed + r.InvalidEmails
}
