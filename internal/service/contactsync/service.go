package contactsync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailerlite-sync/internal/domain"
	"github.com/ignite/mailerlite-sync/internal/pkg/logger"
	"github.com/ignite/mailerlite-sync/internal/showdate"
)

// Service runs the sync pipeline. A Service holds no per-run state; each
// call to Run is independent.
type Service struct {
	repo        Repository
	client      Batcher
	groups      domain.VenueGroups
	collections []string
	parser      *showdate.Parser
	batchSize   int
	now         func() time.Time
	log         *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.log = l } }

// WithClock sets the run clock used for "today", the current year of
// yearless show dates and the reconciliation timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithParser replaces the show date strategy chain.
func WithParser(p *showdate.Parser) Option { return func(s *Service) { s.parser = p } }

// WithBatchSize overrides the MailerLite batch size (max 50).
func WithBatchSize(n int) Option { return func(s *Service) { s.batchSize = n } }

// NewService creates the sync service over the given collections.
func NewService(repo Repository, client Batcher, groups domain.VenueGroups, collections []string, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}
	if client == nil {
		return nil, ErrNilBatcher
	}
	if len(collections) == 0 {
		return nil, ErrNoCollections
	}
	s := &Service{
		repo:        repo,
		client:      client,
		groups:      groups,
		collections: append([]string(nil), collections...),
		parser:      showdate.DefaultParser(),
		now:         time.Now,
		log:         logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes one sync: select, transform, upload, reconcile. Stage
// failures are logged and narrowed to their scope, so the report is always
// returned. limit <= 0 processes every eligible contact.
func (s *Service) Run(ctx context.Context, limit int) *domain.SyncReport {
	started := s.now()
	report := &domain.SyncReport{
		RunID:     uuid.NewString(),
		StartedAt: started.UTC(),
		Limit:     limit,
		ByGroup:   make(map[string]int),
	}
	defer func() { report.FinishedAt = s.now().UTC() }()

	s.log.Info("Starting MailerLite sync", "run_id", report.RunID, "collections", len(s.collections))
	if limit > 0 {
		s.log.Info("Running with contact limit", "limit", limit)
	}

	selector := NewSelector(s.repo, s.parser, s.log)
	eligible := selector.SelectEligible(ctx, s.collections, started, limit)
	report.Selected = len(eligible)
	if len(eligible) == 0 {
		s.log.Info("No contacts to process today")
		return report
	}

	grouped, invalid := Transform(eligible, s.log)
	report.InvalidEmails = len(invalid)

	reconciler := NewReconciler(s.repo, s.now, s.log)

	var upload UploadResult
	if grouped.Len() > 0 {
		upload = NewUploader(s.client, s.groups, s.batchSize, s.log).Upload(ctx, grouped)
	} else {
		s.log.Info("No valid contacts after email validation")
	}
	report.Successful = len(upload.Successful)
	report.Failed = len(upload.Failed)
	for name, emails := range upload.SuccessByGroup {
		report.ByGroup[name] = len(emails)
	}

	// Upload outcomes are recorded even after cancellation.
	if ctx.Err() != nil {
		s.log.Warn("Run interrupted, recording upload outcomes before exit", "run_id", report.RunID)
	}
	wctx := context.WithoutCancel(ctx)
	report.Marked = reconciler.MarkExported(wctx, upload.Successful, eligible)

	allFailed := append(append([]string(nil), invalid...), upload.Failed...)
	q := reconciler.Quarantine(wctx, allFailed, eligible)
	report.Quarantined, report.Deleted = q.Quarantined, q.Deleted

	if err := ctx.Err(); err != nil {
		report.Error = err.Error()
	}

	s.logSummary(report)
	return report
}

func (s *Service) logSummary(r *domain.SyncReport) {
	s.log.Info("SYNC SUMMARY",
		"run_id", r.RunID,
		"total_processed", r.TotalProcessed(),
		"successful", r.Successful,
		"failed", r.Failed+r.InvalidEmails,
		"invalid_emails", r.InvalidEmails,
		"marked", r.Marked,
		"quarantined", r.Quarantined,
	)
	for _, name := range sortedKeys(r.ByGroup) {
		s.log.Info("Added to list", "group", name, "count", r.ByGroup[name])
	}
}
