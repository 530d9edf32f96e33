// Package metrics pushes the outcome of a sync run to a Prometheus
// Pushgateway. A batch job exits before it could be scraped, so gauges are
// collected in a per-run registry and pushed once at the end.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/ignite/mailerlite-sync/internal/domain"
)

// DefaultJob is the Pushgateway job label.
const DefaultJob = "mailerlite_sync"

// Pusher sends run gauges to a Pushgateway.
type Pusher struct {
	url    string
	job    string
	client push.HTTPDoer
}

// NewPusher creates a pusher. An empty url yields a nil pusher whose Push is
// a no-op.
func NewPusher(url, job string) *Pusher {
	if url == "" {
		return nil
	}
	if job == "" {
		job = DefaultJob
	}
	return &Pusher{url: url, job: job, client: http.DefaultClient}
}

// SetHTTPClient overrides the HTTP client (used for testing)
func (p *Pusher) SetHTTPClient(c push.HTTPDoer) {
	p.client = c
}

// Registry builds the gauges for one run.
func Registry(r *domain.SyncReport) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	counts := f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mailerlite_sync_contacts",
		Help: "Contacts handled by the last sync run, by outcome.",
	}, []string{"outcome"})
	counts.WithLabelValues("selected").Set(float64(r.Selected))
	counts.WithLabelValues("successful").Set(float64(r.Successful))
	counts.WithLabelValues("failed").Set(float64(r.Failed))
	counts.WithLabelValues("invalid_email").Set(float64(r.InvalidEmails))
	counts.WithLabelValues("marked").Set(float64(r.Marked))
	counts.WithLabelValues("quarantined").Set(float64(r.Quarantined))

	groups := f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mailerlite_sync_group_successful",
		Help: "Subscribers added per MailerLite group by the last sync run.",
	}, []string{"group"})
	for name, n := range r.ByGroup {
		groups.WithLabelValues(name).Set(float64(n))
	}

	f.NewGauge(prometheus.GaugeOpts{
		Name: "mailerlite_sync_duration_seconds",
		Help: "Wall time of the last sync run.",
	}).Set(r.Duration().Seconds())

	f.NewGauge(prometheus.GaugeOpts{
		Name: "mailerlite_sync_last_run_timestamp_seconds",
		Help: "Unix time the last sync run finished.",
	}).Set(float64(r.FinishedAt.Unix()))

	if r.Error == "" {
		f.NewGauge(prometheus.GaugeOpts{
			Name: "mailerlite_sync_last_success_timestamp_seconds",
			Help: "Unix time the last sync run finished without error.",
		}).Set(float64(r.FinishedAt.Unix()))
	}
	return reg
}

// Push replaces the job's metric group with the gauges of r.
func (p *Pusher) Push(ctx context.Context, r *domain.SyncReport) error {
	if p == nil {
		return nil
	}
	err := push.New(p.url, p.job).
		Client(p.client).
		Gatherer(Registry(r)).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", p.url, err)
	}
	return nil
}
