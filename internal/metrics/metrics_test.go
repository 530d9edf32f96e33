package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailerlite-sync/internal/domain"
)

func report() *domain.SyncReport {
	started := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	return &domain.SyncReport{
		RunID:       "run-1",
		StartedAt:   started,
		FinishedAt:  started.Add(90 * time.Second),
		Selected:    12,
		Successful:  9,
		Failed:      2,
		Quarantined: 3,
		ByGroup:     map[string]int{"townhouse": 9},
	}
}

func TestRegistry(t *testing.T) {
	reg := Registry(report())

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	// 6 outcomes + 1 group + duration + last run + last success
	assert.Equal(t, 10, n)

	n, err = testutil.GatherAndCount(reg, "mailerlite_sync_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRegistry_NoSuccessTimestampOnError(t *testing.T) {
	r := report()
	r.Error = "context canceled"

	n, err := testutil.GatherAndCount(Registry(r), "mailerlite_sync_last_success_timestamp_seconds")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPush(t *testing.T) {
	var method, path string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPusher(srv.URL, "")
	require.NoError(t, p.Push(context.Background(), report()))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/mailerlite_sync", path)
	assert.Contains(t, string(body), "mailerlite_sync_contacts")
}

func TestPush_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewPusher(srv.URL, "job").Push(context.Background(), report())
	assert.Error(t, err)
}

func TestPush_Disabled(t *testing.T) {
	p := NewPusher("", "job")
	assert.Nil(t, p)
	assert.NoError(t, p.Push(context.Background(), report()))
}
