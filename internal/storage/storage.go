// Package storage keeps a history of sync run reports, on local disk or in
// S3 with a DynamoDB index.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ignite/mailerlite-sync/internal/config"
	"github.com/ignite/mailerlite-sync/internal/domain"
)

// ErrNoReport is returned by LatestReport before any run was saved.
var ErrNoReport = errors.New("no sync report stored")

// ReportStore persists run reports.
type ReportStore interface {
	SaveReport(ctx context.Context, r *domain.SyncReport) error
	LatestReport(ctx context.Context) (*domain.SyncReport, error)
}

// New creates the report store selected by cfg.Type.
func New(ctx context.Context, cfg config.ReportConfig) (ReportStore, error) {
	switch cfg.Type {
	case config.ReportAWS:
		s, err := NewAWSStorage(ctx, cfg.DynamoDBTable, cfg.S3Bucket, cfg.AWSRegion, cfg.GetAWSProfile(), cfg.TTLDays)
		if err != nil {
			return nil, fmt.Errorf("initializing AWS storage: %w", err)
		}
		return s, nil
	case config.ReportLocal:
		return NewLocalStorage(cfg.LocalPath)
	default:
		return Nop{}, nil
	}
}

// Nop discards reports.
type Nop struct{}

func (Nop) SaveReport(context.Context, *domain.SyncReport) error { return nil }
func (Nop) LatestReport(context.Context) (*domain.SyncReport, error) {
	return nil, ErrNoReport
}

// LocalStorage writes each report to <root>/<YYYY-MM-DD>/<run id>.json and
// keeps a copy of the newest one in <root>/latest.json.
type LocalStorage struct {
	root string
	mu   sync.Mutex
}

// NewLocalStorage ensures the storage directory exists.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

func (s *LocalStorage) SaveReport(_ context.Context, r *domain.SyncReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	dir := filepath.Join(s.root, r.StartedAt.UTC().Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, r.RunID+".json"), data); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.root, "latest.json"), data)
}

func (s *LocalStorage) LatestReport(_ context.Context) (*domain.SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.root, "latest.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoReport
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest report: %w", err)
	}
	var r domain.SyncReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding latest report: %w", err)
	}
	return &r, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}
