// Command mailerlite-sync exports yesterday's and older venue contacts to
// MailerLite. It is meant to run once a day from cron:
//
//	mailerlite-sync [--limit N]
//
// The config file is read from $CONFIG_PATH (default config.yaml).
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailerlite-sync/internal/config"
	"github.com/ignite/mailerlite-sync/internal/mailerlite"
	"github.com/ignite/mailerlite-sync/internal/metrics"
	"github.com/ignite/mailerlite-sync/internal/pkg/distlock"
	"github.com/ignite/mailerlite-sync/internal/pkg/logger"
	"github.com/ignite/mailerlite-sync/internal/repository/mongodb"
	"github.com/ignite/mailerlite-sync/internal/repository/postgres"
	"github.com/ignite/mailerlite-sync/internal/service/contactsync"
	"github.com/ignite/mailerlite-sync/internal/storage"
)

const lockKey = "mailerlite-sync"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

// run executes one sync and returns the process exit code: 0 when the run
// completed (even with per-contact failures), 1 on a fatal configuration or
// connection error, 2 on bad flags.
func run(parent context.Context, args []string, stderr io.Writer) (code int) {
	fs := flag.NewFlagSet("mailerlite-sync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("limit", 0, "process at most N contacts (0 = no limit)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		logger.Error("Failed to load config", "path", path, "error", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid config", "path", path, "error", err)
		return 1
	}
	groups, err := cfg.VenueGroups()
	if err != nil {
		logger.Error("Invalid venue mapping", "error", err)
		return 1
	}

	log, closer, err := logger.Open(cfg.Log.File, logger.ParseLevel(cfg.Log.Level), !cfg.Log.ShowPII)
	if err != nil {
		logger.Error("Failed to open log file", "error", err)
		return 1
	}
	defer closer.Close()
	logger.SetDefault(log)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Sync aborted", "panic", r, "stack", string(debug.Stack()))
			code = 1
		}
	}()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, db, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("Failed to connect to datastore", "driver", cfg.Datastore.Driver, "error", err)
		return 1
	}
	defer closeStore()

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Error("Invalid redis url", "error", err)
			return 1
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
	}
	release, err := distlock.Hold(ctx, distlock.New(rdb, db, lockKey, cfg.Redis.LockTTL()))
	if errors.Is(err, distlock.ErrLocked) {
		log.Warn("Another sync run holds the lock, exiting")
		return 0
	}
	if err != nil {
		log.Error("Failed to acquire run lock", "error", err)
		return 1
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			log.Warn("Failed to release run lock", "error", err)
		}
	}()

	reports, err := storage.New(ctx, cfg.Report)
	if err != nil {
		log.Warn("Report storage unavailable, reports will not be kept", "type", cfg.Report.Type, "error", err)
		reports = storage.Nop{}
	}
	if prev, err := reports.LatestReport(ctx); err == nil {
		log.Info("Previous sync run", "run_id", prev.RunID, "finished_at", prev.FinishedAt, "successful", prev.Successful, "failed", prev.Failed)
	}

	client := mailerlite.NewClient(mailerlite.Config{
		BaseURL: cfg.MailerLite.BaseURL,
		APIKey:  cfg.MailerLite.APIKey,
		Timeout: cfg.MailerLite.Timeout(),
	})
	svc, err := contactsync.NewService(repo, client, groups, cfg.Datastore.Collections,
		contactsync.WithLogger(log),
		contactsync.WithBatchSize(cfg.MailerLite.BatchSize),
	)
	if err != nil {
		log.Error("Failed to create sync service", "error", err)
		return 1
	}

	report := svc.Run(ctx, *limit)

	if err := reports.SaveReport(context.Background(), report); err != nil {
		log.Error("Failed to save sync report", "run_id", report.RunID, "error", err)
	}
	if err := metrics.NewPusher(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job).Push(context.Background(), report); err != nil {
		log.Error("Failed to push metrics", "error", err)
	}

	log.Info("Sync finished", "run_id", report.RunID, "duration", report.Duration())
	return 0
}

// openStore connects the configured contact store. The *sql.DB is non-nil
// only for postgres, where it also backs the fallback run lock.
func openStore(ctx context.Context, cfg *config.Config) (contactsync.Repository, *sql.DB, func(), error) {
	cctx, cancel := context.WithTimeout(ctx, cfg.Datastore.ConnectTimeout())
	defer cancel()

	ds := cfg.Datastore
	switch ds.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(cctx, ds.URI)
		if err != nil {
			return nil, nil, nil, err
		}
		repo := postgres.NewContactRepo(db, ds.QuarantineCollection)
		if err := repo.EnsureTables(cctx, ds.Collections...); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return repo, db, func() { db.Close() }, nil
	case config.DriverMongo:
		repo, err := mongodb.Connect(cctx, ds.URI, ds.Database, ds.QuarantineCollection)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, nil, func() { _ = repo.Close(context.Background()) }, nil
	default:
		return nil, nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, ds.Driver)
	}
}
