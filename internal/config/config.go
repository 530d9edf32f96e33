package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/mailerlite-sync/internal/domain"
)

// Sentinel validation errors. Any of them is fatal before the run starts.
var (
	ErrMissingCredential   = errors.New("mailerlite api key is not configured")
	ErrMissingDatastoreURI = errors.New("datastore uri is not configured")
	ErrMissingDatabase     = errors.New("mongodb database name is not configured")
	ErrNoCollections       = errors.New("no source collections configured")
	ErrUnknownDriver       = errors.New("unknown datastore driver")
	ErrUnknownReportType   = errors.New("unknown report store type")
)

// Datastore drivers.
const (
	DriverMongo    = "mongodb"
	DriverPostgres = "postgres"
)

// Report store types.
const (
	ReportNone  = "none"
	ReportLocal = "local"
	ReportAWS   = "aws"
)

// Config holds all configuration for the sync job
type Config struct {
	Datastore  DatastoreConfig  `yaml:"datastore"`
	MailerLite MailerLiteConfig `yaml:"mailerlite"`
	Venues     VenuesConfig     `yaml:"venues"`
	Log        LogConfig        `yaml:"log"`
	Redis      RedisConfig      `yaml:"redis"`
	Report     ReportConfig     `yaml:"report"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// DatastoreConfig selects the contact store and the collections to scan.
type DatastoreConfig struct {
	Driver               string   `yaml:"driver"` // "mongodb" or "postgres"
	URI                  string   `yaml:"uri"`
	Database             string   `yaml:"database"`
	Collections          []string `yaml:"collections"`
	QuarantineCollection string   `yaml:"quarantine_collection"`
	ConnectTimeoutSecs   int      `yaml:"connect_timeout_seconds"`
}

// ConnectTimeout returns the datastore connect timeout as a duration
func (c DatastoreConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSecs) * time.Second
}

// MailerLiteConfig holds MailerLite API configuration
type MailerLiteConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	BatchSize      int    `yaml:"batch_size"`
}

// Timeout returns the HTTP timeout as a duration
func (c MailerLiteConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// VenuesConfig maps venue names to MailerLite group ids. An empty Groups
// table uses the built-in production table.
type VenuesConfig struct {
	Fallback string            `yaml:"fallback"`
	Groups   map[string]string `yaml:"groups"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	File    string `yaml:"file"`
	Level   string `yaml:"level"`
	ShowPII bool   `yaml:"show_pii"` // disables email redaction
}

// RedisConfig enables the run lock when URL is set.
type RedisConfig struct {
	URL            string `yaml:"url"`
	LockTTLMinutes int    `yaml:"lock_ttl_minutes"`
}

// LockTTL returns the run lock TTL as a duration
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// ReportConfig holds run report storage configuration
type ReportConfig struct {
	Type          string `yaml:"type"` // "none", "local" or "aws"
	LocalPath     string `yaml:"local_path"`
	S3Bucket      string `yaml:"s3_bucket"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	TTLDays       int    `yaml:"ttl_days"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c ReportConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// MetricsConfig holds Prometheus Pushgateway settings. Empty URL disables pushing.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Set defaults
	if cfg.Datastore.Driver == "" {
		cfg.Datastore.Driver = DriverMongo
	}
	if cfg.Datastore.QuarantineCollection == "" {
		cfg.Datastore.QuarantineCollection = "failed"
	}
	if cfg.Datastore.ConnectTimeoutSecs == 0 {
		cfg.Datastore.ConnectTimeoutSecs = 10
	}
	if cfg.MailerLite.BaseURL == "" {
		cfg.MailerLite.BaseURL = "https://connect.mailerlite.com"
	}
	if cfg.MailerLite.TimeoutSeconds == 0 {
		cfg.MailerLite.TimeoutSeconds = 30
	}
	if cfg.MailerLite.BatchSize == 0 {
		cfg.MailerLite.BatchSize = 50
	}
	if cfg.Venues.Fallback == "" {
		cfg.Venues.Fallback = domain.FallbackVenue
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Redis.LockTTLMinutes == 0 {
		cfg.Redis.LockTTLMinutes = 30
	}
	if cfg.Report.Type == "" {
		cfg.Report.Type = ReportNone
	}
	if cfg.Report.LocalPath == "" {
		cfg.Report.LocalPath = "./reports"
	}
	if cfg.Report.AWSRegion == "" {
		cfg.Report.AWSRegion = "us-west-2"
	}
	if cfg.Report.TTLDays == 0 {
		cfg.Report.TTLDays = 90
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "mailerlite_sync"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so the MailerLite token can live in .env on the host running the cron.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATASTORE_DRIVER"); v != "" {
		cfg.Datastore.Driver = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" && cfg.Datastore.Driver == DriverMongo {
		cfg.Datastore.URI = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.Datastore.Driver == DriverPostgres {
		cfg.Datastore.URI = v
	}
	if v := os.Getenv("MONGO_DB"); v != "" {
		cfg.Datastore.Database = v
	}
	if v := os.Getenv("MONGO_COLLECTIONS"); v != "" {
		cfg.Datastore.Collections = splitList(v)
	}
	if v := os.Getenv("MAILER_LITE_TOKEN"); v != "" {
		cfg.MailerLite.APIKey = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}

	return cfg, nil
}

// Validate checks the settings a run cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.MailerLite.APIKey) == "" {
		return ErrMissingCredential
	}
	switch c.Datastore.Driver {
	case DriverMongo, DriverPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Datastore.Driver)
	}
	if strings.TrimSpace(c.Datastore.URI) == "" {
		return ErrMissingDatastoreURI
	}
	if c.Datastore.Driver == DriverMongo && strings.TrimSpace(c.Datastore.Database) == "" {
		return ErrMissingDatabase
	}
	if len(c.Datastore.Collections) == 0 {
		return ErrNoCollections
	}
	switch c.Report.Type {
	case ReportNone, ReportLocal, ReportAWS:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownReportType, c.Report.Type)
	}
	return nil
}

// VenueGroups builds the venue mapping, falling back to the built-in table.
func (c *Config) VenueGroups() (domain.VenueGroups, error) {
	if len(c.Venues.Groups) == 0 {
		return domain.DefaultVenueGroups(), nil
	}
	return domain.NewVenueGroups(c.Venues.Groups, c.Venues.Fallback)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
