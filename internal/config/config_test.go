package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
datastore:
  driver: "mongodb"
  uri: "mongodb://localhost:27017"
  database: "venues"
  collections: ["townhouse", "palace"]
  quarantine_collection: "failed_contacts"

mailerlite:
  api_key: "test-api-key"
  timeout_seconds: 45

venues:
  fallback: "other"
  groups:
    Townhouse: "111"
    other: "999"

log:
  file: "/var/log/sync.log"
  level: "debug"

report:
  type: "local"
  local_path: "./test-reports"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, DriverMongo, cfg.Datastore.Driver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Datastore.URI)
	assert.Equal(t, []string{"townhouse", "palace"}, cfg.Datastore.Collections)
	assert.Equal(t, "failed_contacts", cfg.Datastore.QuarantineCollection)
	assert.Equal(t, "test-api-key", cfg.MailerLite.APIKey)
	assert.Equal(t, 45*time.Second, cfg.MailerLite.Timeout())
	assert.Equal(t, "/var/log/sync.log", cfg.Log.File)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ReportLocal, cfg.Report.Type)
	assert.Equal(t, "./test-reports", cfg.Report.LocalPath)

	groups, err := cfg.VenueGroups()
	require.NoError(t, err)
	assert.Equal(t, "111", groups.Resolve("TOWNHOUSE").ID)
	assert.Equal(t, "999", groups.Resolve("Church").ID)
	require.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
mailerlite:
  api_key: "test-key"
`))
	require.NoError(t, err)

	assert.Equal(t, DriverMongo, cfg.Datastore.Driver)
	assert.Equal(t, "failed", cfg.Datastore.QuarantineCollection)
	assert.Equal(t, 10*time.Second, cfg.Datastore.ConnectTimeout())
	assert.Equal(t, "https://connect.mailerlite.com", cfg.MailerLite.BaseURL)
	assert.Equal(t, 30, cfg.MailerLite.TimeoutSeconds)
	assert.Equal(t, 50, cfg.MailerLite.BatchSize)
	assert.Equal(t, "uncategorized", cfg.Venues.Fallback)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.ShowPII)
	assert.Equal(t, 30*time.Minute, cfg.Redis.LockTTL())
	assert.Equal(t, ReportNone, cfg.Report.Type)
	assert.Equal(t, 90, cfg.Report.TTLDays)
	assert.Equal(t, "mailerlite_sync", cfg.Metrics.Job)

	groups, err := cfg.VenueGroups()
	require.NoError(t, err)
	assert.Equal(t, 7, groups.Len())
}

func TestLoadFromEnv(t *testing.T) {
	configPath := writeConfig(t, `
datastore:
  uri: "mongodb://file"
  collections: ["file_collection"]
mailerlite:
  api_key: "file-key"
`)

	t.Setenv("MONGO_URI", "mongodb://env")
	t.Setenv("MONGO_DB", "env_db")
	t.Setenv("MONGO_COLLECTIONS", "townhouse, stowaway ,,citizen")
	t.Setenv("MAILER_LITE_TOKEN", "env-key")
	t.Setenv("LOG_FILE", "/tmp/env.log")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PUSHGATEWAY_URL", "http://pushgateway:9091")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://env", cfg.Datastore.URI)
	assert.Equal(t, "env_db", cfg.Datastore.Database)
	assert.Equal(t, []string{"townhouse", "stowaway", "citizen"}, cfg.Datastore.Collections)
	assert.Equal(t, "env-key", cfg.MailerLite.APIKey)
	assert.Equal(t, "/tmp/env.log", cfg.Log.File)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "http://pushgateway:9091", cfg.Metrics.PushgatewayURL)
}

func TestLoadFromEnv_PostgresDriver(t *testing.T) {
	configPath := writeConfig(t, `
datastore:
  collections: ["townhouse"]
`)
	t.Setenv("DATASTORE_DRIVER", "postgres")
	t.Setenv("MONGO_URI", "mongodb://ignored")
	t.Setenv("DATABASE_URL", "postgres://user@localhost/venues")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Datastore.Driver)
	assert.Equal(t, "postgres://user@localhost/venues", cfg.Datastore.URI)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "datastore: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Datastore:  DatastoreConfig{Driver: DriverMongo, URI: "mongodb://x", Database: "venues", Collections: []string{"a"}},
			MailerLite: MailerLiteConfig{APIKey: "k"},
			Report:     ReportConfig{Type: ReportNone},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"missing api key", func(c *Config) { c.MailerLite.APIKey = "  " }, ErrMissingCredential},
		{"missing uri", func(c *Config) { c.Datastore.URI = "" }, ErrMissingDatastoreURI},
		{"missing database", func(c *Config) { c.Datastore.Database = "" }, ErrMissingDatabase},
		{"postgres needs no database name", func(c *Config) { c.Datastore.Driver = DriverPostgres; c.Datastore.Database = "" }, nil},
		{"no collections", func(c *Config) { c.Datastore.Collections = nil }, ErrNoCollections},
		{"unknown driver", func(c *Config) { c.Datastore.Driver = "sqlite" }, ErrUnknownDriver},
		{"unknown report", func(c *Config) { c.Report.Type = "gcs" }, ErrUnknownReportType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVenueGroups_MissingFallback(t *testing.T) {
	cfg := &Config{Venues: VenuesConfig{Fallback: "uncategorized", Groups: map[string]string{"palace": "1"}}}
	_, err := cfg.VenueGroups()
	assert.Error(t, err)
}

func TestGetAWSProfile(t *testing.T) {
	t.Setenv("AWS_PROFILE_OVERRIDE", "")
	t.Setenv("ECS_CONTAINER_METADATA_URI", "")
	t.Setenv("AWS_EXECUTION_ENV", "")
	assert.Equal(t, "dev", ReportConfig{AWSProfile: "dev"}.GetAWSProfile())

	t.Setenv("AWS_PROFILE_OVERRIDE", "iam")
	assert.Equal(t, "", ReportConfig{AWSProfile: "dev"}.GetAWSProfile())

	t.Setenv("AWS_PROFILE_OVERRIDE", "")
	t.Setenv("ECS_CONTAINER_METADATA_URI", "http://169.254.170.2/v4")
	assert.Equal(t, "", ReportConfig{AWSProfile: "dev"}.GetAWSProfile())
}
