package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// Default values shared by SetDefaults and DefaultConfig
const (
	DefaultDriver    = DriverPostgres
	DefaultURL       = "postgres://localhost:5432/cargo_registry"
	DefaultChunkSize = 1000
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DefaultDriver)
	v.SetDefault("database.url", DefaultURL)
	v.SetDefault("database.connect_timeout_seconds", 30)

	v.SetDefault("artifacts.root", "")
	v.SetDefault("artifacts.max_size", 0) // crates were accepted by the registry already

	v.SetDefault("journal.dir", ".")
	v.SetDefault("journal.sync", false)

	v.SetDefault("batch.chunk_size", 0) // per-task default
	v.SetDefault("batch.dialect", "")   // follow database.driver

	v.SetDefault("pool.workers", 0)
	v.SetDefault("pool.rate", 0.0)

	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.url", "BACKFILL_DATABASE_URL", "DATABASE_URL")
}

// DefaultConfig returns the configuration SetDefaults describes, as a struct.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:                DefaultDriver,
			URL:                   DefaultURL,
			ConnectTimeoutSeconds: 30,
		},
		Journal: JournalConfig{Dir: "."},
	}
}

// String returns a short human-readable view of the configuration.
// The database URL is redacted since it may carry a password.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Driver: %s, URL: %s, ArtifactRoot: %q, JournalDir: %q, ChunkSize: %d, Workers: %d}",
		c.Database.Driver, redact(c.Database.URL), c.Artifacts.Root, c.Journal.Dir, c.Batch.ChunkSize, c.Pool.Workers)
}

// Redacted returns a copy of c safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	out.Database.URL = redact(c.Database.URL)
	return &out
}

func redact(url string) string {
	if url == "" {
		return "<unset>"
	}
	return "<redacted>"
}
