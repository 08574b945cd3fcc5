package am

// Config represents the backfill configuration ("I am")
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" toml:"artifacts" json:"artifacts" yaml:"artifacts"`
	Journal   JournalConfig   `mapstructure:"journal" toml:"journal" json:"journal" yaml:"journal"`
	Batch     BatchConfig     `mapstructure:"batch" toml:"batch" json:"batch" yaml:"batch"`
	Pool      PoolConfig      `mapstructure:"pool" toml:"pool" json:"pool" yaml:"pool"`
	Log       LogConfig       `mapstructure:"log" toml:"log" json:"log" yaml:"log"`
}

// DatabaseConfig configures the primary store connection
type DatabaseConfig struct {
	Driver                string `mapstructure:"driver" toml:"driver" json:"driver" yaml:"driver"`                                                                     // postgres | sqlite
	URL                   string `mapstructure:"url" toml:"url" json:"url" yaml:"url"`                                                                                 // DSN or sqlite path
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds" toml:"connect_timeout_seconds" json:"connect_timeout_seconds" yaml:"connect_timeout_seconds"` // 0 = no timeout
}

// ArtifactsConfig configures where crate tarballs are read from
type ArtifactsConfig struct {
	Root    string `mapstructure:"root" toml:"root" json:"root" yaml:"root"`                 // root of a get-all-crates mirror
	MaxSize int64  `mapstructure:"max_size" toml:"max_size" json:"max_size" yaml:"max_size"` // bytes, 0 = unlimited
}

// JournalConfig configures the append-only journal
type JournalConfig struct {
	Dir  string `mapstructure:"dir" toml:"dir" json:"dir" yaml:"dir"`     // directory for <task>.csv and <task>.sql
	Sync bool   `mapstructure:"sync" toml:"sync" json:"sync" yaml:"sync"` // fsync after every record
}

// BatchConfig configures the batch compiler
type BatchConfig struct {
	ChunkSize int    `mapstructure:"chunk_size" toml:"chunk_size" json:"chunk_size" yaml:"chunk_size"` // rows per update statement, 0 = task default
	Dialect   string `mapstructure:"dialect" toml:"dialect" json:"dialect" yaml:"dialect"`             // dialect of the generated SQL file
}

// PoolConfig configures the worker pool
type PoolConfig struct {
	Workers int     `mapstructure:"workers" toml:"workers" json:"workers" yaml:"workers"` // 0 = one per logical CPU
	Rate    float64 `mapstructure:"rate" toml:"rate" json:"rate" yaml:"rate"`             // artifact inspections per second, 0 = unlimited
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json" json:"json" yaml:"json"`
}

// Supported store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)
