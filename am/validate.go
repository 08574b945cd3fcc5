package am

import "github.com/teranos/backfill/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return errors.Newf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}

	if c.Database.ConnectTimeoutSeconds < 0 {
		return errors.Newf("database.connect_timeout_seconds must be >= 0, got %d", c.Database.ConnectTimeoutSeconds)
	}

	// Zero means "unlimited" for max_size and "per-task default" for chunk_size
	if c.Artifacts.MaxSize < 0 {
		return errors.Newf("artifacts.max_size must be >= 0, got %d", c.Artifacts.MaxSize)
	}
	if c.Batch.ChunkSize < 0 {
		return errors.Newf("batch.chunk_size must be >= 0, got %d", c.Batch.ChunkSize)
	}

	switch c.Batch.Dialect {
	case "", DriverPostgres, DriverSQLite:
	default:
		return errors.Newf("batch.dialect must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Batch.Dialect)
	}

	if c.Pool.Workers < 0 {
		return errors.Newf("pool.workers must be >= 0, got %d", c.Pool.Workers)
	}
	if c.Pool.Rate < 0 {
		return errors.Newf("pool.rate must be >= 0, got %f", c.Pool.Rate)
	}

	return nil
}
