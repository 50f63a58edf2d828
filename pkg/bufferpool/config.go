package bufferpool

import "errors"

var (
	errInvalidPoolSize   = errors.New("bufferpool: pool size must be at least 1")
	errInvalidBucketSize = errors.New("bufferpool: bucket size must be at least 1")
)

// Config holds buffer pool configuration settings
type Config struct {
	PoolSize        int    // Number of frames (1 frame = 1 page = 4KB). Default: 1000 (~4MB)
	BucketSize      int    // Page table bucket capacity before a split
	DataDir         string // Directory holding the data file and archive segment
	EnableMetrics   bool   // Expose Prometheus metrics on the admin surface
	EnableArchiving bool   // Compress deleted pages into the archive segment
	FlushSchedule   string // Cron spec for the background flusher ("" = disabled)
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		PoolSize:        1000, // 1000 pages = ~4MB resident
		BucketSize:      64,
		DataDir:         "./data",
		EnableMetrics:   true,
		EnableArchiving: false, // Archiving disabled by default (opt-in feature)
		FlushSchedule:   "",    // Background flushing disabled by default
	}
}

// Validate checks the configuration for values the pool cannot run with.
func (c *Config) Validate() error {
	if c.PoolSize < 1 {
		return errInvalidPoolSize
	}
	if c.BucketSize < 1 {
		return errInvalidBucketSize
	}
	return nil
}
