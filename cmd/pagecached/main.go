package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mnohosten/pagecache/pkg/admin"
	"github.com/mnohosten/pagecache/pkg/bufferpool"
	"github.com/mnohosten/pagecache/pkg/compression"
	"github.com/mnohosten/pagecache/pkg/storage"
)

func main() {
	// Parse command-line flags
	host := flag.String("host", "localhost", "Admin server host address")
	port := flag.Int("port", 8080, "Admin server port")
	dataDir := flag.String("data-dir", "./data", "Data directory for the page file and archive")
	poolSize := flag.Int("pool-size", 1000, "Buffer pool size in frames (1 frame = 4KB, default 1000 = ~4MB)")
	bucketSize := flag.Int("bucket-size", 64, "Page table bucket capacity before a split")
	flushSchedule := flag.String("flush-schedule", "", "Cron spec for background flushing of dirty pages (empty = disabled)")
	enableArchiving := flag.Bool("archive", false, "Archive the compressed final image of deleted pages")
	enableMetrics := flag.Bool("metrics", true, "Serve Prometheus metrics on /metrics")
	enableGraphQL := flag.Bool("graphql", false, "Enable the GraphQL stats endpoint (/graphql)")
	flag.Parse()

	config := bufferpool.DefaultConfig()
	config.PoolSize = *poolSize
	config.BucketSize = *bucketSize
	config.DataDir = *dataDir
	config.EnableMetrics = *enableMetrics
	config.EnableArchiving = *enableArchiving
	config.FlushSchedule = *flushSchedule

	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create data directory: %v\n", err)
		os.Exit(1)
	}

	disk, err := storage.NewDiskManager(filepath.Join(config.DataDir, "pagecache.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to open data file: %v\n", err)
		os.Exit(1)
	}
	defer disk.Close()

	pool := bufferpool.New(config.PoolSize, config.BucketSize, disk, nil)

	if config.EnableArchiving {
		archive, err := storage.NewPageArchive(filepath.Join(config.DataDir, "archive.dat"), compression.DefaultConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to open page archive: %v\n", err)
			os.Exit(1)
		}
		defer archive.Close()
		pool.SetArchiver(archive)
	}

	if config.FlushSchedule != "" {
		flusher, err := bufferpool.NewFlusher(pool, config.FlushSchedule)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Invalid flush schedule: %v\n", err)
			os.Exit(1)
		}
		flusher.Start()
		defer flusher.Stop()
	}

	adminConfig := admin.DefaultConfig()
	adminConfig.Host = *host
	adminConfig.Port = *port
	adminConfig.EnableMetrics = config.EnableMetrics
	adminConfig.EnableGraphQL = *enableGraphQL

	srv, err := admin.New(adminConfig, pool, disk)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create admin server: %v\n", err)
		os.Exit(1)
	}

	// Start blocks until a termination signal or a server error.
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Server error: %v\n", err)
		os.Exit(1)
	}

	// Leave no dirty frame behind on a clean shutdown.
	if err := pool.FlushAllPages(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Final flush failed: %v\n", err)
		os.Exit(1)
	}
}
