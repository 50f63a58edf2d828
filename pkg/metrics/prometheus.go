// Package metrics exports the buffer pool's operational counters in
// Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"
)

// StatsSource is anything exposing a stats map; the buffer pool and the
// disk manager both do.
type StatsSource interface {
	Stats() map[string]interface{}
}

// metricSpec maps one stats key to an exported metric.
type metricSpec struct {
	key  string
	name string
	help string
	kind string // "gauge" or "counter"
}

var poolMetrics = []metricSpec{
	{"pool_size", "pool_frames", "Total frames in the buffer pool", "gauge"},
	{"pinned_frames", "pinned_frames", "Frames currently pinned by consumers", "gauge"},
	{"dirty_frames", "dirty_frames", "Resident frames with unwritten changes", "gauge"},
	{"free_frames", "free_frames", "Frames on the free list", "gauge"},
	{"replacer_size", "evictable_frames", "Unpinned resident frames eligible for eviction", "gauge"},
	{"hits", "fetch_hits_total", "Fetches served from a resident frame", "counter"},
	{"misses", "fetch_misses_total", "Fetches that had to read from disk", "counter"},
	{"evictions", "evictions_total", "Pages evicted to make room", "counter"},
	{"global_depth", "directory_global_depth", "Page table directory depth", "gauge"},
	{"num_buckets", "directory_buckets", "Distinct page table buckets", "gauge"},
}

var diskMetrics = []metricSpec{
	{"total_reads", "disk_reads_total", "Pages read from the data file", "counter"},
	{"total_writes", "disk_writes_total", "Pages written to the data file", "counter"},
	{"free_pages", "disk_free_pages", "Deallocated pages available for reuse", "gauge"},
}

// PrometheusExporter exports metrics in Prometheus text format
type PrometheusExporter struct {
	pool      StatsSource
	disk      StatsSource
	namespace string
	startTime time.Time
}

// NewPrometheusExporter creates an exporter over the pool's and disk
// manager's stats. disk may be nil.
func NewPrometheusExporter(pool, disk StatsSource) *PrometheusExporter {
	return &PrometheusExporter{
		pool:      pool,
		disk:      disk,
		namespace: "pagecache",
		startTime: time.Now(),
	}
}

// SetNamespace sets the metric namespace prefix
func (pe *PrometheusExporter) SetNamespace(namespace string) {
	pe.namespace = namespace
}

// WriteMetrics writes all metrics in Prometheus text format to the writer.
// Format: https://prometheus.io/docs/instrumenting/exposition_formats/
func (pe *PrometheusExporter) WriteMetrics(w io.Writer) error {
	uptime := time.Since(pe.startTime).Seconds()
	if err := pe.write(w, "uptime_seconds", "Process uptime in seconds", "gauge", uptime); err != nil {
		return err
	}

	if err := pe.writeSource(w, pe.pool, poolMetrics); err != nil {
		return err
	}
	if pe.disk != nil {
		if err := pe.writeSource(w, pe.disk, diskMetrics); err != nil {
			return err
		}
	}

	// Process-level gauges, so the resident-memory bound pool_size *
	// page_size can be checked against reality.
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	if err := pe.write(w, "heap_alloc_bytes", "Bytes of allocated heap objects", "gauge", float64(mem.HeapAlloc)); err != nil {
		return err
	}
	return pe.write(w, "goroutines", "Number of live goroutines", "gauge", float64(runtime.NumGoroutine()))
}

func (pe *PrometheusExporter) writeSource(w io.Writer, src StatsSource, specs []metricSpec) error {
	stats := src.Stats()
	for _, spec := range specs {
		v, ok := stats[spec.key]
		if !ok {
			continue
		}
		if err := pe.write(w, spec.name, spec.help, spec.kind, toFloat(v)); err != nil {
			return err
		}
	}
	return nil
}

func (pe *PrometheusExporter) write(w io.Writer, name, help, kind string, value float64) error {
	full := pe.namespace + "_" + name
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", full, help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s %s\n", full, kind); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s %g\n", full, value)
	return err
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

// Handler returns an http.Handler serving the exposition.
func (pe *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if err := pe.WriteMetrics(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
