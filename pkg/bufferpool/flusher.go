package bufferpool

import (
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// Flusher periodically writes the pool's dirty resident pages, pinned or
// not, back to disk on a cron schedule. It is optional and entirely decoupled from the
// pool's synchronous contract: a fetch or unpin never waits for it, and
// disabling it changes no pool semantics.
type Flusher struct {
	pool *Pool
	cron *cron.Cron
	mu   sync.Mutex

	sweeps   uint64
	lastErrs uint64
}

// NewFlusher creates a flusher for pool. schedule is a standard cron
// expression with a seconds field (e.g. "*/30 * * * * *" for every 30s).
func NewFlusher(pool *Pool, schedule string) (*Flusher, error) {
	f := &Flusher{
		pool: pool,
		cron: cron.New(cron.WithSeconds()),
	}
	if _, err := f.cron.AddFunc(schedule, f.sweep); err != nil {
		return nil, err
	}
	return f, nil
}

// Start begins the flush schedule.
func (f *Flusher) Start() {
	f.cron.Start()
	log.Printf("bufferpool: background flusher started")
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (f *Flusher) Stop() {
	ctx := f.cron.Stop()
	<-ctx.Done()
	log.Printf("bufferpool: background flusher stopped")
}

// sweep flushes every dirty resident page. Errors are logged, not fatal;
// the pages stay dirty and the next sweep retries them.
func (f *Flusher) sweep() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sweeps++
	if err := f.pool.FlushAllPages(); err != nil {
		f.lastErrs++
		log.Printf("bufferpool: background flush: %v", err)
	}
}

// Sweeps returns how many sweeps have run, for tests and the admin
// surface.
func (f *Flusher) Sweeps() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}
