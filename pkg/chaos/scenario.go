package chaos

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/mnohosten/pagecache/pkg/bufferpool"
	"github.com/mnohosten/pagecache/pkg/storage"
)

// Scenario describes a concurrent workload to fire at a buffer pool.
type Scenario struct {
	Name       string
	Goroutines int
	Ops        int     // Operations per goroutine
	WorkingSet int     // Number of distinct pages the workload touches
	DirtyRatio float64 // Fraction of unpins that mark the page dirty
	Seed       int64
}

// DefaultScenario returns a workload that overcommits a small pool from
// several goroutines, which is where pin/evict races live.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name:       "fetch-unpin-storm",
		Goroutines: 8,
		Ops:        500,
		WorkingSet: 32,
		DirtyRatio: 0.3,
		Seed:       1,
	}
}

// Result aggregates what happened during a run.
type Result struct {
	Fetches    int64
	FetchFails int64
	Unpins     int64
	Errors     []error
}

// Runner drives scenarios against one pool.
type Runner struct {
	pool *bufferpool.Pool
	mu   sync.Mutex
}

// NewRunner creates a runner for pool.
func NewRunner(pool *bufferpool.Pool) *Runner {
	return &Runner{pool: pool}
}

// Run seeds the working set, fires the workload and then checks the pool's
// structural invariants. Injected I/O errors are expected and are counted,
// not fatal; any invariant violation is returned as an error.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	ids, err := r.seedWorkingSet(sc.WorkingSet)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var wg sync.WaitGroup
	for g := 0; g < sc.Goroutines; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < sc.Ops; i++ {
				select {
				case <-ctx.Done():
					return
				default:
				}

				id := ids[rng.Intn(len(ids))]
				page, err := r.pool.FetchPage(id)
				if err != nil {
					// Exhaustion and injected disk errors are part of the
					// game; the page simply stays unpinned.
					r.mu.Lock()
					result.FetchFails++
					r.mu.Unlock()
					continue
				}
				r.mu.Lock()
				result.Fetches++
				r.mu.Unlock()

				if page.ID != id {
					r.recordError(result, fmt.Errorf("fetched page %d when asking for %d", page.ID, id))
				}

				dirty := rng.Float64() < sc.DirtyRatio
				if err := r.pool.UnpinPage(id, dirty); err != nil {
					r.recordError(result, fmt.Errorf("unpin of a page we hold: %w", err))
					continue
				}
				r.mu.Lock()
				result.Unpins++
				r.mu.Unlock()
			}
		}(sc.Seed + int64(g))
	}
	wg.Wait()

	if err := r.CheckInvariants(); err != nil {
		return result, err
	}
	if result.Fetches != result.Unpins {
		return result, fmt.Errorf("chaos: %d fetches but %d unpins; a pin leaked", result.Fetches, result.Unpins)
	}
	return result, nil
}

func (r *Runner) recordError(result *Result, err error) {
	r.mu.Lock()
	result.Errors = append(result.Errors, err)
	r.mu.Unlock()
}

// seedWorkingSet allocates the scenario's pages and releases them, so the
// workload starts from a pool of known, unpinned pages.
func (r *Runner) seedWorkingSet(n int) ([]storage.PageID, error) {
	ids := make([]storage.PageID, 0, n)
	for i := 0; i < n; i++ {
		page, err := r.pool.NewPage()
		if err != nil {
			// Each seeded page is unpinned at once, so a pool smaller
			// than the working set evicts earlier pages rather than
			// failing here. A later allocation error ends seeding with
			// the pages seeded so far.
			if len(ids) > 0 {
				break
			}
			return nil, fmt.Errorf("chaos: could not seed any page: %w", err)
		}
		ids = append(ids, page.ID)
		if err := r.pool.UnpinPage(page.ID, false); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// CheckInvariants verifies the frame bookkeeping the pool promises: the
// free list, the replacer and the pinned-resident frames partition the
// pool, and after a balanced workload nothing stays pinned.
func (r *Runner) CheckInvariants() error {
	stats := r.pool.Stats()
	poolSize := stats["pool_size"].(int)
	free := stats["free_frames"].(int)
	pinned := stats["pinned_frames"].(int)
	evictable := stats["replacer_size"].(int)

	if free+pinned+evictable != poolSize {
		return fmt.Errorf("chaos: free=%d pinned=%d evictable=%d do not partition pool of %d",
			free, pinned, evictable, poolSize)
	}
	if pinned != 0 {
		return fmt.Errorf("chaos: %d frames still pinned after a balanced workload", pinned)
	}
	return nil
}
