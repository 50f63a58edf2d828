// Package bufferpool is the in-memory page cache sitting between a
// consumer (an index, a heap file) and the on-disk page store. It owns a
// fixed-size array of frames, a directory mapping resident page IDs to
// frames, and a replacement policy for choosing what to evict when the
// pool is full.
package bufferpool

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/mnohosten/pagecache/pkg/concurrent"
	"github.com/mnohosten/pagecache/pkg/hashdir"
	"github.com/mnohosten/pagecache/pkg/replacer"
	"github.com/mnohosten/pagecache/pkg/storage"
)

// Sentinel errors for the pool's soft failures: capacity exhaustion and
// not-found. I/O failures are returned wrapped from the DiskManager, and
// contract violations (a negative pin count, flushing the invalid page ID)
// panic rather than return.
var (
	// ErrPoolExhausted means every frame is pinned; there is nothing left
	// to evict.
	ErrPoolExhausted = errors.New("bufferpool: no unpinned frames available")
	// ErrPageNotFound means the page is not currently resident.
	ErrPageNotFound = errors.New("bufferpool: page not resident")
	// ErrPagePinned means an operation that requires a page to be unpinned
	// (deletion) was attempted on a still-pinned page.
	ErrPagePinned = errors.New("bufferpool: page is pinned")
)

// DiskManager is the external collaborator that performs durable storage.
// pkg/storage.DiskManager satisfies it; it is expressed as an interface so
// tests and the chaos harness can substitute decorators.
type DiskManager interface {
	ReadPage(id storage.PageID) (*storage.Page, error)
	WritePage(page *storage.Page) error
	AllocatePage() (storage.PageID, error)
	DeallocatePage(id storage.PageID) error
}

// LogManager is consulted before a dirty frame is written back, so a
// write-ahead log (not implemented here) can guarantee its record reached
// disk first. A nil LogManager disables the hook entirely.
type LogManager interface {
	Flush(upToLSN uint64) error
}

// Archiver receives the final serialized image of a page as it is deleted,
// before the disk manager deallocates its slot. A nil Archiver disables
// archiving.
type Archiver interface {
	Archive(id storage.PageID, image []byte) error
}

// Frame is one slot of the pool's fixed-size frame array.
type Frame struct {
	Page     *storage.Page
	PinCount int
	Dirty    bool
}

// Pool is the buffer pool manager: FetchPage, NewPage, UnpinPage, FlushPage
// and DeletePage are its external contract.
type Pool struct {
	mu        sync.Mutex
	frames    []Frame
	freeList  *concurrent.FrameStack
	directory *hashdir.Directory[storage.PageID, int]
	replacer  *replacer.LRU
	disk      DiskManager
	logMgr    LogManager
	archiver  Archiver

	events chan Event

	hits      *concurrent.Counter
	misses    *concurrent.Counter
	evictions *concurrent.Counter
}

// Event describes a pool operation for observers (the admin websocket
// stream); it is purely informational and publishing it never blocks a
// caller of the pool.
type Event struct {
	Kind   EventKind
	PageID storage.PageID
	Dirty  bool
}

// EventKind enumerates the operations a Pool can publish.
type EventKind int

const (
	EventFetch EventKind = iota
	EventEvict
	EventFlush
	EventDelete
)

func (k EventKind) String() string {
	switch k {
	case EventFetch:
		return "fetch"
	case EventEvict:
		return "evict"
	case EventFlush:
		return "flush"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

func pageIDHash(id storage.PageID) uint64 { return uint64(id) }

// New builds a pool of poolSize frames. bucketSize bounds the extendible
// hash directory's per-bucket capacity.
func New(poolSize, bucketSize int, disk DiskManager, logMgr LogManager) *Pool {
	log.Printf("bufferpool: starting pool_size=%d bucket_size=%d", poolSize, bucketSize)
	p := &Pool{
		frames:    make([]Frame, poolSize),
		freeList:  concurrent.NewFrameStack(),
		directory: hashdir.New[storage.PageID, int](bucketSize, pageIDHash),
		replacer:  replacer.New(),
		disk:      disk,
		logMgr:    logMgr,
		events:    make(chan Event, 256),
		hits:      concurrent.NewCounter(),
		misses:    concurrent.NewCounter(),
		evictions: concurrent.NewCounter(),
	}
	for i := range p.frames {
		p.freeList.Push(i)
	}
	return p
}

// SetArchiver installs an archiver consulted by DeletePage. Must be called
// before the pool is shared between goroutines.
func (p *Pool) SetArchiver(a Archiver) {
	p.archiver = a
}

// Events returns the channel the pool publishes operational events to.
// Nothing reads it by default; a slow or absent reader never blocks a pool
// call because sends are non-blocking (a full channel simply drops the
// event).
func (p *Pool) Events() <-chan Event { return p.events }

func (p *Pool) publish(ev Event) {
	select {
	case p.events <- ev:
	default:
	}
}

// writeBack flushes a frame's page to disk, consulting the log manager
// first so any WAL records covering the page are durable before the page
// itself. Must be called with p.mu held.
func (p *Pool) writeBack(f *Frame) error {
	if p.logMgr != nil {
		if err := p.logMgr.Flush(f.Page.LSN); err != nil {
			return fmt.Errorf("bufferpool: flush log before page %d: %w", f.Page.ID, err)
		}
	}
	if err := p.disk.WritePage(f.Page); err != nil {
		return fmt.Errorf("bufferpool: write page %d: %w", f.Page.ID, err)
	}
	f.Dirty = false
	return nil
}

// victim returns a frame index to reuse, preferring the free list over the
// replacer, writing the outgoing page back to disk first if it is dirty.
// Must be called with p.mu held.
func (p *Pool) victim() (int, error) {
	if v, ok := p.freeList.Pop(); ok {
		return v, nil
	}

	frameIdx, ok := p.replacer.Victim()
	if !ok {
		return 0, ErrPoolExhausted
	}

	f := &p.frames[frameIdx]
	if f.Dirty {
		if err := p.writeBack(f); err != nil {
			// The frame is still intact; make it evictable again so the
			// pool does not leak it.
			p.replacer.Insert(frameIdx)
			return 0, err
		}
	}
	p.directory.Remove(f.Page.ID)
	p.evictions.Inc()
	p.publish(Event{Kind: EventEvict, PageID: f.Page.ID})
	return frameIdx, nil
}

// FetchPage returns the page identified by id, pinning it. If the page is
// not resident it is read from disk into a frame chosen by victim.
func (p *Pool) FetchPage(id storage.PageID) (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if frameIdx, ok := p.directory.Find(id); ok {
		f := &p.frames[frameIdx]
		f.PinCount++
		if f.PinCount == 1 {
			p.replacer.Erase(frameIdx)
		}
		p.hits.Inc()
		p.publish(Event{Kind: EventFetch, PageID: id, Dirty: f.Dirty})
		return f.Page, nil
	}
	p.misses.Inc()

	frameIdx, err := p.victim()
	if err != nil {
		return nil, err
	}

	page, err := p.disk.ReadPage(id)
	if err != nil {
		// The frame was already unhooked from directory and replacer; it
		// goes back on the free list.
		p.frames[frameIdx] = Frame{}
		p.freeList.Push(frameIdx)
		return nil, fmt.Errorf("bufferpool: read page %d: %w", id, err)
	}

	p.frames[frameIdx] = Frame{Page: page, PinCount: 1}
	p.directory.Insert(id, frameIdx)
	p.publish(Event{Kind: EventFetch, PageID: id})
	return page, nil
}

// NewPage allocates a fresh page on disk and returns it pinned, resident in
// a frame chosen by victim, with a zeroed payload. Returns ErrPoolExhausted
// if every frame is pinned.
func (p *Pool) NewPage() (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameIdx, err := p.victim()
	if err != nil {
		return nil, err
	}

	id, err := p.disk.AllocatePage()
	if err != nil {
		p.frames[frameIdx] = Frame{}
		p.freeList.Push(frameIdx)
		return nil, fmt.Errorf("bufferpool: allocate page: %w", err)
	}

	page := storage.NewPage(id, storage.PageTypeData)
	p.frames[frameIdx] = Frame{Page: page, PinCount: 1}
	p.directory.Insert(id, frameIdx)
	return page, nil
}

// UnpinPage decrements id's pin count. When the count reaches zero the
// frame becomes evictable and is admitted to the replacer. isDirty is OR'd
// into the frame's dirty bit; it never clears it.
//
// Unpinning a page whose pin count is already zero is a caller bug and
// panics.
func (p *Pool) UnpinPage(id storage.PageID, isDirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameIdx, ok := p.directory.Find(id)
	if !ok {
		return ErrPageNotFound
	}
	f := &p.frames[frameIdx]
	if f.PinCount <= 0 {
		panic(fmt.Sprintf("bufferpool: unpin page %d with pin count %d", id, f.PinCount))
	}
	f.PinCount--
	if isDirty {
		f.Dirty = true
	}
	if f.PinCount == 0 {
		p.replacer.Insert(frameIdx)
	}
	return nil
}

// FlushPage writes id's current content to disk and clears the dirty bit.
// The write is unconditional, so a caller can force a clean frame's image
// out as well. It does not require id to be unpinned.
func (p *Pool) FlushPage(id storage.PageID) error {
	if id == storage.InvalidPageID {
		panic("bufferpool: flush of the invalid page ID")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	frameIdx, ok := p.directory.Find(id)
	if !ok {
		return ErrPageNotFound
	}
	if err := p.writeBack(&p.frames[frameIdx]); err != nil {
		return err
	}
	p.publish(Event{Kind: EventFlush, PageID: id})
	return nil
}

// FlushAllPages writes every dirty resident page back to disk. Used at
// shutdown and by the background flusher.
func (p *Pool) FlushAllPages() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.frames {
		f := &p.frames[i]
		if f.Page == nil || !f.Dirty {
			continue
		}
		if err := p.writeBack(f); err != nil {
			return err
		}
	}
	return nil
}

// DeletePage removes id from the pool, if resident, and asks the disk
// manager to deallocate it. If an archiver is installed, the page's final
// image is handed to it before deallocation. Returns ErrPagePinned if id
// is resident and still pinned.
func (p *Pool) DeletePage(id storage.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if frameIdx, ok := p.directory.Find(id); ok {
		f := &p.frames[frameIdx]
		if f.PinCount > 0 {
			return fmt.Errorf("bufferpool: delete page %d: %w", id, ErrPagePinned)
		}
		if f.Dirty {
			if err := p.writeBack(f); err != nil {
				return err
			}
		}
		if p.archiver != nil {
			if err := p.archiver.Archive(id, f.Page.Serialize()); err != nil {
				return fmt.Errorf("bufferpool: archive page %d: %w", id, err)
			}
		}
		p.replacer.Erase(frameIdx)
		p.directory.Remove(id)
		p.frames[frameIdx] = Frame{}
		p.freeList.Push(frameIdx)
	}

	if err := p.disk.DeallocatePage(id); err != nil {
		return fmt.Errorf("bufferpool: deallocate page %d: %w", id, err)
	}
	p.publish(Event{Kind: EventDelete, PageID: id})
	return nil
}

// FrameInfo reports the pin count and dirty bit of id's frame, if
// resident.
func (p *Pool) FrameInfo(id storage.PageID) (pinCount int, dirty bool, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameIdx, found := p.directory.Find(id)
	if !found {
		return 0, false, false
	}
	f := &p.frames[frameIdx]
	return f.PinCount, f.Dirty, true
}

// Stats reports counters for the admin surface and metrics exporter.
func (p *Pool) Stats() map[string]interface{} {
	p.mu.Lock()
	pinned, dirty := 0, 0
	for i := range p.frames {
		if p.frames[i].Page == nil {
			continue
		}
		if p.frames[i].PinCount > 0 {
			pinned++
		}
		if p.frames[i].Dirty {
			dirty++
		}
	}
	p.mu.Unlock()

	hits, misses := p.hits.Load(), p.misses.Load()
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return map[string]interface{}{
		"pool_size":     len(p.frames),
		"pinned_frames": pinned,
		"dirty_frames":  dirty,
		"hits":          hits,
		"misses":        misses,
		"hit_rate":      hitRate,
		"evictions":     p.evictions.Load(),
		"free_frames":   p.freeList.Size(),
		"global_depth":  p.directory.GetGlobalDepth(),
		"num_buckets":   p.directory.GetNumBuckets(),
		"replacer_size": p.replacer.Size(),
	}
}
