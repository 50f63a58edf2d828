// Package chaos provides fault injection for the buffer pool's disk path
// and a scenario runner that hammers a pool from many goroutines while
// checking its structural invariants.
package chaos

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mnohosten/pagecache/pkg/bufferpool"
	"github.com/mnohosten/pagecache/pkg/storage"
)

// FaultType represents the disk operations a fault can target
type FaultType int

const (
	FaultTypeNone FaultType = iota
	FaultTypeRead
	FaultTypeWrite
	FaultTypeAllocate
	FaultTypeDeallocate
)

func (ft FaultType) String() string {
	switch ft {
	case FaultTypeNone:
		return "None"
	case FaultTypeRead:
		return "Read"
	case FaultTypeWrite:
		return "Write"
	case FaultTypeAllocate:
		return "Allocate"
	case FaultTypeDeallocate:
		return "Deallocate"
	default:
		return "Unknown"
	}
}

// ErrInjected is the error returned by triggered faults that carry no
// custom message.
var ErrInjected = errors.New("chaos: injected fault")

// FaultConfig defines the configuration for a specific fault type
type FaultConfig struct {
	Type        FaultType
	Probability float64       // 0.0 to 1.0
	Delay       time.Duration // Latency added before the operation (simulates slow I/O)
	DelayOnly   bool          // Sleep through Delay but let the operation proceed
	Err         error         // Error to return when triggered (nil = ErrInjected)
}

// Injector decides, per disk operation, whether to delay it or fail it.
type Injector struct {
	mu           sync.RWMutex
	enabled      bool
	faults       map[FaultType]*FaultConfig
	triggerCount map[FaultType]*int64
	rng          *rand.Rand
	rngMu        sync.Mutex
}

// NewInjector creates an injector seeded for reproducible runs. A zero
// seed picks the current time.
func NewInjector(seed int64) *Injector {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Injector{
		faults:       make(map[FaultType]*FaultConfig),
		triggerCount: make(map[FaultType]*int64),
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// Enable arms the injector.
func (in *Injector) Enable() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.enabled = true
}

// Disable disarms all faults without clearing their configuration.
func (in *Injector) Disable() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.enabled = false
}

// InjectFault registers (or replaces) the fault for config.Type.
func (in *Injector) InjectFault(config *FaultConfig) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.faults[config.Type] = config
	if _, ok := in.triggerCount[config.Type]; !ok {
		var n int64
		in.triggerCount[config.Type] = &n
	}
}

// ClearFault removes the fault for ft.
func (in *Injector) ClearFault(ft FaultType) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.faults, ft)
}

// TriggerCount reports how many times ft has fired.
func (in *Injector) TriggerCount(ft FaultType) int64 {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if n, ok := in.triggerCount[ft]; ok {
		return atomic.LoadInt64(n)
	}
	return 0
}

// check applies the fault configured for ft, sleeping through its delay
// and returning its error if the probability roll triggers.
func (in *Injector) check(ft FaultType) error {
	in.mu.RLock()
	if !in.enabled {
		in.mu.RUnlock()
		return nil
	}
	config, ok := in.faults[ft]
	if !ok {
		in.mu.RUnlock()
		return nil
	}
	counter := in.triggerCount[ft]
	in.mu.RUnlock()

	in.rngMu.Lock()
	roll := in.rng.Float64()
	in.rngMu.Unlock()
	if roll >= config.Probability {
		return nil
	}

	atomic.AddInt64(counter, 1)
	if config.Delay > 0 {
		time.Sleep(config.Delay)
	}
	if config.DelayOnly {
		return nil
	}
	if config.Err != nil {
		return config.Err
	}
	return ErrInjected
}

// FaultyDiskManager decorates a DiskManager with the injector's faults. It
// satisfies bufferpool.DiskManager, so a pool under test cannot tell it
// from the real thing.
type FaultyDiskManager struct {
	inner    bufferpool.DiskManager
	injector *Injector
}

// NewFaultyDiskManager wraps inner with injector.
func NewFaultyDiskManager(inner bufferpool.DiskManager, injector *Injector) *FaultyDiskManager {
	return &FaultyDiskManager{inner: inner, injector: injector}
}

func (f *FaultyDiskManager) ReadPage(id storage.PageID) (*storage.Page, error) {
	if err := f.injector.check(FaultTypeRead); err != nil {
		return nil, err
	}
	return f.inner.ReadPage(id)
}

func (f *FaultyDiskManager) WritePage(page *storage.Page) error {
	if err := f.injector.check(FaultTypeWrite); err != nil {
		return err
	}
	return f.inner.WritePage(page)
}

func (f *FaultyDiskManager) AllocatePage() (storage.PageID, error) {
	if err := f.injector.check(FaultTypeAllocate); err != nil {
		return storage.InvalidPageID, err
	}
	return f.inner.AllocatePage()
}

func (f *FaultyDiskManager) DeallocatePage(id storage.PageID) error {
	if err := f.injector.check(FaultTypeDeallocate); err != nil {
		return err
	}
	return f.inner.DeallocatePage(id)
}
