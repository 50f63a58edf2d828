package storage

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// DiskManager performs the page file I/O the buffer pool delegates: read
// and write of fixed-size pages by ID, allocation of fresh IDs and
// reclamation of deallocated ones. Page 0 of the file is reserved for the
// free-space map; data pages start at 1, which also keeps every live ID
// distinct from InvalidPageID.
type DiskManager struct {
	mu          sync.Mutex
	file        *os.File
	nextPageID  PageID
	freeMap     *FreeMap
	totalReads  int64
	totalWrites int64
}

// NewDiskManager opens (or creates) the page file at path and loads the
// free-space map from the reserved page.
func NewDiskManager(path string) (*DiskManager, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat data file: %w", err)
	}

	dm := &DiskManager{
		file:       file,
		nextPageID: PageID(info.Size() / PageSize),
		freeMap:    NewFreeMap(),
	}
	if dm.nextPageID < 1 {
		dm.nextPageID = 1
	}

	if info.Size() >= PageSize {
		if err := dm.loadFreeMap(); err != nil {
			file.Close()
			return nil, err
		}
	}
	return dm, nil
}

// loadFreeMap restores the free set from the reserved page. A file whose
// page 0 was never written (all zeroes deserializes as a data page) simply
// starts with an empty map.
func (dm *DiskManager) loadFreeMap() error {
	raw := make([]byte, PageSize)
	n, err := dm.file.ReadAt(raw, 0)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read free map page: %w", err)
	}
	if n < PageSize {
		return nil
	}

	page := NewPage(FreeMapPageID, PageTypeData)
	if err := page.Deserialize(raw); err != nil {
		return fmt.Errorf("failed to parse free map page: %w", err)
	}
	if page.Type != PageTypeFreeMap {
		return nil
	}

	m, err := LoadFreeMap(page)
	if err != nil {
		return err
	}
	dm.freeMap = m
	return nil
}

// saveFreeMap writes the free set back to the reserved page. Must be
// called with dm.mu held. Metadata writes do not count toward the write
// statistics; those track data-page traffic.
func (dm *DiskManager) saveFreeMap() error {
	page := NewPage(FreeMapPageID, PageTypeFreeMap)
	dm.freeMap.StoreTo(page)
	if _, err := dm.file.WriteAt(page.Serialize(), 0); err != nil {
		return fmt.Errorf("failed to persist free map: %w", err)
	}
	return nil
}

// ReadPage reads the page identified by pageID. Reading past the end of
// the file, or a slot inside the file that was never written, yields a
// zeroed page, so a freshly allocated, never-written page reads back empty.
func (dm *DiskManager) ReadPage(pageID PageID) (*Page, error) {
	if pageID == FreeMapPageID {
		return nil, fmt.Errorf("page %d is reserved for the free map", pageID)
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	raw := make([]byte, PageSize)
	n, err := dm.file.ReadAt(raw, int64(pageID)*PageSize)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read page %d: %w", pageID, err)
	}
	dm.totalReads++

	if n < PageSize {
		return NewPage(pageID, PageTypeData), nil
	}

	page := NewPage(pageID, PageTypeData)
	if err := page.Deserialize(raw); err != nil {
		return nil, fmt.Errorf("failed to deserialize page %d: %w", pageID, err)
	}
	// A never-written slot below the end of the file reads as zeroes and
	// carries no page ID; it is as empty as a slot past the end.
	if page.ID == InvalidPageID {
		return NewPage(pageID, PageTypeData), nil
	}
	return page, nil
}

// WritePage durably stores page at its ID's slot.
func (dm *DiskManager) WritePage(page *Page) error {
	if page.ID == FreeMapPageID {
		return fmt.Errorf("page %d is reserved for the free map", page.ID)
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if _, err := dm.file.WriteAt(page.Serialize(), int64(page.ID)*PageSize); err != nil {
		return fmt.Errorf("failed to write page %d: %w", page.ID, err)
	}
	dm.totalWrites++
	return nil
}

// AllocatePage returns a page ID for new data, preferring the lowest
// deallocated ID over growing the file.
func (dm *DiskManager) AllocatePage() (PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if id, ok := dm.freeMap.Pop(); ok {
		if err := dm.saveFreeMap(); err != nil {
			dm.freeMap.Mark(id)
			return InvalidPageID, err
		}
		return id, nil
	}

	id := dm.nextPageID
	dm.nextPageID++
	return id, nil
}

// DeallocatePage returns pageID to the free set. IDs beyond the map's
// tracking range are silently left allocated; deallocating the reserved
// page, an unallocated ID or an already-free ID is an error.
func (dm *DiskManager) DeallocatePage(pageID PageID) error {
	if pageID == FreeMapPageID {
		return fmt.Errorf("cannot deallocate the reserved page %d", pageID)
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if pageID >= dm.nextPageID {
		return fmt.Errorf("cannot deallocate page %d: never allocated (next is %d)", pageID, dm.nextPageID)
	}
	if !dm.freeMap.Tracks(pageID) {
		return nil
	}
	if dm.freeMap.Has(pageID) {
		return fmt.Errorf("page %d is already deallocated", pageID)
	}

	dm.freeMap.Mark(pageID)
	if err := dm.saveFreeMap(); err != nil {
		dm.freeMap.Clear(pageID)
		return err
	}
	return nil
}

// Sync flushes the page file to stable storage.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.file.Sync()
}

// Close syncs and closes the page file.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if err := dm.file.Sync(); err != nil {
		dm.file.Close()
		return err
	}
	return dm.file.Close()
}

// Stats reports I/O and allocation counters for the admin surface.
func (dm *DiskManager) Stats() map[string]interface{} {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	return map[string]interface{}{
		"next_page_id": dm.nextPageID,
		"free_pages":   dm.freeMap.Count(),
		"total_reads":  dm.totalReads,
		"total_writes": dm.totalWrites,
	}
}
