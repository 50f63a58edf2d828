package storage

import (
	"encoding/binary"
	"fmt"
)

const (
	// PageSize is the size of each page (4KB, typical OS page size).
	PageSize = 4096

	// PageHeaderSize is the size of the page header.
	PageHeaderSize = 16
)

// PageType represents the type of page.
type PageType uint8

const (
	PageTypeData PageType = iota
	PageTypeFreeMap
)

func (t PageType) String() string {
	switch t {
	case PageTypeData:
		return "data"
	case PageTypeFreeMap:
		return "free_map"
	default:
		return "unknown"
	}
}

// PageID is a unique identifier for a page.
type PageID uint32

// InvalidPageID marks the absence of a page. Page 0 of the file holds the
// free-space map, so no data page carries this ID.
const InvalidPageID PageID = 0

// Page represents a fixed-size block of data. LSN is reserved for a future
// log manager to stamp the sequence number of the last WAL record covering
// this page; nothing in this module writes it today.
type Page struct {
	ID       PageID
	Type     PageType
	LSN      uint64
	Data     []byte
	IsDirty  bool
	PinCount int
}

// NewPage creates a new page.
func NewPage(id PageID, pageType PageType) *Page {
	return &Page{
		ID:       id,
		Type:     pageType,
		Data:     make([]byte, PageSize-PageHeaderSize),
		IsDirty:  false,
		PinCount: 0,
	}
}

// Serialize converts the page to bytes for storage.
func (p *Page) Serialize() []byte {
	buf := make([]byte, PageSize)

	// Header: [4-byte ID][1-byte Type][8-byte LSN][3-byte reserved]
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.ID))
	buf[4] = byte(p.Type)
	binary.LittleEndian.PutUint64(buf[5:13], p.LSN)
	// bytes 13-16 reserved

	copy(buf[PageHeaderSize:], p.Data)

	return buf
}

// Deserialize loads page data from bytes.
func (p *Page) Deserialize(data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("invalid page size: expected %d, got %d", PageSize, len(data))
	}

	p.ID = PageID(binary.LittleEndian.Uint32(data[0:4]))
	p.Type = PageType(data[4])
	p.LSN = binary.LittleEndian.Uint64(data[5:13])

	p.Data = make([]byte, PageSize-PageHeaderSize)
	copy(p.Data, data[PageHeaderSize:])

	return nil
}

// Pin increments the pin count (page is in use).
func (p *Page) Pin() {
	p.PinCount++
}

// Unpin decrements the pin count.
func (p *Page) Unpin() {
	if p.PinCount > 0 {
		p.PinCount--
	}
}

// IsPinned returns true if the page is pinned.
func (p *Page) IsPinned() bool {
	return p.PinCount > 0
}

// MarkDirty marks the page as modified.
func (p *Page) MarkDirty() {
	p.IsDirty = true
}

// FreeSpace returns the amount of free space in the page.
func (p *Page) FreeSpace() int {
	return len(p.Data)
}

// ResetMemory zeroes the page's data buffer, as a freshly allocated page
// must not expose a previous occupant's bytes.
func (p *Page) ResetMemory() {
	for i := range p.Data {
		p.Data[i] = 0
	}
}
