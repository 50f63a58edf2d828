package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mnohosten/pagecache/pkg/compression"
)

// archive record layout: [4-byte page ID][4-byte payload length][payload]
const archiveRecordHeaderSize = 8

// PageArchive keeps the compressed final image of deleted pages in an
// append-only side file, so a deleted page's last content survives
// deallocation for forensic replay. It satisfies the buffer pool's
// Archiver hook.
type PageArchive struct {
	mu    sync.Mutex
	file  *os.File
	codec *compression.Compressor
	index map[PageID]archiveEntry
	end   int64
}

type archiveEntry struct {
	offset int64
	length uint32
}

// NewPageArchive opens (or creates) the archive file at path. Existing
// records are scanned to rebuild the in-memory index; for a page archived
// more than once, the latest record wins.
func NewPageArchive(path string, config *compression.Config) (*PageArchive, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive file: %w", err)
	}

	codec, err := compression.NewCompressor(config)
	if err != nil {
		file.Close()
		return nil, err
	}

	a := &PageArchive{
		file:  file,
		codec: codec,
		index: make(map[PageID]archiveEntry),
	}
	if err := a.rebuildIndex(); err != nil {
		codec.Close()
		file.Close()
		return nil, err
	}
	return a, nil
}

func (a *PageArchive) rebuildIndex() error {
	var header [archiveRecordHeaderSize]byte
	offset := int64(0)
	for {
		if _, err := a.file.ReadAt(header[:], offset); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to scan archive at offset %d: %w", offset, err)
		}
		id := PageID(binary.LittleEndian.Uint32(header[0:4]))
		length := binary.LittleEndian.Uint32(header[4:8])
		a.index[id] = archiveEntry{offset: offset + archiveRecordHeaderSize, length: length}
		offset += archiveRecordHeaderSize + int64(length)
	}
	a.end = offset
	return nil
}

// Archive compresses image and appends it under id. Called by the buffer
// pool from DeletePage, after the final flush and before deallocation.
func (a *PageArchive) Archive(id PageID, image []byte) error {
	compressed, err := a.codec.Compress(image)
	if err != nil {
		return fmt.Errorf("failed to compress page %d: %w", id, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	record := make([]byte, archiveRecordHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(record[0:4], uint32(id))
	binary.LittleEndian.PutUint32(record[4:8], uint32(len(compressed)))
	copy(record[archiveRecordHeaderSize:], compressed)

	if _, err := a.file.WriteAt(record, a.end); err != nil {
		return fmt.Errorf("failed to append archive record for page %d: %w", id, err)
	}
	a.index[id] = archiveEntry{offset: a.end + archiveRecordHeaderSize, length: uint32(len(compressed))}
	a.end += int64(len(record))
	return nil
}

// Retrieve returns the decompressed final image of id, if archived. ok is
// false if id was never archived.
func (a *PageArchive) Retrieve(id PageID) ([]byte, bool, error) {
	a.mu.Lock()
	entry, ok := a.index[id]
	a.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	compressed := make([]byte, entry.length)
	if _, err := a.file.ReadAt(compressed, entry.offset); err != nil {
		return nil, false, fmt.Errorf("failed to read archive record for page %d: %w", id, err)
	}
	image, err := a.codec.Decompress(compressed)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decompress page %d: %w", id, err)
	}
	return image, true, nil
}

// Len returns the number of distinct pages currently archived.
func (a *PageArchive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.index)
}

// Close syncs and closes the archive file.
func (a *PageArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.codec.Close()
	if err := a.file.Sync(); err != nil {
		a.file.Close()
		return err
	}
	return a.file.Close()
}
