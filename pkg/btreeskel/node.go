// Package btreeskel holds the node layout a B-tree built over the buffer
// pool would use: a tagged variant over {Inner, Leaf} whose header and
// payload are views over a pooled page's buffer. It carries no search or
// split logic; it exists to demonstrate a consumer driving the pool's
// pin/unpin protocol end to end.
package btreeskel

import (
	"encoding/binary"
	"fmt"

	"github.com/mnohosten/pagecache/pkg/storage"
)

// NodeType discriminates the two node variants.
type NodeType uint8

const (
	NodeTypeInner NodeType = iota + 1
	NodeTypeLeaf
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeInner:
		return "inner"
	case NodeTypeLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// Node header layout over page.Data:
// [1-byte type][4-byte page ID][2-byte entry count][1-byte reserved]
const nodeHeaderSize = 8

// Node is a typed view over a pooled page. It owns nothing: the page
// stays pinned by whoever fetched it, and every accessor reads or writes
// the page buffer in place.
type Node struct {
	page *storage.Page
}

// InitNode stamps a fresh node header of type t onto page, which must be
// pinned by the caller. The entry count starts at zero.
func InitNode(page *storage.Page, t NodeType) *Node {
	page.Data[0] = byte(t)
	binary.LittleEndian.PutUint32(page.Data[1:5], uint32(page.ID))
	binary.LittleEndian.PutUint16(page.Data[5:7], 0)
	return &Node{page: page}
}

// LoadNode interprets page as a node, validating the header.
func LoadNode(page *storage.Page) (*Node, error) {
	t := NodeType(page.Data[0])
	if t != NodeTypeInner && t != NodeTypeLeaf {
		return nil, fmt.Errorf("btreeskel: page %d holds no node (type byte %d)", page.ID, page.Data[0])
	}
	if got := storage.PageID(binary.LittleEndian.Uint32(page.Data[1:5])); got != page.ID {
		return nil, fmt.Errorf("btreeskel: node header claims page %d but lives on page %d", got, page.ID)
	}
	return &Node{page: page}, nil
}

// Type returns the node's variant tag.
func (n *Node) Type() NodeType {
	return NodeType(n.page.Data[0])
}

// PageID returns the page the node lives on, as recorded in its header.
func (n *Node) PageID() storage.PageID {
	return storage.PageID(binary.LittleEndian.Uint32(n.page.Data[1:5]))
}

// EntryCount returns the number of entries the node claims to hold.
func (n *Node) EntryCount() int {
	return int(binary.LittleEndian.Uint16(n.page.Data[5:7]))
}

// SetEntryCount records the number of entries. The caller is responsible
// for unpinning with the dirty flag set.
func (n *Node) SetEntryCount(count int) {
	binary.LittleEndian.PutUint16(n.page.Data[5:7], uint16(count))
}

// Payload returns the variant-specific byte region after the header. Inner
// nodes would lay out child pointers here, leaves their records; this
// package leaves the interpretation to the (out-of-scope) tree logic.
func (n *Node) Payload() []byte {
	return n.page.Data[nodeHeaderSize:]
}
