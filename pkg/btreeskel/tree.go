package btreeskel

import (
	"fmt"

	"github.com/mnohosten/pagecache/pkg/bufferpool"
	"github.com/mnohosten/pagecache/pkg/storage"
)

// Tree is the skeleton of a B-tree consumer: it owns a root page in the
// buffer pool and nothing else. Its value is showing the full pin
// lifecycle a real access method would run through the pool.
type Tree struct {
	pool *bufferpool.Pool
	root storage.PageID
}

// NewTree allocates a root leaf through pool and releases it again. The
// root's identity persists in the returned Tree; its content lives in the
// pool and on disk.
func NewTree(pool *bufferpool.Pool) (*Tree, error) {
	page, err := pool.NewPage()
	if err != nil {
		return nil, fmt.Errorf("btreeskel: allocate root: %w", err)
	}
	InitNode(page, NodeTypeLeaf)
	if err := pool.UnpinPage(page.ID, true); err != nil {
		return nil, err
	}
	return &Tree{pool: pool, root: page.ID}, nil
}

// OpenTree attaches to an existing root page, verifying it holds a node.
func OpenTree(pool *bufferpool.Pool, root storage.PageID) (*Tree, error) {
	page, err := pool.FetchPage(root)
	if err != nil {
		return nil, fmt.Errorf("btreeskel: fetch root: %w", err)
	}
	defer pool.UnpinPage(root, false)

	if _, err := LoadNode(page); err != nil {
		return nil, err
	}
	return &Tree{pool: pool, root: root}, nil
}

// RootID returns the root's page identifier.
func (t *Tree) RootID() storage.PageID {
	return t.root
}

// WithRoot fetches the root node, hands it to fn and unpins it afterward,
// marking the page dirty if fn reports it mutated the node. This is the
// pin discipline every pool consumer follows.
func (t *Tree) WithRoot(fn func(n *Node) (dirty bool, err error)) error {
	page, err := t.pool.FetchPage(t.root)
	if err != nil {
		return fmt.Errorf("btreeskel: fetch root: %w", err)
	}

	node, err := LoadNode(page)
	if err != nil {
		t.pool.UnpinPage(t.root, false)
		return err
	}

	dirty, fnErr := fn(node)
	if err := t.pool.UnpinPage(t.root, dirty); err != nil {
		return err
	}
	return fnErr
}
