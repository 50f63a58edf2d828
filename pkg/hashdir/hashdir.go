// Package hashdir implements an extendible hash directory: a map whose
// bucket array grows incrementally (doubling only the buckets that actually
// overflow) instead of rehashing the whole table on every resize.
package hashdir

import "sync"

// HashFunc computes the hash of a key. Callers provide one because Go has
// no built-in hash for arbitrary comparable types.
type HashFunc[K comparable] func(key K) uint64

// bucket holds up to maxSize entries sharing the same local depth.
type bucket[K comparable, V any] struct {
	depth int
	keys  []K
	vals  []V
}

func newBucket[K comparable, V any](depth, maxSize int) *bucket[K, V] {
	return &bucket[K, V]{
		depth: depth,
		keys:  make([]K, 0, maxSize),
		vals:  make([]V, 0, maxSize),
	}
}

func (b *bucket[K, V]) find(key K) (V, bool) {
	for i, k := range b.keys {
		if k == key {
			return b.vals[i], true
		}
	}
	var zero V
	return zero, false
}

func (b *bucket[K, V]) remove(key K) bool {
	for i, k := range b.keys {
		if k == key {
			last := len(b.keys) - 1
			b.keys[i] = b.keys[last]
			b.vals[i] = b.vals[last]
			b.keys = b.keys[:last]
			b.vals = b.vals[:last]
			return true
		}
	}
	return false
}

func (b *bucket[K, V]) append(key K, val V) {
	b.keys = append(b.keys, key)
	b.vals = append(b.vals, val)
}

// Directory is a generic extendible hash table: page-id -> frame in the
// buffer pool's usage, but templated over K and V so it can back any
// fixed-width key/value mapping.
type Directory[K comparable, V any] struct {
	mu          sync.Mutex
	globalDepth int
	maxSize     int
	hash        HashFunc[K]
	buckets     []*bucket[K, V]
}

// New returns a directory with a single bucket at depth zero. maxSize bounds
// the number of entries a bucket holds before it must split.
func New[K comparable, V any](maxSize int, hash HashFunc[K]) *Directory[K, V] {
	return &Directory[K, V]{
		maxSize: maxSize,
		hash:    hash,
		buckets: []*bucket[K, V]{newBucket[K, V](0, maxSize)},
	}
}

// GetGlobalDepth returns the number of low-order bits currently used to
// index the bucket array.
func (d *Directory[K, V]) GetGlobalDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.globalDepth
}

// GetLocalDepth returns the depth of the bucket at bucketID.
func (d *Directory[K, V]) GetLocalDepth(bucketID int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buckets[bucketID].depth
}

// GetNumBuckets returns the number of distinct buckets (aliased slots in the
// directory that point at the same bucket count once).
func (d *Directory[K, V]) GetNumBuckets() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[*bucket[K, V]]struct{})
	for _, b := range d.buckets {
		seen[b] = struct{}{}
	}
	return len(seen)
}

func (d *Directory[K, V]) bucketID(key K) int {
	mask := uint64(1)<<uint(d.globalDepth) - 1
	return int(d.hash(key) & mask)
}

// Find looks up key, returning its value and whether it was present.
func (d *Directory[K, V]) Find(key K) (V, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := d.buckets[d.bucketID(key)]
	return b.find(key)
}

// Remove deletes key from the directory. It does not coalesce buckets or
// shrink global depth; a long sequence of removals leaves the directory
// oversized rather than paying for merges.
func (d *Directory[K, V]) Remove(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := d.buckets[d.bucketID(key)]
	return b.remove(key)
}

// Insert adds key/val, splitting the owning bucket (and doubling the
// directory if the bucket is already at global depth) as many times as
// needed to make room.
func (d *Directory[K, V]) Insert(key K, val V) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.insertLocked(key, val)
}

func (d *Directory[K, V]) insertLocked(key K, val V) {
	id := d.bucketID(key)
	b := d.buckets[id]
	if len(b.keys) < d.maxSize {
		b.append(key, val)
		return
	}
	d.expand(id)
	d.insertLocked(key, val)
}

// expand grows the bucket at bucketID by one level: a local split if the
// bucket's depth is still below the directory's global depth (other
// directory slots already alias it at the right stride), or a global split
// that doubles the whole directory when the bucket is already as deep as
// the directory itself.
func (d *Directory[K, V]) expand(bucketID int) {
	b := d.buckets[bucketID]
	if b.depth < d.globalDepth {
		d.splitLocal(bucketID)
	} else {
		d.splitGlobal(bucketID)
	}
}

func (d *Directory[K, V]) splitLocal(bucketID int) {
	b := d.buckets[bucketID]
	depth := b.depth + 1
	x := newBucket[K, V](depth, d.maxSize)
	y := newBucket[K, V](depth, d.maxSize)

	splitMask := uint64(1) << uint(b.depth)
	for i, k := range b.keys {
		if d.hash(k)&splitMask != 0 {
			y.append(k, b.vals[i])
		} else {
			x.append(k, b.vals[i])
		}
	}

	stride := uint64(1) << uint(b.depth)
	n := uint64(len(d.buckets))
	for index := uint64(bucketID) & (stride - 1); index < n; {
		d.buckets[index] = x
		index += stride
		d.buckets[index] = y
		index += stride
	}
}

func (d *Directory[K, V]) splitGlobal(bucketID int) {
	// The hash is 64 bits wide; a deeper directory cannot discriminate
	// further. Reaching this means more than maxSize keys share a full
	// 64-bit hash, which insertion does not support.
	if d.globalDepth >= 64 {
		panic("hashdir: global depth exceeds hash width")
	}

	n := len(d.buckets)
	grown := make([]*bucket[K, V], n*2)
	copy(grown, d.buckets)
	copy(grown[n:], d.buckets)

	b := d.buckets[bucketID]
	depth := b.depth + 1
	x := newBucket[K, V](depth, d.maxSize)
	y := newBucket[K, V](depth, d.maxSize)

	splitMask := uint64(1) << uint(depth-1)
	for i, k := range b.keys {
		if d.hash(k)&splitMask != 0 {
			y.append(k, b.vals[i])
		} else {
			x.append(k, b.vals[i])
		}
	}

	grown[bucketID] = x
	grown[bucketID+n] = y
	d.buckets = grown
	d.globalDepth++
}
