package hashdir

import (
	"sync"
	"testing"
)

func identityHash(k int) uint64 { return uint64(k) }

func TestFindInsertRemove(t *testing.T) {
	d := New[int, string](2, identityHash)

	d.Insert(1, "one")
	d.Insert(2, "two")

	if v, ok := d.Find(1); !ok || v != "one" {
		t.Fatalf("Find(1) = %q, %v", v, ok)
	}
	if v, ok := d.Find(2); !ok || v != "two" {
		t.Fatalf("Find(2) = %q, %v", v, ok)
	}
	if _, ok := d.Find(3); ok {
		t.Fatal("Find(3) should miss")
	}

	if !d.Remove(1) {
		t.Fatal("Remove(1) should succeed")
	}
	if _, ok := d.Find(1); ok {
		t.Fatal("Find(1) should miss after removal")
	}
	if d.Remove(1) {
		t.Fatal("second Remove(1) should fail")
	}
}

func TestGlobalDepthGrowsOnOverflow(t *testing.T) {
	d := New[int, int](2, identityHash)

	if d.GetGlobalDepth() != 0 {
		t.Fatalf("expected initial global depth 0, got %d", d.GetGlobalDepth())
	}

	// Two keys whose low bit differs force a global split once the single
	// bucket (maxSize 2) overflows on the third insert.
	d.Insert(0, 0)
	d.Insert(2, 2)
	d.Insert(1, 1)

	if d.GetGlobalDepth() == 0 {
		t.Fatal("expected global depth to grow after bucket overflow")
	}
	for _, k := range []int{0, 1, 2} {
		if v, ok := d.Find(k); !ok || v != k {
			t.Fatalf("Find(%d) = %d, %v, want %d, true", k, v, ok, k)
		}
	}
}

func TestNumBucketsCountsDistinctBuckets(t *testing.T) {
	d := New[int, int](1, identityHash)
	if d.GetNumBuckets() != 1 {
		t.Fatalf("expected 1 bucket initially, got %d", d.GetNumBuckets())
	}
	d.Insert(0, 0)
	d.Insert(1, 1) // overflow forces a split, growing distinct bucket count
	if d.GetNumBuckets() < 2 {
		t.Fatalf("expected at least 2 distinct buckets after split, got %d", d.GetNumBuckets())
	}
}

func TestLocalDepthNeverExceedsGlobalDepth(t *testing.T) {
	d := New[int, int](1, identityHash)
	for i := 0; i < 8; i++ {
		d.Insert(i, i)
	}
	global := d.GetGlobalDepth()
	for id := 0; id < len(d.buckets); id++ {
		if d.GetLocalDepth(id) > global {
			t.Fatalf("bucket %d local depth %d exceeds global depth %d", id, d.GetLocalDepth(id), global)
		}
	}
}

func TestGrowthSequence(t *testing.T) {
	d := New[int, int](2, identityHash)

	// Keys 0..3 under the identity hash: the third insert overflows the
	// root bucket and forces a global split, the fourth forces another.
	d.Insert(0, 10)
	d.Insert(1, 11)
	d.Insert(2, 12)
	if d.GetGlobalDepth() < 1 {
		t.Fatalf("expected global depth >= 1 after third insert, got %d", d.GetGlobalDepth())
	}
	d.Insert(3, 13)
	if d.GetGlobalDepth() < 2 {
		t.Fatalf("expected global depth >= 2 after fourth insert, got %d", d.GetGlobalDepth())
	}

	for k := 0; k < 4; k++ {
		if v, ok := d.Find(k); !ok || v != 10+k {
			t.Fatalf("Find(%d) = %d, %v, want %d, true", k, v, ok, 10+k)
		}
	}
}

func TestConsecutiveSplitsSamePrefix(t *testing.T) {
	d := New[int, int](1, identityHash)

	// 0, 2, 4, 8 share low bits pairwise long enough that each insert
	// splits the same collision bucket repeatedly.
	keys := []int{0, 2, 4, 8}
	for _, k := range keys {
		d.Insert(k, k*100)
	}
	for _, k := range keys {
		if v, ok := d.Find(k); !ok || v != k*100 {
			t.Fatalf("Find(%d) = %d, %v, want %d, true", k, v, ok, k*100)
		}
	}
	if !d.Remove(4) {
		t.Fatal("Remove(4) should succeed")
	}
	if _, ok := d.Find(4); ok {
		t.Fatal("Find(4) should miss after removal")
	}
	for _, k := range []int{0, 2, 8} {
		if _, ok := d.Find(k); !ok {
			t.Fatalf("Find(%d) should still hit after removing 4", k)
		}
	}
}

func TestDiscriminatorInvariant(t *testing.T) {
	const maxSize = 3
	d := New[int, int](maxSize, identityHash)

	n := 200
	for i := 0; i < n; i++ {
		k := i * 7 // spread the low bits around a little
		d.Insert(k, i)
	}

	// Every key must live in a bucket whose slot index agrees with the
	// key's hash on the bucket's local depth bits.
	for slot, b := range d.buckets {
		mask := uint64(1)<<uint(b.depth) - 1
		for _, k := range b.keys {
			if identityHash(k)&mask != uint64(slot)&mask {
				t.Fatalf("key %d in slot %d violates local depth %d", k, slot, b.depth)
			}
		}
		if len(b.keys) > maxSize {
			t.Fatalf("bucket at slot %d holds %d entries, max is %d", slot, len(b.keys), maxSize)
		}
	}

	if min := (n + maxSize - 1) / maxSize; d.GetNumBuckets() < min {
		t.Fatalf("%d entries need at least %d buckets, directory has %d", n, min, d.GetNumBuckets())
	}
	if got := len(d.buckets); got != 1<<uint(d.globalDepth) {
		t.Fatalf("directory length %d is not 2^globalDepth (%d)", got, 1<<uint(d.globalDepth))
	}
}

func TestDirectoryLengthStaysPowerOfTwo(t *testing.T) {
	d := New[int, int](2, identityHash)
	prevDepth := d.GetGlobalDepth()
	for i := 0; i < 64; i++ {
		d.Insert(i, i)
		depth := d.GetGlobalDepth()
		if depth < prevDepth {
			t.Fatalf("global depth shrank from %d to %d", prevDepth, depth)
		}
		prevDepth = depth
	}
}

func TestConcurrentInsertFind(t *testing.T) {
	d := New[int, int](4, identityHash)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				k := base*250 + i
				d.Insert(k, k)
				if v, ok := d.Find(k); !ok || v != k {
					t.Errorf("Find(%d) = %d, %v after insert", k, v, ok)
				}
			}
		}(g)
	}
	wg.Wait()

	for k := 0; k < 1000; k++ {
		if v, ok := d.Find(k); !ok || v != k {
			t.Fatalf("Find(%d) = %d, %v, want %d, true", k, v, ok, k)
		}
	}
}
