package cache

import "testing"

func TestInsertAndGet(t *testing.T) {
	c := New(2)
	h := c.Insert(Key{FileID: 1, BlockOffset: 0}, []byte("block-a"))
	h.Release()

	got, ok := c.Get(Key{FileID: 1, BlockOffset: 0})
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if string(got.Bytes()) != "block-a" {
		t.Fatalf("got %q, want %q", got.Bytes(), "block-a")
	}
	got.Release()
}

func TestEvictsLeastRecentlyUsedWhenUnpinned(t *testing.T) {
	c := New(2)
	h1 := c.Insert(Key{FileID: 1, BlockOffset: 0}, []byte("a"))
	h1.Release()
	h2 := c.Insert(Key{FileID: 1, BlockOffset: 1}, []byte("b"))
	h2.Release()
	h3 := c.Insert(Key{FileID: 1, BlockOffset: 2}, []byte("c"))
	h3.Release()

	if _, ok := c.Get(Key{FileID: 1, BlockOffset: 0}); ok {
		t.Fatalf("expected the least recently used entry to be evicted")
	}
	if _, ok := c.Get(Key{FileID: 1, BlockOffset: 1}); !ok {
		t.Fatalf("expected offset 1 to survive")
	}
}

func TestPinnedEntryIsNotEvicted(t *testing.T) {
	c := New(1)
	h1 := c.Insert(Key{FileID: 1, BlockOffset: 0}, []byte("a"))
	// h1 stays pinned (no Release) while a second entry is inserted.
	c.Insert(Key{FileID: 1, BlockOffset: 1}, []byte("b")).Release()

	if _, ok := c.Get(Key{FileID: 1, BlockOffset: 0}); !ok {
		t.Fatalf("a pinned entry must survive even over capacity")
	}
	h1.Release()
	h1.Release()
}

func TestStatsReportsLengthAndCapacity(t *testing.T) {
	c := New(5)
	c.Insert(Key{FileID: 1, BlockOffset: 0}, []byte("a")).Release()
	length, capacity := c.Stats()
	if length != 1 || capacity != 5 {
		t.Fatalf("got (%d, %d), want (1, 5)", length, capacity)
	}
}

func TestZeroCapacityClampedToOne(t *testing.T) {
	c := New(0)
	_, capacity := c.Stats()
	if capacity != 1 {
		t.Fatalf("got capacity %d, want 1", capacity)
	}
}
