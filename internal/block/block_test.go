package block

import (
	"strings"
	"testing"

	"github.com/aalhour/lsmkv/internal/record"
)

func rec(key, value string, ts uint64) *record.Record {
	return &record.Record{Key: key, Value: []byte(value), Timestamp: ts}
}

func TestAppendAndSearch(t *testing.T) {
	b, err := NewBuilder(4096)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	recs := []*record.Record{
		rec("a", "1", 1),
		rec("b", "2", 2),
		rec("c", "3", 3),
	}
	for _, r := range recs {
		if err := b.Append(r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	blk, err := Decode(b.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, want := range recs {
		got, ok := blk.Search(want.Key)
		if !ok {
			t.Fatalf("key %q not found", want.Key)
		}
		if string(got.Value) != string(want.Value) {
			t.Fatalf("value mismatch for %q: got %q, want %q", want.Key, got.Value, want.Value)
		}
	}
	if _, ok := blk.Search("missing"); ok {
		t.Fatalf("found a key that was never appended")
	}
}

func TestAllPreservesOrder(t *testing.T) {
	b, _ := NewBuilder(4096)
	keys := []string{"a", "b", "c", "d"}
	for _, k := range keys {
		if err := b.Append(rec(k, "v", 1)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	blk, err := Decode(b.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	all, err := blk.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	for i, r := range all {
		if r.Key != keys[i] {
			t.Fatalf("order mismatch at %d: got %q, want %q", i, r.Key, keys[i])
		}
	}
}

func TestBlockFullRejectsWhenNonEmpty(t *testing.T) {
	b, _ := NewBuilder(32)
	if err := b.Append(rec("a", "x", 1)); err != nil {
		t.Fatalf("first append should fit: %v", err)
	}
	if err := b.Append(rec("b", strings.Repeat("y", 64), 1)); err != ErrBlockFull {
		t.Fatalf("got %v, want ErrBlockFull", err)
	}
}

func TestOversizeRecordAcceptedIntoEmptyBlock(t *testing.T) {
	b, _ := NewBuilder(8)
	big := rec("big", strings.Repeat("z", 1000), 1)
	if err := b.Append(big); err != nil {
		t.Fatalf("an oversize record must still be accepted into an empty block: %v", err)
	}
	if b.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", b.Len())
	}
}

func TestInvalidBlockSizeRejected(t *testing.T) {
	if _, err := NewBuilder(0); err != ErrInvalidBlockSize {
		t.Fatalf("got %v, want ErrInvalidBlockSize", err)
	}
	if _, err := NewBuilder(MaxSize + 1); err != ErrInvalidBlockSize {
		t.Fatalf("got %v, want ErrInvalidBlockSize", err)
	}
}

func TestDecodeCorruptOffsetTable(t *testing.T) {
	b, _ := NewBuilder(4096)
	_ = b.Append(rec("a", "1", 1))
	encoded := b.Encode()

	// Truncate mid-trailer.
	if _, err := Decode(encoded[:len(encoded)-2]); err != ErrCorrupt {
		t.Fatalf("got %v, want ErrCorrupt", err)
	}

	// Claim more offsets than can fit.
	garbage := append([]byte{}, encoded...)
	garbage[len(garbage)-1] = 0xff
	if _, err := Decode(garbage); err != ErrCorrupt {
		t.Fatalf("got %v, want ErrCorrupt", err)
	}
}
