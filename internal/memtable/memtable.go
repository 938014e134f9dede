// Package memtable implements the in-memory, ordered mutable layer that
// absorbs writes before they are flushed to an SSTable.
//
// The table is a skip list keyed by record key, matching the shape of the
// teacher's in-memory index. Unlike a concurrent RocksDB-style skip list,
// this one carries no internal locking or atomics: the Engine serializes
// every access behind a single RWMutex (spec §5), so a plain, mutable
// skip list is both simpler and sufficient. A duplicate insert overwrites
// the existing node's record in place (latest-write-wins), which a
// lock-free design would need to avoid but this one does not.
package memtable

import (
	"math/rand"

	"github.com/aalhour/lsmkv/internal/record"
)

const maxLevel = 16
const probability = 0.25

type node struct {
	key     string
	record  *record.Record
	forward []*node
}

// Memtable is an ordered, mutable key→Record index.
type Memtable struct {
	head          *node
	level         int
	rnd           *rand.Rand
	count         int
	approximateSz int
}

// New returns an empty Memtable. seed fixes the level-selection RNG for
// reproducible tests; callers in production pass a time-derived seed.
func New(seed int64) *Memtable {
	return &Memtable{
		head:  &node{forward: make([]*node, maxLevel)},
		level: 1,
		rnd:   rand.New(rand.NewSource(seed)),
	}
}

func (m *Memtable) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && m.rnd.Float64() < probability {
		lvl++
	}
	return lvl
}

// Insert adds or overwrites the record for r.Key and adjusts
// ApproximateSize by the signed change in encoded size (an overwrite with
// a record that encodes smaller than the one it replaces shrinks it).
func (m *Memtable) Insert(r *record.Record) {
	update := make([]*node, maxLevel)
	cur := m.head
	for i := m.level - 1; i >= 0; i-- {
		for cur.forward[i] != nil && cur.forward[i].key < r.Key {
			cur = cur.forward[i]
		}
		update[i] = cur
	}

	oldSize := 0
	if next := update[0].forward[0]; next != nil && next.key == r.Key {
		oldSize = record.EncodedLen(next.record)
		next.record = r
		m.approximateSz += record.EncodedLen(r) - oldSize
		return
	}

	lvl := m.randomLevel()
	if lvl > m.level {
		for i := m.level; i < lvl; i++ {
			update[i] = m.head
		}
		m.level = lvl
	}

	n := &node{key: r.Key, record: r, forward: make([]*node, lvl)}
	for i := 0; i < lvl; i++ {
		n.forward[i] = update[i].forward[i]
		update[i].forward[i] = n
	}
	m.count++
	m.approximateSz += record.EncodedLen(r)
}

// Get returns the record stored for key, if present. The caller is
// responsible for interpreting a returned record with Tombstone set.
func (m *Memtable) Get(key string) (*record.Record, bool) {
	cur := m.head
	for i := m.level - 1; i >= 0; i-- {
		for cur.forward[i] != nil && cur.forward[i].key < key {
			cur = cur.forward[i]
		}
	}
	cur = cur.forward[0]
	if cur != nil && cur.key == key {
		return cur.record, true
	}
	return nil, false
}

// Len returns the number of distinct keys held.
func (m *Memtable) Len() int { return m.count }

// ApproximateSize returns the running total of encoded record sizes,
// used to decide when to trigger a flush.
func (m *Memtable) ApproximateSize() int { return m.approximateSz }

// All returns every record in ascending key order.
func (m *Memtable) All() []*record.Record {
	out := make([]*record.Record, 0, m.count)
	for n := m.head.forward[0]; n != nil; n = n.forward[0] {
		out = append(out, n.record)
	}
	return out
}
