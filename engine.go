// Package lsmkv is an embeddable, ordered key→value store built on the
// log-structured merge-tree discipline: writes land in a durable WAL and
// an in-memory MemTable, and are periodically sealed into immutable,
// compressed, Bloom-filtered SSTables.
package lsmkv

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aalhour/lsmkv/internal/cache"
	"github.com/aalhour/lsmkv/internal/logging"
	"github.com/aalhour/lsmkv/internal/memtable"
	"github.com/aalhour/lsmkv/internal/record"
	"github.com/aalhour/lsmkv/internal/sstable"
	"github.com/aalhour/lsmkv/internal/wal"
)

const walFileName = "wal.log"
const sstSuffix = ".sst"

// Stats summarizes an Engine's current state, per spec §4.9's stats()
// plus a handful of inspection fields useful to an operator's CLI.
type Stats struct {
	MemtableBytes      int
	MemtableEntries    int
	SstableCount       int
	SstableTotalBytes  int64
	WalBytes           int64
	BlockCacheLength   int
	BlockCacheCapacity int
	ReaderStats        []ReaderStats
}

// ReaderStats describes one open SSTable reader.
type ReaderStats struct {
	Path       string
	MinKey     string
	MaxKey     string
	RecordCount uint64
	Timestamp  uint64
}

// Engine composes the MemTable, WAL, and the ordered list of SSTable
// readers, and routes writes, reads, flush, and recovery across them.
type Engine struct {
	opts Options

	memMu sync.RWMutex
	mem   *memtable.Memtable

	walMu sync.Mutex
	w     *wal.WAL

	readersMu sync.RWMutex
	readers   []*sstable.Reader // newest first

	blockCache *cache.Cache
	logger     logging.Logger

	closed bool
}

// Open validates config, creates the data directory if missing,
// constructs the Block Cache, opens every discovered SSTable file (log
// and skip files that fail to open), and replays the WAL into the
// MemTable.
func Open(opts Options) (*Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("lsmkv: create data dir %s: %w", opts.DataDir, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard
	}

	blockCache := cache.New(opts.cacheCapacity())

	entries, err := os.ReadDir(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("lsmkv: read data dir: %w", err)
	}

	type tableFile struct {
		ts   uint64
		path string
	}
	var tableFiles []tableFile
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), sstSuffix) {
			continue
		}
		tsStr := strings.TrimSuffix(ent.Name(), sstSuffix)
		ts, err := strconv.ParseUint(tsStr, 10, 64)
		if err != nil {
			logger.Warnf("skipping %s: name is not a valid sstable timestamp", ent.Name())
			continue
		}
		tableFiles = append(tableFiles, tableFile{ts: ts, path: filepath.Join(opts.DataDir, ent.Name())})
	}
	// Newest first, by creation timestamp encoded in the filename.
	sort.Slice(tableFiles, func(i, j int) bool { return tableFiles[i].ts > tableFiles[j].ts })

	var readers []*sstable.Reader
	for _, tf := range tableFiles {
		r, err := sstable.Open(tf.path, blockCache)
		if err != nil {
			logger.Warnf("skipping sstable %s: %v", tf.path, err)
			continue
		}
		readers = append(readers, r)
	}

	walPath := filepath.Join(opts.DataDir, walFileName)
	records, err := wal.Recover(walPath)
	if err != nil {
		for _, r := range readers {
			r.Close()
		}
		return nil, fmt.Errorf("lsmkv: wal recovery: %w", err)
	}

	mem := memtable.New(time.Now().UnixNano())
	for _, r := range records {
		mem.Insert(r)
	}

	w, err := wal.Open(walPath, opts.WalSyncMode, opts.MaxWalRecordSize)
	if err != nil {
		for _, r := range readers {
			r.Close()
		}
		return nil, fmt.Errorf("lsmkv: open wal: %w", err)
	}

	return &Engine{
		opts:       opts,
		mem:        mem,
		w:          w,
		readers:    readers,
		blockCache: blockCache,
		logger:     logger,
	}, nil
}

// Put durably writes key=value, flushing the MemTable if it has grown
// past the configured threshold.
func (e *Engine) Put(key string, value []byte) error {
	return e.write(&record.Record{
		Key:       key,
		Value:     value,
		Timestamp: uint64(time.Now().UnixNano()),
		Tombstone: false,
	})
}

// Delete durably marks key as deleted. Subsequent Get calls return
// (nil, false) until a later Put for the same key.
func (e *Engine) Delete(key string) error {
	return e.write(&record.Record{
		Key:       key,
		Timestamp: uint64(time.Now().UnixNano()),
		Tombstone: true,
	})
}

func (e *Engine) write(r *record.Record) error {
	e.memMu.Lock()
	if e.closed {
		e.memMu.Unlock()
		return ErrEngineClosed
	}

	e.walMu.Lock()
	err := e.w.Append(r)
	e.walMu.Unlock()
	if err != nil {
		e.memMu.Unlock()
		return err
	}

	e.mem.Insert(r)
	shouldFlush := e.mem.ApproximateSize() >= e.opts.MemtableMaxSize
	e.memMu.Unlock()

	if shouldFlush {
		if err := e.Flush(); err != nil {
			e.logger.Errorf("flush failed: %v", err)
			return err
		}
	}
	return nil
}

// Get returns the value for key. ok is false if the key is absent or has
// been deleted.
func (e *Engine) Get(key string) (value []byte, ok bool, err error) {
	e.memMu.RLock()
	if r, found := e.mem.Get(key); found {
		e.memMu.RUnlock()
		if r.Tombstone {
			return nil, false, nil
		}
		return r.Value, true, nil
	}
	e.memMu.RUnlock()

	e.readersMu.RLock()
	defer e.readersMu.RUnlock()
	for _, reader := range e.readers {
		r, found, err := reader.Get(key)
		if err != nil {
			return nil, false, fmt.Errorf("lsmkv: get %q from %s: %w", key, reader.Path(), err)
		}
		if found {
			if r.Tombstone {
				return nil, false, nil
			}
			return r.Value, true, nil
		}
	}
	return nil, false, nil
}

// Flush drains the MemTable into a new SSTable and truncates the WAL. A
// no-op if the MemTable is currently empty. A fresh MemTable is swapped in
// before the lock is released, so concurrent Put/Delete calls land in the
// new instance rather than the snapshot being flushed; the WAL prefix
// belonging to that snapshot is dropped once the SSTable is durable, while
// anything writers append afterward is preserved (spec §5: flush holds the
// write lock only long enough to drain).
func (e *Engine) Flush() error {
	e.memMu.Lock()
	if e.mem.Len() == 0 {
		e.memMu.Unlock()
		return nil
	}
	drained := e.mem.All()

	// write() holds memMu for its entire body (WAL append + MemTable
	// insert), so no concurrent writer can append to the WAL between the
	// drain above and this size read: it's consistent with drained.
	e.walMu.Lock()
	walSizeAtDrain, err := e.w.Size()
	e.walMu.Unlock()
	if err != nil {
		e.memMu.Unlock()
		return fmt.Errorf("lsmkv: flush: wal size: %w", err)
	}

	e.mem = memtable.New(time.Now().UnixNano())
	e.memMu.Unlock()

	timestamp := uint64(time.Now().UnixNano())
	path := filepath.Join(e.opts.DataDir, fmt.Sprintf("%020d%s", timestamp, sstSuffix))

	w, err := sstable.NewWriter(path, e.opts.BlockSize, e.opts.BloomFalsePositiveRate)
	if err != nil {
		return fmt.Errorf("lsmkv: flush: %w", err)
	}
	for _, r := range drained {
		if err := w.Add(r); err != nil {
			return fmt.Errorf("lsmkv: flush: %w", err)
		}
	}
	if _, err := w.Finish(timestamp); err != nil {
		return fmt.Errorf("lsmkv: flush: %w", err)
	}

	reader, err := sstable.Open(path, e.blockCache)
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("lsmkv: flush: open new reader: %w", err)
	}

	e.readersMu.Lock()
	e.readers = append([]*sstable.Reader{reader}, e.readers...)
	e.readersMu.Unlock()

	// Drop only the prefix drained into this SSTable; bytes appended by
	// concurrent writers after walSizeAtDrain belong to the new MemTable
	// and must survive.
	e.walMu.Lock()
	err = e.w.TruncatePrefix(walSizeAtDrain)
	e.walMu.Unlock()
	if err != nil {
		return fmt.Errorf("lsmkv: flush: truncate wal: %w", err)
	}
	return nil
}

// Scan returns every live key/value pair across the MemTable and all
// SSTables, newest-first per key, with tombstones suppressing the key.
func (e *Engine) Scan() (map[string][]byte, error) {
	out := make(map[string][]byte)
	seen := make(map[string]bool)

	e.memMu.RLock()
	for _, r := range e.mem.All() {
		seen[r.Key] = true
		if !r.Tombstone {
			out[r.Key] = r.Value
		}
	}
	e.memMu.RUnlock()

	e.readersMu.RLock()
	defer e.readersMu.RUnlock()
	for _, reader := range e.readers {
		recs, err := reader.Scan()
		if err != nil {
			return nil, fmt.Errorf("lsmkv: scan %s: %w", reader.Path(), err)
		}
		for _, r := range recs {
			if seen[r.Key] {
				continue
			}
			seen[r.Key] = true
			if !r.Tombstone {
				out[r.Key] = r.Value
			}
		}
	}
	return out, nil
}

// Stats reports the engine's current size and layout.
func (e *Engine) Stats() (Stats, error) {
	e.memMu.RLock()
	s := Stats{
		MemtableBytes:   e.mem.ApproximateSize(),
		MemtableEntries: e.mem.Len(),
	}
	e.memMu.RUnlock()

	e.walMu.Lock()
	walSize, err := e.w.Size()
	e.walMu.Unlock()
	if err != nil {
		return Stats{}, fmt.Errorf("lsmkv: stats: wal size: %w", err)
	}
	s.WalBytes = walSize

	e.readersMu.RLock()
	defer e.readersMu.RUnlock()
	s.SstableCount = len(e.readers)
	for _, r := range e.readers {
		info, err := os.Stat(r.Path())
		if err == nil {
			s.SstableTotalBytes += info.Size()
		}
		s.ReaderStats = append(s.ReaderStats, ReaderStats{
			Path:        r.Path(),
			MinKey:      r.MinKey(),
			MaxKey:      r.MaxKey(),
			RecordCount: r.Count(),
			Timestamp:   r.Timestamp(),
		})
	}
	s.BlockCacheLength, s.BlockCacheCapacity = e.blockCache.Stats()
	return s, nil
}

// Close releases the WAL file handle and every open SSTable reader. The
// Engine must not be used after Close.
func (e *Engine) Close() error {
	e.memMu.Lock()
	defer e.memMu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	e.walMu.Lock()
	walErr := e.w.Close()
	e.walMu.Unlock()

	e.readersMu.Lock()
	defer e.readersMu.Unlock()
	for _, r := range e.readers {
		if err := r.Close(); err != nil {
			e.logger.Warnf("error closing reader %s: %v", r.Path(), err)
		}
	}

	return walErr
}
