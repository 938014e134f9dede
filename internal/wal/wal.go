// Package wal implements the write-ahead log: an append-only sequence of
// length-prefixed LogRecord frames.
//
// Wire format, no header, no trailer:
//
//	len:Fixed32 ‖ payload[len]     (payload is a record.Encode frame)
//
// A torn tail — an incomplete final frame left by a crash mid-write — is
// tolerated on recovery by stopping replay at the first framing error.
// A frame whose length prefix is intact but whose payload does not decode,
// with more bytes after it, is not a torn tail and is reported as
// ErrCorrupt. A damaged length prefix that announces more bytes than
// remain cannot be told apart from a torn tail and ends replay without an
// error.
package wal

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/aalhour/lsmkv/internal/encoding"
	"github.com/aalhour/lsmkv/internal/record"
)

// SyncMode controls when appended frames become durable.
type SyncMode int

const (
	// SyncAlways fsyncs after every append. The only mode that guarantees
	// per-write durability.
	SyncAlways SyncMode = iota
	// SyncEverySecond does not fsync on Append. Neither the WAL nor the
	// Engine runs a timer for it, so it behaves exactly like SyncManual:
	// frames become durable only when the caller calls Sync.
	SyncEverySecond
	// SyncManual never fsyncs automatically; the caller must call Sync.
	SyncManual
)

var (
	// ErrRecordTooLarge is returned by Append when the encoded record
	// exceeds the configured maximum.
	ErrRecordTooLarge = errors.New("wal: record exceeds configured maximum size")
	// ErrCorrupt is returned by Recover when mid-file damage is detected:
	// a frame fails to decode but more plausible frames follow it.
	ErrCorrupt = errors.New("wal: corrupt frame followed by more data")
)

// WAL is a single append-only log file. It is single-writer: Append must
// be serialized by the caller (the Engine does this with a mutex around
// append+fsync, per spec §5).
type WAL struct {
	mu            sync.Mutex
	path          string
	file          *os.File
	syncMode      SyncMode
	maxRecordSize int
}

// Open opens (creating if necessary) the WAL file at path.
func Open(path string, syncMode SyncMode, maxRecordSize int) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &WAL{path: path, file: f, syncMode: syncMode, maxRecordSize: maxRecordSize}, nil
}

// Append encodes r, writes the framed bytes, and flushes per the
// configured sync policy.
func (w *WAL) Append(r *record.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	size := record.EncodedLen(r)
	if w.maxRecordSize > 0 && size > w.maxRecordSize {
		return ErrRecordTooLarge
	}

	frame := make([]byte, 0, encoding.Fixed32Len+size)
	var lenBuf [encoding.Fixed32Len]byte
	encoding.EncodeFixed32(lenBuf[:], uint32(size))
	frame = append(frame, lenBuf[:]...)
	frame = record.Encode(frame, r)

	if _, err := w.file.Write(frame); err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}

	if w.syncMode == SyncAlways {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("wal: sync: %w", err)
		}
	}
	return nil
}

// Sync fsyncs the WAL file. Used directly by SyncManual callers and
// available regardless of mode.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Recover reads every complete frame from the beginning of the file. It
// stops at the first framing error at the tail (torn write) and returns
// the records read so far with no error. A frame whose payload fails to
// decode and is followed by any further bytes is reported as ErrCorrupt,
// since a crash can only ever truncate a file, never reorder or partially
// overwrite a frame that was already fsynced.
func Recover(path string) ([]*record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: read %s: %w", path, err)
	}

	var records []*record.Record
	off := 0
	for off < len(data) {
		remaining := data[off:]

		lenBytes := encoding.Fixed32Len
		if len(remaining) < lenBytes {
			return records, nil // torn tail: not even a length prefix
		}
		frameLen, _ := encoding.DecodeFixed32(remaining)
		afterLen := remaining[lenBytes:]

		if len(afterLen) < int(frameLen) {
			return records, nil // torn tail: length announced but payload short
		}

		r, n, decErr := record.Decode(afterLen[:frameLen])
		consumed := lenBytes + int(frameLen)
		if decErr != nil || n != int(frameLen) {
			// The frame's own length prefix was intact but the payload
			// didn't decode cleanly. If this is the last frame in the
			// file, treat it as a torn tail (the OS may have zero-padded
			// a partially-written block); if more bytes follow, the file
			// has been damaged in a way a crash alone cannot produce.
			if off+consumed >= len(data) {
				return records, nil
			}
			return records, ErrCorrupt
		}

		records = append(records, r)
		off += consumed
	}
	return records, nil
}

// Truncate replaces the WAL with a new empty file. Called after a flush's
// SSTable has been durably published (spec §4.4/§9: the WAL is truncated
// strictly after the SSTable's finish() fsyncs).
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.truncateLocked()
}

func (w *WAL) truncateLocked() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close before truncate: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_TRUNC|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("wal: reopen after truncate: %w", err)
	}
	w.file = f
	return nil
}

// TruncatePrefix discards the first n bytes of the WAL, keeping any bytes
// appended after n. A flush uses this instead of Truncate so that writes
// which landed in the WAL after the flush's drain point — but before the
// flush finished sealing its SSTable — are not lost.
func (w *WAL) TruncatePrefix(n int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n <= 0 {
		return nil
	}
	info, err := w.file.Stat()
	if err != nil {
		return fmt.Errorf("wal: stat before truncate: %w", err)
	}
	if n >= info.Size() {
		return w.truncateLocked()
	}

	tail := make([]byte, info.Size()-n)
	if _, err := w.file.ReadAt(tail, n); err != nil {
		return fmt.Errorf("wal: read tail before truncate: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close before truncate: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_TRUNC|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("wal: reopen after truncate: %w", err)
	}
	if _, err := f.Write(tail); err != nil {
		f.Close()
		return fmt.Errorf("wal: write retained tail: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("wal: sync retained tail: %w", err)
	}
	w.file = f
	return nil
}

// Size returns the current on-disk size of the WAL file.
func (w *WAL) Size() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	info, err := w.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Close closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
