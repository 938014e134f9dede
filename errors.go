package lsmkv

import "errors"

// Error taxonomy for lsmkv. These are sentinels wrapped with context via
// fmt.Errorf("%w: ...") at the call site; callers should match with
// errors.Is.
var (
	// ErrConfigValidation is returned at Open for configuration rejected
	// without a more specific sentinel (an empty DataDir). The sentinels
	// below are returned on their own, not wrapped in this one.
	ErrConfigValidation     = errors.New("lsmkv: invalid configuration")
	ErrInvalidBlockSize     = errors.New("lsmkv: invalid block size")
	ErrInvalidCacheSize     = errors.New("lsmkv: invalid block cache size")
	ErrInvalidIndexInterval = errors.New("lsmkv: invalid sparse index interval")
	ErrInvalidBloomRate     = errors.New("lsmkv: invalid bloom false positive rate")
	ErrInvalidMemtableSize  = errors.New("lsmkv: invalid memtable max size")

	// ErrEngineClosed is returned by Put and Delete when called after
	// Close. Other operations do not check for a closed Engine.
	ErrEngineClosed = errors.New("lsmkv: engine is closed")
)
