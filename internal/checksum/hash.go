// Package checksum provides the stable 64-bit hashing used across lsmkv:
// the Bloom filter's per-key probe hash and the Global Block Cache's
// file-id derivation both need a hash that is stable across process
// restarts (unlike Go's randomized map/string hash), so both go through
// XXH3 here rather than reaching for hash/maphash or FNV.
package checksum

import "github.com/zeebo/xxh3"

// Hash64 returns a stable 64-bit hash of data. It is stable across
// processes and across restarts of the same process: two calls with equal
// byte slices always produce the same value, which is what the Bloom
// filter's soundness property and the block cache's file-id require.
func Hash64(data []byte) uint64 {
	return xxh3.Hash(data)
}

// HashString64 is Hash64 over a string, avoiding a []byte conversion at
// call sites that already hold the key as a string.
func HashString64(s string) uint64 {
	return xxh3.HashString(s)
}
