package lsmkv

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aalhour/lsmkv/internal/wal"
)

func testOptions(dir string) Options {
	o := DefaultOptions(dir)
	o.MemtableMaxSize = 1 << 20
	o.BlockSize = 512
	o.BlockCacheSizeMiB = 1
	return o
}

func TestBasicRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(testOptions(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	if err := e.Put("a", []byte("1")); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := e.Put("b", []byte("2")); err != nil {
		t.Fatalf("put b: %v", err)
	}
	if err := e.Delete("a"); err != nil {
		t.Fatalf("delete a: %v", err)
	}

	if _, ok, _ := e.Get("a"); ok {
		t.Fatalf("expected a to be deleted")
	}
	v, ok, err := e.Get("b")
	if err != nil || !ok || string(v) != "2" {
		t.Fatalf("get b: v=%q ok=%v err=%v", v, ok, err)
	}
	if _, ok, _ := e.Get("c"); ok {
		t.Fatalf("expected c to be absent")
	}
}

func TestFlushAndReadAcrossLayers(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	opts.MemtableMaxSize = 256
	e, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	want := make(map[string]string)
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("k%03d", i)
		val := fmt.Sprintf("%020d", i)
		if err := e.Put(key, []byte(val)); err != nil {
			t.Fatalf("put %q: %v", key, err)
		}
		want[key] = val
	}

	stats, err := e.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.SstableCount == 0 {
		t.Fatalf("expected at least one sstable to have been flushed")
	}

	for key, val := range want {
		got, ok, err := e.Get(key)
		if err != nil || !ok {
			t.Fatalf("get %q: ok=%v err=%v", key, ok, err)
		}
		if string(got) != val {
			t.Fatalf("get %q: got %q, want %q", key, got, val)
		}
	}
}

func TestCrashRecoveryReplaysWAL(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	e, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, k := range []string{"k1", "k2", "k3"} {
		if err := e.Put(k, []byte("v-"+k)); err != nil {
			t.Fatalf("put %q: %v", k, err)
		}
	}
	// Simulate a crash: no Flush, no Close, just reopen on the same dir.

	e2, err := Open(opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()
	for _, k := range []string{"k1", "k2", "k3"} {
		v, ok, err := e2.Get(k)
		if err != nil || !ok || string(v) != "v-"+k {
			t.Fatalf("get %q after recovery: v=%q ok=%v err=%v", k, v, ok, err)
		}
	}
}

func TestTornTailRecovery(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	e, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, k := range []string{"k1", "k2", "k3"} {
		if err := e.Put(k, []byte("v-"+k)); err != nil {
			t.Fatalf("put %q: %v", k, err)
		}
	}

	walPath := filepath.Join(dir, walFileName)
	data, err := os.ReadFile(walPath)
	if err != nil {
		t.Fatalf("read wal: %v", err)
	}
	if len(data) < 5 {
		t.Fatalf("wal too short to truncate meaningfully")
	}
	if err := os.WriteFile(walPath, data[:len(data)-5], 0o644); err != nil {
		t.Fatalf("truncate wal: %v", err)
	}

	e2, err := Open(opts)
	if err != nil {
		t.Fatalf("reopen after torn tail: %v", err)
	}
	defer e2.Close()
	for _, k := range []string{"k1", "k2"} {
		v, ok, err := e2.Get(k)
		if err != nil || !ok || string(v) != "v-"+k {
			t.Fatalf("get %q after torn-tail recovery: v=%q ok=%v err=%v", k, v, ok, err)
		}
	}
}

func TestOverwriteAcrossLayersAndRestart(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	opts.MemtableMaxSize = 1 // force every put to flush immediately
	e, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := e.Put("x", []byte("v1")); err != nil {
		t.Fatalf("put v1: %v", err)
	}
	if err := e.Put("x", []byte("v2")); err != nil {
		t.Fatalf("put v2: %v", err)
	}
	v, ok, err := e.Get("x")
	if err != nil || !ok || string(v) != "v2" {
		t.Fatalf("get x: v=%q ok=%v err=%v", v, ok, err)
	}

	if err := e.Delete("x"); err != nil {
		t.Fatalf("delete x: %v", err)
	}
	if _, ok, _ := e.Get("x"); ok {
		t.Fatalf("expected x to be deleted")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	e2, err := Open(opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()
	if _, ok, _ := e2.Get("x"); ok {
		t.Fatalf("expected x to remain deleted after restart")
	}
}

func TestConcurrentGetsMatchOracle(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	opts.MemtableMaxSize = 4096
	e, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	oracle := make(map[string]string)
	n := 2000
	keys := rand.Perm(n)
	for _, i := range keys {
		key := fmt.Sprintf("key-%05d", i)
		val := fmt.Sprintf("value-%05d", i)
		if err := e.Put(key, []byte(val)); err != nil {
			t.Fatalf("put %q: %v", key, err)
		}
		oracle[key] = val
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < 2000; i++ {
				idx := r.Intn(n)
				key := fmt.Sprintf("key-%05d", idx)
				got, ok, err := e.Get(key)
				if err != nil {
					errs <- fmt.Errorf("get %q: %w", key, err)
					return
				}
				if !ok || string(got) != oracle[key] {
					errs <- fmt.Errorf("get %q: got (%q, %v), want %q", key, got, ok, oracle[key])
					return
				}
			}
		}(int64(g) + 1)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestConcurrentWritesDuringFlushAreNotLost(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	opts.MemtableMaxSize = 2048 // small, so writers trigger flushes constantly
	e, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	const goroutines = 8
	const perGoroutine = 300

	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				key := fmt.Sprintf("g%02d-k%05d", g, i)
				if err := e.Put(key, []byte(key)); err != nil {
					errs <- fmt.Errorf("put %q: %w", key, err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	for g := 0; g < goroutines; g++ {
		for i := 0; i < perGoroutine; i++ {
			key := fmt.Sprintf("g%02d-k%05d", g, i)
			v, ok, err := e.Get(key)
			if err != nil {
				t.Fatalf("get %q: %v", key, err)
			}
			if !ok {
				t.Fatalf("lost write for key %q (concurrent flush race)", key)
			}
			if string(v) != key {
				t.Fatalf("get %q: got %q, want %q", key, v, key)
			}
		}
	}
}

func TestSyncModeOptionPlumbsThroughToWAL(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	opts.WalSyncMode = wal.SyncManual
	e, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()
	if err := e.Put("a", []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
}
