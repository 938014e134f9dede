package compression

import (
	"bytes"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	inputs := [][]byte{
		[]byte("hello, world"),
		[]byte(strings.Repeat("aaaaaaaaaa", 1000)),
		bytes.Repeat([]byte{0x00, 0x01, 0x02, 0x03}, 500),
	}
	for _, data := range inputs {
		compressed, err := Compress(data)
		if err != nil {
			t.Fatalf("compress: %v", err)
		}
		got, err := Decompress(compressed, len(data))
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("round trip mismatch for %d bytes", len(data))
		}
	}
}

func TestCompressShrinksRepetitiveData(t *testing.T) {
	data := []byte(strings.Repeat("x", 4096))
	compressed, err := Compress(data)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(compressed) >= len(data) {
		t.Fatalf("expected compression to shrink highly repetitive data: %d >= %d", len(compressed), len(data))
	}
}

func TestCompressFallsBackOnIncompressibleData(t *testing.T) {
	// Too short, and too low-entropy-but-non-repetitive, for LZ4 to ever
	// beat a literal-only encoding: CompressBlock returns n==0 here, which
	// Compress must treat as "store verbatim", not an error.
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	compressed, err := Compress(data)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if !bytes.Equal(compressed, data) {
		t.Fatalf("expected verbatim fallback, got %v for input %v", compressed, data)
	}

	got, err := Decompress(compressed, len(data))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch for incompressible data: got %v, want %v", got, data)
	}
}
