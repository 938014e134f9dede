package encoding

import "testing"

func TestFixed32RoundTrip(t *testing.T) {
	buf := make([]byte, Fixed32Len)
	EncodeFixed32(buf, 0xdeadbeef)
	got, err := DecodeFixed32(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0xdeadbeef {
		t.Fatalf("got %x, want %x", got, 0xdeadbeef)
	}
}

func TestFixed32ShortBuffer(t *testing.T) {
	if _, err := DecodeFixed32([]byte{1, 2, 3}); err != ErrBufferTooSmall {
		t.Fatalf("got %v, want ErrBufferTooSmall", err)
	}
}

func TestFixed64RoundTrip(t *testing.T) {
	buf := make([]byte, Fixed64Len)
	EncodeFixed64(buf, 0x0102030405060708)
	got, err := DecodeFixed64(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0x0102030405060708 {
		t.Fatalf("got %x, want %x", got, 0x0102030405060708)
	}
}

func TestFixed128RoundTrip(t *testing.T) {
	buf := make([]byte, Fixed128Len)
	EncodeFixed128(buf, 1234567890)
	got, err := DecodeFixed128(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1234567890 {
		t.Fatalf("got %d, want %d", got, 1234567890)
	}
}

func TestFixed128RejectsNonzeroHighWord(t *testing.T) {
	buf := make([]byte, Fixed128Len)
	EncodeFixed128(buf, 42)
	buf[15] = 0x01
	if _, err := DecodeFixed128(buf); err == nil {
		t.Fatalf("expected error for nonzero high word")
	}
}

func TestFixed128ShortBuffer(t *testing.T) {
	if _, err := DecodeFixed128(make([]byte, 10)); err != ErrBufferTooSmall {
		t.Fatalf("got %v, want ErrBufferTooSmall", err)
	}
}
