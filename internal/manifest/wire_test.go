package manifest

import (
	"bytes"
	"testing"
)

func TestVarint32_RoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 300, 1 << 13, 1<<32 - 1}
	for _, v := range cases {
		buf := appendVarint32(nil, v)
		got, n, err := decodeVarint32(buf)
		if err != nil {
			t.Fatalf("decodeVarint32(%d): %v", v, err)
		}
		if got != v || n != len(buf) {
			t.Fatalf("decodeVarint32(%d) = (%d, %d), want (%d, %d)", v, got, n, v, len(buf))
		}
	}
}

func TestDecodeVarint32_Truncated(t *testing.T) {
	// A continuation byte with nothing after it never terminates.
	if _, _, err := decodeVarint32([]byte{0x80}); err != errTruncatedVarint {
		t.Fatalf("expected errTruncatedVarint, got %v", err)
	}
}

func TestLengthPrefixedSlice_RoundTrip(t *testing.T) {
	want := []byte("cmd/cargo-hold/main.go")
	buf := appendLengthPrefixedSlice(nil, want)
	got, n, err := decodeLengthPrefixedSlice(buf)
	if err != nil {
		t.Fatalf("decodeLengthPrefixedSlice: %v", err)
	}
	if !bytes.Equal(got, want) || n != len(buf) {
		t.Fatalf("decodeLengthPrefixedSlice = (%q, %d), want (%q, %d)", got, n, want, len(buf))
	}
}

func TestLengthPrefixedSlice_ShortBuffer(t *testing.T) {
	buf := appendVarint32(nil, 10) // claims 10 bytes of payload, supplies none
	if _, _, err := decodeLengthPrefixedSlice(buf); err != errShortBuffer {
		t.Fatalf("expected errShortBuffer, got %v", err)
	}
}

func TestWireReader_SequentialFields(t *testing.T) {
	var buf []byte
	buf = appendLengthPrefixedSlice(buf, []byte("src/lib.rs"))
	buf = appendFixed64(buf, 4096)
	buf = append(buf, bytes.Repeat([]byte{0xAB}, 32)...)
	buf = appendFixed64(buf, 1_700_000_000)
	buf = appendFixed32(buf, 123456)

	r := newWireReader(buf)
	path, ok := r.GetLengthPrefixedSlice()
	if !ok || string(path) != "src/lib.rs" {
		t.Fatalf("GetLengthPrefixedSlice = (%q, %v)", path, ok)
	}
	size, ok := r.GetFixed64()
	if !ok || size != 4096 {
		t.Fatalf("GetFixed64 (size) = (%d, %v)", size, ok)
	}
	hash, ok := r.GetBytes(32)
	if !ok || !bytes.Equal(hash, bytes.Repeat([]byte{0xAB}, 32)) {
		t.Fatalf("GetBytes(32) = (%x, %v)", hash, ok)
	}
	sec, ok := r.GetFixed64()
	if !ok || sec != 1_700_000_000 {
		t.Fatalf("GetFixed64 (sec) = (%d, %v)", sec, ok)
	}
	nsec, ok := r.GetFixed32()
	if !ok || nsec != 123456 {
		t.Fatalf("GetFixed32 (nsec) = (%d, %v)", nsec, ok)
	}
	if r.Remaining() != 0 {
		t.Fatalf("Remaining() = %d, want 0", r.Remaining())
	}
}

func TestWireReader_GetVarint32StopsAtTag(t *testing.T) {
	buf := appendVarint32(nil, uint32(TagClockHighWater))
	buf = appendLengthPrefixedSlice(buf, []byte("payload"))

	r := newWireReader(buf)
	tag, ok := r.GetVarint32()
	if !ok || Tag(tag) != TagClockHighWater {
		t.Fatalf("GetVarint32 = (%d, %v), want TagClockHighWater", tag, ok)
	}
	payload, ok := r.GetLengthPrefixedSlice()
	if !ok || string(payload) != "payload" {
		t.Fatalf("GetLengthPrefixedSlice = (%q, %v)", payload, ok)
	}
}
