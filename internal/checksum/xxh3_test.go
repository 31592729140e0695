package checksum

import "testing"

func TestXXH3_64bits_Deterministic(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	a := XXH3_64bits(data)
	b := XXH3_64bits(append([]byte(nil), data...))
	if a != b {
		t.Fatalf("hash not deterministic over equal content: %x != %x", a, b)
	}
}

func TestXXH3_64bits_DistinctForDistinctInput(t *testing.T) {
	a := XXH3_64bits([]byte("alpha"))
	b := XXH3_64bits([]byte("alphb"))
	if a == b {
		t.Fatalf("expected distinct digests for distinct single-byte-shifted input")
	}
}

func TestXXH3_64bits_EmptyInput(t *testing.T) {
	if XXH3_64bits(nil) != XXH3_64bits([]byte{}) {
		t.Fatalf("nil and empty slice should hash identically")
	}
}

func TestXXH3_64bits_LengthBuckets(t *testing.T) {
	// Exercise every internal length bucket boundary.
	for _, n := range []int{0, 1, 3, 4, 8, 9, 16, 17, 32, 64, 96, 128, 129, 240, 241, 4096} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i)
		}
		if got := XXH3_64bits(data); got == 0 && n > 0 {
			t.Fatalf("suspiciously zero digest for length %d", n)
		}
	}
}

func BenchmarkXXH3_64bits(b *testing.B) {
	data := make([]byte, 64<<10)
	for i := range data {
		data[i] = byte(i)
	}
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		_ = XXH3_64bits(data)
	}
}
