package hasher

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, size int, fill byte) string {
	t.Helper()
	data := bytes.Repeat([]byte{fill}, size)
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestHash_SmallFileDeterministic(t *testing.T) {
	path := writeTempFile(t, 128, 'a')
	r1, err := Hash(path)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	r2, err := Hash(path)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if r1.Digest != r2.Digest || r1.Fast != r2.Fast || r1.Size != r2.Size {
		t.Fatalf("Hash is not deterministic: %+v vs %+v", r1, r2)
	}
	if r1.Size != 128 {
		t.Fatalf("Size = %d, want 128", r1.Size)
	}
}

func TestHash_LargeFileMatchesChunkedPath(t *testing.T) {
	path := writeTempFile(t, chunkThreshold+1, 'b')
	r, err := Hash(path)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if r.Size != chunkThreshold+1 {
		t.Fatalf("Size = %d, want %d", r.Size, chunkThreshold+1)
	}
	r2, err := Hash(path)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if r.Digest != r2.Digest {
		t.Fatalf("large-file hash is not deterministic")
	}
}

func TestHash_DistinctContentDistinctDigest(t *testing.T) {
	p1 := writeTempFile(t, 256, 'x')
	p2 := writeTempFile(t, 256, 'y')
	r1, err := Hash(p1)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	r2, err := Hash(p2)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if r1.Digest == r2.Digest {
		t.Fatalf("expected distinct digests for distinct content")
	}
	if r1.Fast == r2.Fast {
		t.Fatalf("expected distinct fast digests for distinct content")
	}
}

func TestHash_EmptyFile(t *testing.T) {
	path := writeTempFile(t, 0, 0)
	r, err := Hash(path)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if r.Size != 0 {
		t.Fatalf("Size = %d, want 0", r.Size)
	}
}

func TestHash_MissingFileFails(t *testing.T) {
	_, err := Hash(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestHash_DirectoryFails(t *testing.T) {
	_, err := Hash(t.TempDir())
	if err == nil {
		t.Fatalf("expected an error when hashing a directory")
	}
}
