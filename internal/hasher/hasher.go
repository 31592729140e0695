// Package hasher computes the 256-bit content digest cargo-hold uses to
// detect whether a tracked file has changed since it was last stowed.
//
// Small files are hashed with a single sequential BLAKE3 pass. Files at or
// above chunkThreshold are memory-mapped read-only and split into fixed-size
// chunks hashed concurrently, then folded into one digest by hashing the
// concatenation of the chunk digests in order — a parallel, Merkle-style
// fold in the same stripe-then-combine spirit as the long-input path in
// internal/checksum's XXH3 (xxh3Long hashes independent stripes of the
// input and folds their accumulators together at the end). BLAKE3 supplies
// the cryptographic strength the content hash needs. internal/checksum's
// non-cryptographic XXH3-style digest is computed alongside it and returned
// as Result.Fast; Hash always computes the BLAKE3 digest as well, so no
// work is skipped on its account.
package hasher

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/zeebo/blake3"

	"github.com/Ellipsis-Labs/cargo-hold/internal/cherr"
	"github.com/Ellipsis-Labs/cargo-hold/internal/checksum"
)

// chunkThreshold is the file size at or above which Hash switches from a
// single sequential pass to memory-mapped parallel chunk hashing.
const chunkThreshold = 16 << 10 // 16 KiB

// chunkSize is the size of each unit of parallel work once chunking kicks
// in.
const chunkSize = 1 << 20 // 1 MiB

// Digest is a 256-bit BLAKE3 content digest.
type Digest [32]byte

// Result is the outcome of hashing one file.
type Result struct {
	Size   uint64
	Digest Digest
	// Fast is a cheap, non-cryptographic XXH3-style digest of the same
	// content (internal/checksum). The state engine does not read it.
	Fast uint64
}

// Hash computes the content digest of the file at path. It has no side
// effects and is safe to call concurrently on distinct paths.
func Hash(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, cherr.NewIoFailure(path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Result{}, cherr.NewIoFailure(path, err)
	}
	if info.IsDir() {
		return Result{}, cherr.NewIoFailure(path, errors.New("is a directory"))
	}
	size := info.Size()
	if size < 0 || uint64(size) > math.MaxUint64 {
		return Result{}, cherr.NewIoFailure(path, errors.New("size does not fit in a 64-bit unsigned value"))
	}

	if size < chunkThreshold {
		return hashSequential(path, f, uint64(size))
	}
	return hashMapped(path, f, uint64(size))
}

func hashSequential(path string, f *os.File, size uint64) (Result, error) {
	data := make([]byte, size)
	if _, err := readFull(f, data); err != nil {
		return Result{}, cherr.NewIoFailure(path, err)
	}
	h := blake3.Sum256(data)
	return Result{Size: size, Digest: Digest(h), Fast: checksum.XXH3_64bits(data)}, nil
}

func hashMapped(path string, f *os.File, size uint64) (Result, error) {
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return Result{}, cherr.NewIoFailure(path, err)
	}
	defer m.Unmap()
	data := []byte(m)

	nChunks := (len(data) + chunkSize - 1) / chunkSize
	digests := make([][32]byte, nChunks)
	fastDigests := make([]uint64, nChunks)

	workers := runtime.GOMAXPROCS(0)
	if workers > nChunks {
		workers = nChunks
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int, nChunks)
	for i := 0; i < nChunks; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				start := i * chunkSize
				end := start + chunkSize
				if end > len(data) {
					end = len(data)
				}
				chunk := data[start:end]
				digests[i] = blake3.Sum256(chunk)
				fastDigests[i] = checksum.XXH3_64bits(chunk)
			}
		}()
	}
	wg.Wait()

	foldInput := make([]byte, 0, len(digests)*32)
	fastFoldInput := make([]byte, 0, len(fastDigests)*8)
	for i := range digests {
		foldInput = append(foldInput, digests[i][:]...)
		fastFoldInput = appendUint64LE(fastFoldInput, fastDigests[i])
	}
	final := blake3.Sum256(foldInput)
	fast := checksum.XXH3_64bits(fastFoldInput)

	return Result{Size: size, Digest: Digest(final), Fast: fast}, nil
}

func appendUint64LE(dst []byte, v uint64) []byte {
	return append(dst,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56),
	)
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			if total == len(buf) {
				return total, nil
			}
			return total, fmt.Errorf("read at offset %d: %w", total, err)
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}
