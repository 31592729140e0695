package manifest

import (
	"encoding/binary"
	"errors"
)

var (
	errTruncatedVarint = errors.New("manifest: truncated varint")
	errVarintOverflow  = errors.New("manifest: varint overflow")
	errShortBuffer     = errors.New("manifest: buffer shorter than length prefix")
)

// The manifest body is a sequence of varint32 tag, length-prefixed payload
// pairs (see tags.go); each payload is itself fixed-width little-endian
// integers and, for a path, a length-prefixed byte slice. These are the only
// primitives the codec needs, kept here rather than behind a general-purpose
// coding package since nothing outside the manifest reads or writes this
// format.

// appendFixed32 appends a little-endian uint32.
func appendFixed32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

// appendFixed64 appends a little-endian uint64.
func appendFixed64(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

// decodeFixed32 reads a little-endian uint32 from the first 4 bytes of src.
func decodeFixed32(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

const maxVarint32Len = 5

// appendVarint32 appends v as a 7-bit varint with MSB continuation.
func appendVarint32(dst []byte, v uint32) []byte {
	var buf [maxVarint32Len]byte
	i := 0
	for v >= 0x80 {
		buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	buf[i] = byte(v)
	return append(dst, buf[:i+1]...)
}

// decodeVarint32 decodes a varint32 from the start of src, returning the
// value and the number of bytes consumed.
func decodeVarint32(src []byte) (value uint32, n int, err error) {
	for shift := uint(0); shift < 32; shift += 7 {
		if n >= len(src) {
			return 0, 0, errTruncatedVarint
		}
		b := src[n]
		n++
		if b < 0x80 {
			value |= uint32(b) << shift
			return value, n, nil
		}
		value |= uint32(b&0x7f) << shift
	}
	return 0, 0, errVarintOverflow
}

// appendLengthPrefixedSlice appends [varint32 length][bytes].
func appendLengthPrefixedSlice(dst []byte, v []byte) []byte {
	dst = appendVarint32(dst, uint32(len(v)))
	return append(dst, v...)
}

// decodeLengthPrefixedSlice decodes a length-prefixed slice from the start
// of src, returning a view into src (no copy) and the bytes consumed.
func decodeLengthPrefixedSlice(src []byte) (value []byte, n int, err error) {
	length, n, err := decodeVarint32(src)
	if err != nil {
		return nil, 0, err
	}
	if n+int(length) > len(src) {
		return nil, 0, errShortBuffer
	}
	return src[n : n+int(length)], n + int(length), nil
}

// wireReader reads sequentially from a byte slice without copying — the
// manifest decoder's only access pattern, since it slices directly into a
// memory-mapped file.
type wireReader struct {
	data []byte
	pos  int
}

func newWireReader(data []byte) *wireReader {
	return &wireReader{data: data}
}

func (r *wireReader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *wireReader) GetFixed32() (uint32, bool) {
	if r.Remaining() < 4 {
		return 0, false
	}
	v := decodeFixed32(r.data[r.pos:])
	r.pos += 4
	return v, true
}

func (r *wireReader) GetFixed64() (uint64, bool) {
	if r.Remaining() < 8 {
		return 0, false
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, true
}

func (r *wireReader) GetVarint32() (uint32, bool) {
	v, n, err := decodeVarint32(r.data[r.pos:])
	if err != nil {
		return 0, false
	}
	r.pos += n
	return v, true
}

func (r *wireReader) GetLengthPrefixedSlice() ([]byte, bool) {
	v, n, err := decodeLengthPrefixedSlice(r.data[r.pos:])
	if err != nil {
		return nil, false
	}
	r.pos += n
	return v, true
}

func (r *wireReader) GetBytes(n int) ([]byte, bool) {
	if r.Remaining() < n {
		return nil, false
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v, true
}
