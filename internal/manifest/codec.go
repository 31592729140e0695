package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"unsafe"

	"github.com/edsrzf/mmap-go"

	"github.com/Ellipsis-Labs/cargo-hold/internal/cherr"
)

var magic = [4]byte{'C', 'H', 'L', 'D'}

const headerSize = 4 + 4 // magic + version

// DefaultFileName is the manifest's default basename inside the target
// directory.
const DefaultFileName = "cargo-hold.metadata"

// Codec reads and writes manifests at a fixed path. Load memory-maps the
// file and decodes in place without allocating record-by-record; the
// returned Manifest's Path strings alias the mapped bytes until the close
// function Load returns is called, so callers that need the data to outlive
// that call must call Manifest.Clone first.
type Codec struct {
	Path string
}

// NewCodec returns a Codec for the manifest at path.
func NewCodec(path string) *Codec {
	return &Codec{Path: path}
}

// Load reads and decodes the manifest at c.Path. If the file does not exist,
// is corrupt, or carries an unrecognized version, Load returns (nil, nil,
// *cherr.ManifestCorrupt) for corruption, or (nil, nil, nil) if the file
// simply does not exist — both are treated identically by callers ("no
// prior manifest"). The returned close function must be called (unmapping
// the file) once the caller is done with any unCloned Manifest data.
func (c *Codec) Load() (*Manifest, func() error, error) {
	f, err := os.Open(c.Path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, cherr.NewIoFailure(c.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, cherr.NewIoFailure(c.Path, err)
	}
	if info.Size() < headerSize {
		return nil, nil, cherr.NewManifestCorrupt(c.Path, "file shorter than header")
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, nil, cherr.NewIoFailure(c.Path, err)
	}
	closer := func() error { return m.Unmap() }

	data := []byte(m)
	if data[0] != magic[0] || data[1] != magic[1] || data[2] != magic[2] || data[3] != magic[3] {
		closer()
		return nil, nil, cherr.NewManifestCorrupt(c.Path, "bad magic")
	}
	version := decodeFixed32(data[4:8])
	if version != CurrentVersion && version != LegacyVersion {
		closer()
		return nil, nil, cherr.NewManifestCorrupt(c.Path, fmt.Sprintf("unrecognized version %d", version))
	}

	manifest, err := decodeBody(c.Path, version, data[headerSize:])
	if err != nil {
		closer()
		return nil, nil, err
	}
	return manifest, closer, nil
}

func decodeBody(path string, version uint32, body []byte) (*Manifest, error) {
	out := &Manifest{Version: CurrentVersion, Records: make(map[string]FileRecord)}
	s := newWireReader(body)

	for s.Remaining() > 0 {
		tagVal, ok := s.GetVarint32()
		if !ok {
			return nil, cherr.NewManifestCorrupt(path, "truncated tag")
		}
		payload, ok := s.GetLengthPrefixedSlice()
		if !ok {
			return nil, cherr.NewManifestCorrupt(path, "truncated payload")
		}
		tag := Tag(tagVal)

		switch tag {
		case TagRecord:
			rec, err := decodeRecord(payload)
			if err != nil {
				return nil, cherr.NewManifestCorrupt(path, "malformed record: "+err.Error())
			}
			out.Records[rec.Path] = rec
		case TagLastBuildMaxMtime:
			ts, err := decodeTimestamp(payload)
			if err != nil {
				return nil, cherr.NewManifestCorrupt(path, "malformed last_build_max_mtime")
			}
			out.LastBuildMaxMtime = &ts
		case TagClockHighWater:
			ts, err := decodeTimestamp(payload)
			if err != nil {
				return nil, cherr.NewManifestCorrupt(path, "malformed clock_high_water")
			}
			out.ClockHighWater = &ts
		default:
			if tag&TagSafeIgnoreMask == 0 {
				return nil, cherr.NewManifestCorrupt(path, fmt.Sprintf("unknown required tag %d", tag))
			}
			// Safe to ignore: payload already consumed via GetLengthPrefixedSlice.
		}
	}

	// v1 manifests never carried the optional timestamps; the zero values
	// above already reflect "absent" for them. Nothing further to migrate.
	_ = version
	return out, nil
}

func decodeRecord(payload []byte) (FileRecord, error) {
	s := newWireReader(payload)
	pathBytes, ok := s.GetLengthPrefixedSlice()
	if !ok {
		return FileRecord{}, fmt.Errorf("path")
	}
	size, ok := s.GetFixed64()
	if !ok {
		return FileRecord{}, fmt.Errorf("size")
	}
	hashBytes, ok := s.GetBytes(32)
	if !ok {
		return FileRecord{}, fmt.Errorf("hash")
	}
	sec, ok := s.GetFixed64()
	if !ok {
		return FileRecord{}, fmt.Errorf("sec")
	}
	nsec, ok := s.GetFixed32()
	if !ok {
		return FileRecord{}, fmt.Errorf("nsec")
	}

	rec := FileRecord{
		Path:  bytesToStringZeroCopy(pathBytes),
		Size:  size,
		Mtime: Timestamp{Sec: int64(sec), Nsec: int32(nsec)},
	}
	copy(rec.Hash[:], hashBytes)
	return rec, nil
}

func decodeTimestamp(payload []byte) (Timestamp, error) {
	s := newWireReader(payload)
	sec, ok := s.GetFixed64()
	if !ok {
		return Timestamp{}, fmt.Errorf("sec")
	}
	nsec, ok := s.GetFixed32()
	if !ok {
		return Timestamp{}, fmt.Errorf("nsec")
	}
	return Timestamp{Sec: int64(sec), Nsec: int32(nsec)}, nil
}

// bytesToStringZeroCopy aliases b as a string without copying. b must not be
// mutated afterward, and the result must not outlive the memory b points
// into — the mmap'd manifest file, in Load's case. Manifest.Clone copies out
// of this aliasing before a caller can hold onto a decoded Manifest past the
// close function Load returned.
func bytesToStringZeroCopy(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// Encode serializes m into its on-disk representation.
func Encode(m *Manifest) []byte {
	body := make([]byte, 0, 64*len(m.Records)+32)

	paths := make([]string, 0, len(m.Records))
	for p := range m.Records {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		rec := m.Records[p]
		payload := make([]byte, 0, len(rec.Path)+8+32+8+4+8)
		payload = appendLengthPrefixedSlice(payload, []byte(rec.Path))
		payload = appendFixed64(payload, rec.Size)
		payload = append(payload, rec.Hash[:]...)
		payload = appendFixed64(payload, uint64(rec.Mtime.Sec))
		payload = appendFixed32(payload, uint32(rec.Mtime.Nsec))

		body = appendVarint32(body, uint32(TagRecord))
		body = appendLengthPrefixedSlice(body, payload)
	}

	if m.LastBuildMaxMtime != nil {
		body = appendTimestampField(body, TagLastBuildMaxMtime, *m.LastBuildMaxMtime)
	}
	if m.ClockHighWater != nil {
		body = appendTimestampField(body, TagClockHighWater, *m.ClockHighWater)
	}

	out := make([]byte, 0, headerSize+len(body))
	out = append(out, magic[:]...)
	out = appendFixed32(out, CurrentVersion)
	out = append(out, body...)
	return out
}

func appendTimestampField(dst []byte, tag Tag, ts Timestamp) []byte {
	payload := make([]byte, 0, 12)
	payload = appendFixed64(payload, uint64(ts.Sec))
	payload = appendFixed32(payload, uint32(ts.Nsec))
	dst = appendVarint32(dst, uint32(tag))
	return appendLengthPrefixedSlice(dst, payload)
}

// Persist atomically replaces c.Path with the encoding of m: write to a
// sibling temp file, fsync, rename over the destination. A crash before the
// rename leaves the previous manifest (if any) intact.
func (c *Codec) Persist(m *Manifest) error {
	dir := filepath.Dir(c.Path)
	tmp, err := os.CreateTemp(dir, ".cargo-hold.metadata.tmp-*")
	if err != nil {
		return cherr.NewManifestPersistFailed(c.Path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed away

	if _, err := tmp.Write(Encode(m)); err != nil {
		tmp.Close()
		return cherr.NewManifestPersistFailed(c.Path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return cherr.NewManifestPersistFailed(c.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return cherr.NewManifestPersistFailed(c.Path, err)
	}
	if err := os.Rename(tmpPath, c.Path); err != nil {
		return cherr.NewManifestPersistFailed(c.Path, err)
	}
	return nil
}

// Delete removes the manifest file, implementing bilge. Deleting a manifest
// that does not exist is not an error.
func (c *Codec) Delete() error {
	err := os.Remove(c.Path)
	if err != nil && !os.IsNotExist(err) {
		return cherr.NewIoFailure(c.Path, err)
	}
	return nil
}
