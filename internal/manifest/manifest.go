package manifest

// CurrentVersion is the manifest format version written by this build.
const CurrentVersion uint32 = 2

// LegacyVersion is the last version that omitted LastBuildMaxMtime and
// ClockHighWater. A manifest at this version is migrated to CurrentVersion
// in memory on load; the next persist writes CurrentVersion.
const LegacyVersion uint32 = 1

// Timestamp is an mtime expressed as seconds and nanoseconds since the Unix
// epoch, matching what os.Chtimes and time.Time round-trip through a
// filesystem without losing precision.
type Timestamp struct {
	Sec  int64
	Nsec int32
}

// Nanos returns the timestamp as nanoseconds since the Unix epoch, the unit
// the monotonic clock operates on.
func (t Timestamp) Nanos() int64 {
	return t.Sec*1_000_000_000 + int64(t.Nsec)
}

// FromNanos builds a Timestamp from nanoseconds since the Unix epoch.
func FromNanos(nanos int64) Timestamp {
	return Timestamp{Sec: nanos / 1_000_000_000, Nsec: int32(nanos % 1_000_000_000)}
}

// Before reports whether t happened before o.
func (t Timestamp) Before(o Timestamp) bool { return t.Nanos() < o.Nanos() }

// FileRecord is one tracked source file: its workspace-relative path, size
// and content hash as of the last stow, and the mtime that should be
// reapplied to it if its content is unchanged.
type FileRecord struct {
	// Path is forward-slash normalized and workspace-relative.
	Path string
	Size uint64
	Hash [32]byte
	// Mtime is the mtime that was applied (or observed) the last time this
	// record was written — the value salvage restores when the file is
	// unchanged.
	Mtime Timestamp
}

// Manifest is the persistent mapping from tracked path to FileRecord, plus
// the two bookkeeping timestamps that let the clock and the GC planner
// resume correctly across runs.
type Manifest struct {
	Version uint32
	Records map[string]FileRecord

	// LastBuildMaxMtime is the maximum mtime observed in the target
	// directory at the end of the most recent stow. nil if no stow has
	// completed a target-directory scan yet.
	LastBuildMaxMtime *Timestamp
	// ClockHighWater is the greatest timestamp the monotonic clock has
	// ever issued. nil before the clock has issued its first timestamp.
	ClockHighWater *Timestamp
}

// New returns an empty v2 manifest, the starting point for a stow against a
// workspace with no prior manifest.
func New() *Manifest {
	return &Manifest{
		Version: CurrentVersion,
		Records: make(map[string]FileRecord),
	}
}

// Clone returns a deep copy whose Records map and Timestamp pointers do not
// alias m's. Callers that decoded m from a memory-mapped file must Clone (or
// otherwise copy out what they need) before the close function returned by
// Codec.Load unmaps the backing file.
func (m *Manifest) Clone() *Manifest {
	out := &Manifest{
		Version: m.Version,
		Records: make(map[string]FileRecord, len(m.Records)),
	}
	for k, v := range m.Records {
		// Copy the path so the clone does not alias m's (possibly
		// mmap-backed) string.
		p := string([]byte(k))
		v.Path = p
		out.Records[p] = v
	}
	if m.LastBuildMaxMtime != nil {
		t := *m.LastBuildMaxMtime
		out.LastBuildMaxMtime = &t
	}
	if m.ClockHighWater != nil {
		t := *m.ClockHighWater
		out.ClockHighWater = &t
	}
	return out
}
