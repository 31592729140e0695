// Package manifest implements the persistent, content-addressed record of
// tracked source files: the mapping from workspace-relative path to
// (size, content hash, mtime), plus the clock and GC bookkeeping timestamps
// that ride alongside it.
//
// The on-disk format is a sequence of tag-prefixed fields: a reader that
// doesn't recognize a tag can skip its length-prefixed payload and keep
// going, so a future field can be added without breaking older readers and
// an older field never needs to change its on-disk number.
package manifest

// Tag identifies a field within the encoded body. These numbers are written
// to disk and MUST NOT change once released.
type Tag uint32

const (
	// TagRecord introduces one FileRecord. Repeated, once per tracked path.
	TagRecord Tag = 1
	// TagLastBuildMaxMtime carries the manifest's optional
	// last_build_max_mtime. Absent from v1 manifests and from v2 manifests
	// that have never completed a stow.
	TagLastBuildMaxMtime Tag = 2
	// TagClockHighWater carries the manifest's optional clock_high_water.
	// Absent from v1 manifests and from a v2 manifest before its first
	// monotonic timestamp has ever been issued.
	TagClockHighWater Tag = 3

	// TagSafeIgnoreMask, when set on a tag a reader does not recognize,
	// tells it the field is safe to skip: every payload is length-prefixed,
	// so an unrecognized tag can still be skipped correctly. A future tag
	// introduced without the mask would instead make decoding fail outright
	// ("unknown required tag") rather than silently drop a field a reader
	// built before its introduction cannot interpret.
	TagSafeIgnoreMask Tag = 1 << 13
)
