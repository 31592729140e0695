package clock

import (
	"os"
	"path/filepath"
	"time"
)

// Probe measures the mtime resolution of the filesystem backing dir by
// writing two sentinel files a moment apart and comparing what comes back
// from Stat. It returns ResolutionNanosecond only when the filesystem
// preserved sub-second precision for both files; any ambiguity, including a
// probe failure, falls back to the conservative ResolutionSecond per the
// documented default.
func Probe(dir string) Resolution {
	a, err := os.CreateTemp(dir, ".cargo-hold-probe-a-*")
	if err != nil {
		return ResolutionSecond
	}
	defer os.Remove(a.Name())
	a.Close()

	time.Sleep(time.Nanosecond)

	b, err := os.CreateTemp(dir, ".cargo-hold-probe-b-*")
	if err != nil {
		return ResolutionSecond
	}
	defer os.Remove(b.Name())
	b.Close()

	now := time.Now()
	if err := os.Chtimes(a.Name(), now, now.Add(1)); err != nil {
		return ResolutionSecond
	}
	if err := os.Chtimes(b.Name(), now, now.Add(2)); err != nil {
		return ResolutionSecond
	}

	infoA, err := os.Stat(a.Name())
	if err != nil {
		return ResolutionSecond
	}
	infoB, err := os.Stat(b.Name())
	if err != nil {
		return ResolutionSecond
	}

	if infoA.ModTime().UnixNano() == infoB.ModTime().UnixNano() {
		return ResolutionSecond
	}
	return ResolutionNanosecond
}

// ProbeDefault probes the system temp directory's filesystem, as a
// reasonable proxy when the real target directory does not exist yet (e.g.
// before the first stow).
func ProbeDefault() Resolution {
	return Probe(filepath.Clean(os.TempDir()))
}
