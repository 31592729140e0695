// Package stateengine implements the diff/classify/choose-mtime/apply/
// persist algorithm shared by stow, salvage, anchor, and bilge: it compares
// a discovered file set against a prior manifest, decides which files keep
// their recorded mtime and which need a fresh one from the monotonic clock,
// and (depending on the operation) applies those mtimes to disk and/or
// persists the successor manifest.
//
// Hashing and mtime application both run across a bounded worker pool sized
// to runtime.GOMAXPROCS(0), built on golang.org/x/sync/errgroup so a single
// file's failure is collected rather than aborting the whole batch — the
// same per-file-failure-tolerant shape the GC planner uses for deletions.
package stateengine

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Ellipsis-Labs/cargo-hold/internal/cherr"
	"github.com/Ellipsis-Labs/cargo-hold/internal/clock"
	"github.com/Ellipsis-Labs/cargo-hold/internal/discovery"
	"github.com/Ellipsis-Labs/cargo-hold/internal/hasher"
	"github.com/Ellipsis-Labs/cargo-hold/internal/logging"
	"github.com/Ellipsis-Labs/cargo-hold/internal/manifest"
)

// Classification is the outcome of comparing a discovered file against a
// prior manifest record.
type Classification int

const (
	Unchanged Classification = iota
	Modified
	New
)

func (c Classification) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Modified:
		return "modified"
	case New:
		return "new"
	default:
		return "unknown"
	}
}

// Classified is one discovered file after hashing and classification.
type Classified struct {
	Path       string
	Size       uint64
	Digest     [32]byte
	Class      Classification
	TargetTime manifest.Timestamp
}

// Engine runs the state-engine operations against one workspace/target-dir
// pair.
type Engine struct {
	Root     string // workspace root, passed to discovery.Enumerate
	Target   string // target directory, scanned for last_build_max_mtime
	Codec    *manifest.Codec
	Log      logging.Logger
	DiscOpts discovery.Options
}

// New builds an Engine. log may be nil, in which case logging.Discard is
// used.
func New(root string, codec *manifest.Codec, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Discard
	}
	return &Engine{Root: root, Target: root, Codec: codec, Log: log.With("stateengine")}
}

// Result summarizes the outcome of an operation for callers that want to
// report it (CLI output, tests).
type Result struct {
	Classified  []Classified
	Failures    map[string]error
	MtimeErrors map[string]error
	Manifest    *manifest.Manifest
}

// loadPrior reads the prior manifest, treating "missing" and "unreadable"
// both as an empty manifest. The codec returns (nil, nil, nil) for a
// missing file and an error (ManifestCorrupt, or IoFailure) otherwise;
// loadPrior logs any such error as a warning and demotes it to "no prior
// manifest", so it never returns a non-nil error itself.
func (e *Engine) loadPrior() (*manifest.Manifest, error) {
	m, closer, err := e.Codec.Load()
	if err != nil {
		e.Log.Warnf("prior manifest unreadable, treating workspace as fresh: %v", err)
		return manifest.New(), nil
	}
	if m == nil {
		return manifest.New(), nil
	}
	defer closer()
	return m.Clone(), nil
}

// hashAll hashes every discovered path in parallel, returning a digest map
// keyed by path and a per-path failure map. Hash failures are recorded, not
// fatal.
func (e *Engine) hashAll(ctx context.Context, entries []discovery.Entry) (map[string]hasher.Result, map[string]error) {
	results := make(map[string]hasher.Result, len(entries))
	failures := make(map[string]error)
	var mu sync.Mutex

	workers := runtime.GOMAXPROCS(0)
	if workers > len(entries) {
		workers = len(entries)
	}
	if workers < 1 {
		workers = 1
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			if !entry.Exists(e.Root) {
				mu.Lock()
				failures[entry.Path] = cherr.NewIoFailure(entry.Path, os.ErrNotExist)
				mu.Unlock()
				return nil
			}
			r, err := hasher.Hash(entry.AbsPath(e.Root))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[entry.Path] = err
				e.Log.Warnf("hash failed for %s: %v", entry.Path, err)
				return nil
			}
			results[entry.Path] = r
			return nil
		})
	}
	_ = g.Wait() // per-file errors are collected above; Go never returns one
	return results, failures
}

// classify compares discovered+hashed files against the prior manifest.
func classify(hashed map[string]hasher.Result, prior *manifest.Manifest) []Classified {
	out := make([]Classified, 0, len(hashed))
	for path, r := range hashed {
		c := Classified{Path: path, Size: r.Size, Digest: r.Digest}
		if rec, ok := prior.Records[path]; ok && rec.Size == r.Size && rec.Hash == [32]byte(r.Digest) {
			c.Class = Unchanged
			c.TargetTime = rec.Mtime
		} else if ok {
			c.Class = Modified
		} else {
			c.Class = New
		}
		out = append(out, c)
	}
	return out
}

// assignMtimes fills TargetTime for Modified/New entries by consulting clk
// once per file, in a deterministic path order so results are reproducible
// given the same clock state.
func assignMtimes(entries []Classified, clk *clock.Clock) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	for i := range entries {
		if entries[i].Class != Unchanged {
			entries[i].TargetTime = manifest.FromNanos(clk.Next())
		}
	}
}

// applyMtimes sets each entry's filesystem mtime to its TargetTime, skipping
// any entry whose current mtime already matches (step 5: minimize churn).
// Per-file failures are collected, not fatal.
func (e *Engine) applyMtimes(entries []Classified) map[string]error {
	failures := make(map[string]error)
	var mu sync.Mutex

	workers := runtime.GOMAXPROCS(0)
	if workers > len(entries) {
		workers = len(entries)
	}
	if workers < 1 {
		workers = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, c := range entries {
		c := c
		g.Go(func() error {
			abs := discovery.Entry{Path: c.Path}.AbsPath(e.Root)
			info, err := os.Lstat(abs)
			if err != nil {
				mu.Lock()
				failures[c.Path] = cherr.NewIoFailure(c.Path, err)
				mu.Unlock()
				return nil
			}
			want := time.Unix(0, c.TargetTime.Nanos())
			if info.ModTime().UnixNano() == want.UnixNano() {
				return nil
			}
			if err := os.Chtimes(abs, want, want); err != nil {
				mu.Lock()
				failures[c.Path] = cherr.NewIoFailure(c.Path, err)
				mu.Unlock()
				e.Log.Warnf("mtime apply failed for %s: %v", c.Path, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

// buildSuccessor constructs the successor manifest from classified entries,
// dropping any path present in prior but absent from the discovered set
// (step 3) implicitly, since it only ever adds discovered paths.
func buildSuccessor(prior *manifest.Manifest, entries []Classified, clk *clock.Clock) *manifest.Manifest {
	out := manifest.New()
	for _, c := range entries {
		out.Records[c.Path] = manifest.FileRecord{
			Path:  c.Path,
			Size:  c.Size,
			Hash:  c.Digest,
			Mtime: c.TargetTime,
		}
	}
	if nanos := clk.HighWater(); nanos != 0 {
		hw := manifest.FromNanos(nanos)
		out.ClockHighWater = &hw
	}
	if prior.LastBuildMaxMtime != nil {
		out.LastBuildMaxMtime = prior.LastBuildMaxMtime
	}
	return out
}

// scanMaxMtime walks dir and returns the maximum mtime observed among
// regular files, implementing step 7 (the last_build_max_mtime watermark
// the GC planner protects).
func scanMaxMtime(dir string) (manifest.Timestamp, error) {
	var max int64
	found := false
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip entries that vanish mid-walk; best-effort watermark
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if nanos := info.ModTime().UnixNano(); !found || nanos > max {
			max = nanos
			found = true
		}
		return nil
	})
	if err != nil {
		return manifest.Timestamp{}, err
	}
	if !found {
		return manifest.Timestamp{}, nil
	}
	return manifest.FromNanos(max), nil
}

// newClock builds a Clock seeded from prior's clock_high_water (0 if
// absent, which tells Clock to seed from wall-clock on first Next).
func newClock(prior *manifest.Manifest, resolution clock.Resolution) *clock.Clock {
	seed := int64(0)
	if prior.ClockHighWater != nil {
		seed = prior.ClockHighWater.Nanos()
	}
	return clock.New(seed, resolution)
}

// Stow performs steps 1-3, 6-8: scan, hash, classify, persist — does not
// touch filesystem mtimes. Used to capture a baseline. Step 7 (scanning the
// target directory for last_build_max_mtime) runs here too, matching
// Anchor, so that bilge followed by anchor on a fresh workspace persists
// the same manifest stow would.
func (e *Engine) Stow(ctx context.Context, resolution clock.Resolution) (*Result, error) {
	prior, err := e.loadPrior()
	if err != nil {
		return nil, err
	}
	entries, err := discovery.Enumerate(e.Root, e.DiscOpts)
	if err != nil {
		return nil, err
	}
	hashed, hashFailures := e.hashAll(ctx, entries)
	classified := classify(hashed, prior)
	clk := newClock(prior, resolution)
	assignMtimes(classified, clk)

	succ := buildSuccessor(prior, classified, clk)
	watermark, err := scanMaxMtime(e.Target)
	if err != nil {
		e.Log.Warnf("target-directory scan for watermark failed: %v", err)
	} else {
		succ.LastBuildMaxMtime = &watermark
	}

	if err := e.Codec.Persist(succ); err != nil {
		return nil, err
	}
	return &Result{Classified: classified, Failures: hashFailures, Manifest: succ}, nil
}

// Salvage performs steps 1-5: restore mtimes from the manifest for
// unchanged files and assign fresh ones for modified/new files, without
// persisting a successor manifest. Running it twice in succession leaves
// unchanged files as they are the second time, since their mtimes already
// match their records. Modified and new files are stamped again on every
// run with fresh clock timestamps, because Salvage does not persist the
// clock's high-water mark; a second run therefore moves their mtimes
// forward.
func (e *Engine) Salvage(ctx context.Context, resolution clock.Resolution) (*Result, error) {
	prior, err := e.loadPrior()
	if err != nil {
		return nil, err
	}
	entries, err := discovery.Enumerate(e.Root, e.DiscOpts)
	if err != nil {
		return nil, err
	}
	hashed, hashFailures := e.hashAll(ctx, entries)
	classified := classify(hashed, prior)
	clk := newClock(prior, resolution)
	assignMtimes(classified, clk)
	mtimeFailures := e.applyMtimes(classified)

	return &Result{Classified: classified, Failures: hashFailures, MtimeErrors: mtimeFailures}, nil
}

// Anchor performs the full steps 1-8: the canonical CI entry point.
func (e *Engine) Anchor(ctx context.Context, resolution clock.Resolution) (*Result, error) {
	prior, err := e.loadPrior()
	if err != nil {
		return nil, err
	}
	entries, err := discovery.Enumerate(e.Root, e.DiscOpts)
	if err != nil {
		return nil, err
	}
	hashed, hashFailures := e.hashAll(ctx, entries)
	classified := classify(hashed, prior)
	clk := newClock(prior, resolution)
	assignMtimes(classified, clk)
	mtimeFailures := e.applyMtimes(classified)

	succ := buildSuccessor(prior, classified, clk)
	watermark, err := scanMaxMtime(e.Target)
	if err != nil {
		e.Log.Warnf("target-directory scan for watermark failed: %v", err)
	} else {
		succ.LastBuildMaxMtime = &watermark
	}

	if err := e.Codec.Persist(succ); err != nil {
		return nil, err
	}
	return &Result{Classified: classified, Failures: hashFailures, MtimeErrors: mtimeFailures, Manifest: succ}, nil
}

// Bilge deletes the manifest file. The next run treats the manifest as
// empty.
func (e *Engine) Bilge() error {
	return e.Codec.Delete()
}
