// Package gc plans and executes heave: removal of build artifacts under a
// target directory subject to a combined size and age policy, while
// protecting the most recent build generation and a fixed set of
// never-delete entities.
//
// Ranking and eviction follow a FIFO-compaction shape: rank units by age,
// evict oldest-first against a size budget, then evict anything still over
// an age threshold. Here the unit is a crate's build-output group rather
// than an SST file, and eviction means deleting from disk rather than
// dropping from a Version.
package gc

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Ellipsis-Labs/cargo-hold/internal/logging"
	"github.com/Ellipsis-Labs/cargo-hold/internal/manifest"
)

// Options configures a GC run.
type Options struct {
	TargetDir             string
	MaxTotalSize          uint64 // 0 means unbounded
	AgeThreshold          time.Duration
	PreserveToolchainBins []string // names, matched against ToolchainBinDir
	ToolchainBinDir       string
	LastBuildMaxMtime     *manifest.Timestamp
	DryRun                bool

	// CargoHomeDir is the cargo home (CARGO_HOME, defaulting to ~/.cargo)
	// whose registry and git-dependency checkout caches are swept as
	// ancillary entries. Empty disables that half of the sweep — the
	// registry/git caches live here, not under TargetDir.
	CargoHomeDir string
}

// member is one file belonging to a crate-unit group.
type member struct {
	path  string
	size  uint64
	mtime time.Time
}

// Group is one crate-unit's build outputs, evaluated and evicted together.
type Group struct {
	ID        string
	Members   []member
	Size      uint64
	MaxMtime  time.Time
	Protected bool
}

// Plan is the ordered set of decisions a heave run will (or, in dry-run,
// would) execute.
type Plan struct {
	Delete    []Group
	Keep      []Group
	Ancillary []string // ancillary files/dirs slated for removal
}

// Planner builds and executes a Plan.
type Planner struct {
	Opts Options
	Log  logging.Logger
}

// NewPlanner builds a Planner. log may be nil (logging.Discard is used).
func NewPlanner(opts Options, log logging.Logger) *Planner {
	if log == nil {
		log = logging.Discard
	}
	return &Planner{Opts: opts, Log: log.With("gc")}
}

// Plan walks the target directory, groups artifacts, ranks them, and
// decides what to delete under the configured size and age policy. It does
// not delete anything; call Execute to apply it.
func (p *Planner) Plan() (*Plan, error) {
	groups, err := p.discoverGroups()
	if err != nil {
		return nil, err
	}
	p.markProtected(groups)

	// Oldest-first.
	sort.Slice(groups, func(i, j int) bool { return groups[i].MaxMtime.Before(groups[j].MaxMtime) })

	eligible := make([]*Group, 0, len(groups))
	for i := range groups {
		if !groups[i].Protected {
			eligible = append(eligible, &groups[i])
		}
	}

	toDelete := make(map[string]bool)

	// Phase 1: size enforcement, oldest-first, against eligible groups only.
	if p.Opts.MaxTotalSize > 0 {
		var total uint64
		for _, g := range eligible {
			total += g.Size
		}
		for _, g := range eligible {
			if total <= p.Opts.MaxTotalSize {
				break
			}
			toDelete[g.ID] = true
			total -= g.Size
		}
	}

	// Phase 2: age enforcement over whatever remains eligible.
	if p.Opts.AgeThreshold > 0 {
		cutoff := time.Now().Add(-p.Opts.AgeThreshold)
		for _, g := range eligible {
			if toDelete[g.ID] {
				continue
			}
			if g.MaxMtime.Before(cutoff) {
				toDelete[g.ID] = true
			}
		}
	}

	plan := &Plan{}
	for _, g := range groups {
		if toDelete[g.ID] {
			plan.Delete = append(plan.Delete, g)
		} else {
			plan.Keep = append(plan.Keep, g)
		}
	}

	ancillary, err := p.discoverAncillary()
	if err != nil {
		p.Log.Warnf("ancillary directory sweep failed: %v", err)
	} else {
		plan.Ancillary = ancillary
	}

	return plan, nil
}

// Execute deletes everything in plan.Delete and plan.Ancillary, unless the
// planner is configured for dry-run. A per-entry failure is logged and
// skipped; Execute always returns nil.
func (p *Planner) Execute(plan *Plan) error {
	var freed uint64
	for _, g := range plan.Delete {
		freed += g.Size
	}
	if p.Opts.DryRun {
		p.Log.Infof("dry-run: would delete %d group(s) (%s) and %d ancillary entr(y/ies)",
			len(plan.Delete), humanize.Bytes(freed), len(plan.Ancillary))
		return nil
	}
	for _, g := range plan.Delete {
		for _, m := range g.Members {
			if err := os.RemoveAll(m.path); err != nil {
				p.Log.Warnf("failed to remove %s (group %s): %v", m.path, g.ID, err)
			}
		}
	}
	p.Log.Infof("heave freed %s across %d group(s)", humanize.Bytes(freed), len(plan.Delete))
	for _, a := range plan.Ancillary {
		if err := os.RemoveAll(a); err != nil {
			p.Log.Warnf("failed to remove ancillary entry %s: %v", a, err)
		}
	}
	return nil
}

// markProtected applies the protected-entity rules: last-build watermark,
// executables, manifests/lockfiles.
func (p *Planner) markProtected(groups []Group) {
	for i := range groups {
		g := &groups[i]
		if p.Opts.LastBuildMaxMtime != nil {
			wm := time.Unix(0, p.Opts.LastBuildMaxMtime.Nanos())
			if !g.MaxMtime.Before(wm) {
				g.Protected = true
				continue
			}
		}
		for _, m := range g.Members {
			if p.isProtectedPath(m.path) {
				g.Protected = true
				break
			}
		}
	}
}

func (p *Planner) isProtectedPath(path string) bool {
	base := filepath.Base(path)
	if base == "Cargo.toml" || base == "Cargo.lock" {
		return true
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
		// An executable artifact sitting directly under a profile
		// directory (target/debug/<name>), not under deps/ or a
		// fingerprint directory, is a top-level build product.
		dir := filepath.Base(filepath.Dir(path))
		if dir == "debug" || dir == "release" || strings.HasPrefix(dir, "debug") || strings.HasPrefix(dir, "release") {
			return true
		}
	}
	if p.Opts.ToolchainBinDir != "" && filepath.Dir(path) == p.Opts.ToolchainBinDir {
		for _, name := range p.Opts.PreserveToolchainBins {
			if name == base {
				return true
			}
		}
	}
	return false
}

// discoverGroups walks TargetDir and groups regular files by crate-unit id.
func (p *Planner) discoverGroups() ([]Group, error) {
	byID := make(map[string]*Group)

	err := filepath.WalkDir(p.Opts.TargetDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		if isAncillaryPath(p.Opts.TargetDir, path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		id := crateUnitID(path)
		g, ok := byID[id]
		if !ok {
			g = &Group{ID: id}
			byID[id] = g
		}
		g.Members = append(g.Members, member{path: path, size: uint64(info.Size()), mtime: info.ModTime()})
		g.Size += uint64(info.Size())
		if info.ModTime().After(g.MaxMtime) {
			g.MaxMtime = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Group, 0, len(byID))
	for _, g := range byID {
		out = append(out, *g)
	}
	return out, nil
}

// crateUnitID derives the crate-unit identifier a build-output file belongs
// to: its base name with any extension stripped and a "lib" prefix removed,
// so foo-9a8b7c6d5e4f3a2b.d and libfoo-9a8b7c6d5e4f3a2b.rlib fold into the
// same group — the trailing cargo metadata-hash is what actually ties them
// together, and is preserved (not stripped) as part of the identifier. Only
// a file's own base name is used: files inside a fingerprint directory such
// as foo-9a8b7c6d5e4f3a2b/ are grouped by their own names, not by the
// directory's, so they do not join foo-9a8b7c6d5e4f3a2b's group.
func crateUnitID(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimPrefix(base, "lib")
	return base
}

// targetAncillaryDirNames are ancillary subtrees of TargetDir itself: cargo
// writes scratch space, temp files, and generated docs under target/, unlike
// the registry and git-dependency caches below, which live under
// CARGO_HOME rather than the target directory.
var targetAncillaryDirNames = []string{"tmp", "scratch", "doc"}

// cargoHomeAncillaryDirNames are ancillary subtrees of CargoHomeDir: the
// downloaded-crate registry cache and the git-dependency checkout cache.
var cargoHomeAncillaryDirNames = []string{"registry", "git"}

func isAncillaryPath(targetDir, path string) bool {
	rel, err := filepath.Rel(targetDir, path)
	if err != nil {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) == 0 {
		return false
	}
	for _, n := range targetAncillaryDirNames {
		if parts[0] == n {
			return true
		}
	}
	return false
}

// discoverAncillary lists entries older than AgeThreshold directly under
// the target directory's own scratch/tmp/doc subtrees, plus (if
// CargoHomeDir is set) the registry and git-dependency caches under
// CARGO_HOME.
func (p *Planner) discoverAncillary() ([]string, error) {
	var out []string
	cutoff := time.Now().Add(-p.Opts.AgeThreshold)

	sweep := func(root string) {
		entries, err := os.ReadDir(root)
		if err != nil {
			return // ancillary root doesn't exist; nothing to sweep
		}
		for _, e := range entries {
			info, err := e.Info()
			if err != nil {
				continue
			}
			if p.Opts.AgeThreshold <= 0 || info.ModTime().Before(cutoff) {
				out = append(out, filepath.Join(root, e.Name()))
			}
		}
	}

	for _, name := range targetAncillaryDirNames {
		sweep(filepath.Join(p.Opts.TargetDir, name))
	}
	if p.Opts.CargoHomeDir != "" {
		for _, name := range cargoHomeAncillaryDirNames {
			sweep(filepath.Join(p.Opts.CargoHomeDir, name))
		}
	}

	sort.Strings(out)
	return out, nil
}
