// Package discovery enumerates the files a source tree wants tracked: those
// recorded in a git repository's index, rather than every path under a
// directory. Build directories, editor swap files, and other untracked
// clutter never reach the hasher or the state engine because they are never
// yielded here.
//
// Enumerate reads the repository's index directly via
// github.com/go-git/go-git/v5, the same library the bennypowers-cem
// reference tool uses for repository introspection, rather than shelling out
// to a git binary: no subprocess, no PATH dependency, and the index format
// itself (not git's command-line output) is the source of truth for what is
// tracked.
package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/filemode"

	"github.com/Ellipsis-Labs/cargo-hold/internal/cherr"
)

// Options controls which index entries Enumerate yields.
type Options struct {
	// FollowSymlinks, when true, yields symlink entries so the hasher and
	// state engine hash and re-stamp the link's target like any other
	// tracked file. When false, symlink entries are skipped entirely and
	// left untouched. Callers that want the documented "followed by
	// default" policy must set this explicitly — Options{} follows nothing,
	// since Go gives every field its type's zero value.
	FollowSymlinks bool
	// RecurseSubmodules, when true, yields submodule gitlink entries
	// themselves (each names the submodule's directory); when false they are
	// skipped. The submodule's own tracked files are not enumerated either
	// way. Off by default: a submodule's build lives under its own
	// cache-restore boundary and is salvaged independently.
	RecurseSubmodules bool
}

// Entry is one tracked file, relative to the repository's working tree root.
type Entry struct {
	// Path is forward-slash separated and relative to root.
	Path string
	// Mode is the entry's git file mode (regular, executable, symlink, or
	// submodule gitlink).
	Mode filemode.FileMode
}

// Enumerate returns the tracked files under the git repository rooted at (or
// above) root, sorted by path. It fails with cherr.VcsUnavailable if root is
// not inside a git working tree.
func Enumerate(root string, opts Options) ([]Entry, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, cherr.NewVcsUnavailable(root, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, cherr.NewVcsUnavailable(root, err)
	}
	repoRoot := wt.Filesystem.Root()

	prefix, err := relativePrefix(repoRoot, root)
	if err != nil {
		return nil, cherr.NewVcsUnavailable(root, err)
	}

	idx, err := repo.Storer.Index()
	if err != nil {
		return nil, cherr.NewVcsUnavailable(root, err)
	}

	entries := make([]Entry, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		name := filepath.ToSlash(e.Name)
		if e.Mode == filemode.Submodule && !opts.RecurseSubmodules {
			continue
		}
		if e.Mode == filemode.Symlink && !opts.FollowSymlinks {
			continue
		}
		if prefix != "" {
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			name = strings.TrimPrefix(name, prefix)
		}
		entries = append(entries, Entry{Path: name, Mode: e.Mode})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// relativePrefix returns the index-path prefix (with a trailing slash, or
// "" if root is the repository root) that root represents within repoRoot.
func relativePrefix(repoRoot, root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absRepoRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRepoRoot, absRoot)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel) + "/", nil
}

// IsSymlink reports whether e names a symlink entry in the index.
func (e Entry) IsSymlink() bool { return e.Mode == filemode.Symlink }

// AbsPath joins root and e.Path into a native filesystem path.
func (e Entry) AbsPath(root string) string {
	return filepath.Join(root, filepath.FromSlash(e.Path))
}

// Exists reports whether e's path is still present on disk under root. The
// state engine checks it before hashing: a file present in the index but
// removed from the working tree is not hashed, and is recorded as an
// IoFailure (not found) in the operation's failures.
func (e Entry) Exists(root string) bool {
	_, err := os.Lstat(e.AbsPath(root))
	return err == nil
}
