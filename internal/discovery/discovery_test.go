package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
)

func initRepoWithFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	for name, content := range files {
		full := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	return dir
}

func TestEnumerate_ReturnsTrackedFilesSorted(t *testing.T) {
	dir := initRepoWithFiles(t, map[string]string{
		"src/lib.rs": "fn main() {}",
		"Cargo.toml": "[package]\nname=\"x\"",
		"README.md":  "hello",
	})

	entries, err := Enumerate(dir, Options{})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	want := []string{"Cargo.toml", "README.md", "src/lib.rs"}
	for i, e := range entries {
		if e.Path != want[i] {
			t.Fatalf("entries[%d].Path = %q, want %q", i, e.Path, want[i])
		}
	}
}

func TestEnumerate_OnlyTracksAddedFiles(t *testing.T) {
	dir := initRepoWithFiles(t, map[string]string{
		"tracked.txt": "a",
	})
	if err := os.WriteFile(filepath.Join(dir, "untracked.txt"), []byte("b"), 0o644); err != nil {
		t.Fatalf("write untracked: %v", err)
	}

	entries, err := Enumerate(dir, Options{})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "tracked.txt" {
		t.Fatalf("expected only tracked.txt, got %+v", entries)
	}
}

func TestEnumerate_NonRepoFailsWithVcsUnavailable(t *testing.T) {
	dir := t.TempDir()
	_, err := Enumerate(dir, Options{})
	if err == nil {
		t.Fatalf("expected an error for a non-repository directory")
	}
}

func TestEnumerate_SymlinksSkippedUnlessFollowed(t *testing.T) {
	dir := initRepoWithFiles(t, map[string]string{"real.txt": "x"})
	if err := os.Symlink("real.txt", filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported on this platform: %v", err)
	}
	repo, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatalf("PlainOpen: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if _, err := wt.Add("link.txt"); err != nil {
		t.Fatalf("add link.txt: %v", err)
	}

	withoutFollow, err := Enumerate(dir, Options{})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	for _, e := range withoutFollow {
		if e.Path == "link.txt" {
			t.Fatalf("expected link.txt to be skipped when FollowSymlinks is false, got %+v", withoutFollow)
		}
	}

	withFollow, err := Enumerate(dir, Options{FollowSymlinks: true})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	found := false
	for _, e := range withFollow {
		if e.Path == "link.txt" {
			found = true
			if !e.IsSymlink() {
				t.Fatalf("expected link.txt to report IsSymlink() true")
			}
		}
	}
	if !found {
		t.Fatalf("expected link.txt to be present when FollowSymlinks is true, got %+v", withFollow)
	}
}

func TestEntry_AbsPathAndExists(t *testing.T) {
	dir := initRepoWithFiles(t, map[string]string{"a/b.txt": "x"})
	entries, err := Enumerate(dir, Options{})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if !e.Exists(dir) {
		t.Fatalf("expected %s to exist under %s", e.Path, dir)
	}
	if e.AbsPath(dir) != filepath.Join(dir, "a", "b.txt") {
		t.Fatalf("AbsPath = %s", e.AbsPath(dir))
	}
}
