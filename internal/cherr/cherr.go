// Package cherr defines the error kinds surfaced across cargo-hold's
// components. Each kind is a struct so callers can attach the path or detail
// that produced it, and each wraps a package-level sentinel so call sites can
// classify an error with errors.Is without inspecting its message.
package cherr

import (
	"errors"
	"fmt"
)

// Sentinels used with errors.Is. Every exported error kind below wraps one.
var (
	ErrIO               = errors.New("cherr: io failure")
	ErrVcsUnavailable   = errors.New("cherr: vcs unavailable")
	ErrManifestCorrupt  = errors.New("cherr: manifest corrupt")
	ErrManifestPersist  = errors.New("cherr: manifest persist failed")
	ErrInvalidArgument  = errors.New("cherr: invalid argument")
	ErrClockRegression  = errors.New("cherr: clock regression")
)

// IoFailure reports that a specific file could not be read, stat'd, or
// touched.
type IoFailure struct {
	Path  string
	Cause error
}

func (e *IoFailure) Error() string {
	return fmt.Sprintf("io failure on %q: %v", e.Path, e.Cause)
}

func (e *IoFailure) Unwrap() []error { return []error{ErrIO, e.Cause} }

// NewIoFailure builds an IoFailure.
func NewIoFailure(path string, cause error) *IoFailure {
	return &IoFailure{Path: path, Cause: cause}
}

// VcsUnavailable reports that the workspace is not under the expected VCS,
// or that the VCS query failed.
type VcsUnavailable struct {
	Root  string
	Cause error
}

func (e *VcsUnavailable) Error() string {
	return fmt.Sprintf("vcs unavailable at %q: %v", e.Root, e.Cause)
}

func (e *VcsUnavailable) Unwrap() []error { return []error{ErrVcsUnavailable, e.Cause} }

// NewVcsUnavailable builds a VcsUnavailable.
func NewVcsUnavailable(root string, cause error) *VcsUnavailable {
	return &VcsUnavailable{Root: root, Cause: cause}
}

// ManifestCorrupt reports that a manifest's header, version, or structure
// failed validation. Call sites treat this as "no prior manifest".
type ManifestCorrupt struct {
	Path   string
	Reason string
}

func (e *ManifestCorrupt) Error() string {
	return fmt.Sprintf("manifest corrupt at %q: %s", e.Path, e.Reason)
}

func (e *ManifestCorrupt) Unwrap() error { return ErrManifestCorrupt }

// NewManifestCorrupt builds a ManifestCorrupt.
func NewManifestCorrupt(path, reason string) *ManifestCorrupt {
	return &ManifestCorrupt{Path: path, Reason: reason}
}

// ManifestPersistFailed reports that the write/rename of the successor
// manifest failed. This is always fatal to the operation.
type ManifestPersistFailed struct {
	Path  string
	Cause error
}

func (e *ManifestPersistFailed) Error() string {
	return fmt.Sprintf("failed to persist manifest at %q: %v", e.Path, e.Cause)
}

func (e *ManifestPersistFailed) Unwrap() []error { return []error{ErrManifestPersist, e.Cause} }

// NewManifestPersistFailed builds a ManifestPersistFailed.
func NewManifestPersistFailed(path string, cause error) *ManifestPersistFailed {
	return &ManifestPersistFailed{Path: path, Cause: cause}
}

// InvalidArgument reports that configuration parsing (a size suffix, a day
// count, a path) was rejected.
type InvalidArgument struct {
	Detail string
}

func (e *InvalidArgument) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.Detail)
}

func (e *InvalidArgument) Unwrap() error { return ErrInvalidArgument }

// NewInvalidArgument builds an InvalidArgument.
func NewInvalidArgument(detail string) *InvalidArgument {
	return &InvalidArgument{Detail: detail}
}

// ClockRegression reports that the system wall clock is behind the clock's
// high-water mark by more than a safety margin. Surfaced as a warning; the
// monotonic clock advances past it regardless.
type ClockRegression struct {
	Observed int64
	Required int64
}

func (e *ClockRegression) Error() string {
	return fmt.Sprintf("clock regression: observed=%d required>=%d", e.Observed, e.Required)
}

func (e *ClockRegression) Unwrap() error { return ErrClockRegression }

// NewClockRegression builds a ClockRegression.
func NewClockRegression(observed, required int64) *ClockRegression {
	return &ClockRegression{Observed: observed, Required: required}
}
