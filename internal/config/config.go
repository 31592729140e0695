// Package config resolves cargo-hold's options from flags and environment
// variables (no config file is read), in the same
// cobra-flag-plus-viper-plus-env shape the bennypowers-cem tool uses for its
// own command tree: every persistent flag is bound into viper, and viper's
// AutomaticEnv with a fixed prefix makes the same option settable as
// CARGO_HOLD_SOME_OPTION without any bespoke env-parsing code.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Ellipsis-Labs/cargo-hold/internal/logging"
)

// EnvPrefix is the fixed prefix every long option is also settable under,
// e.g. --max-target-size becomes CARGO_HOLD_MAX_TARGET_SIZE.
const EnvPrefix = "CARGO_HOLD"

// Config is the fully resolved set of options common to every subcommand,
// plus the heave/voyage-specific ones.
type Config struct {
	TargetDir    string
	MetadataPath string

	Verbose bool
	Quiet   bool
	Debug   bool

	MaxTargetSize         uint64
	AgeThreshold          time.Duration
	PreserveCargoBinaries []string
	DryRun                bool

	FollowSymlinks    bool
	RecurseSubmodules bool
}

// New resolves a Config from v (AutomaticEnv with EnvPrefix already enabled
// by the caller); it does not bind anything into v itself. Flags must
// already have been bound with v.BindPFlag by the cobra command that calls
// this.
//
// changed, if given, is a cobra/pflag FlagSet.Changed-shaped lookup used to
// tell "flag left at its zero-equivalent default" apart from "flag explicitly
// set to that same value" — needed for age-threshold-days, whose zero value
// (0) coincides with "unset" under the naive v.GetInt reading.
func New(v *viper.Viper, changed ...func(string) bool) (*Config, error) {
	c := &Config{
		TargetDir:         v.GetString("target-dir"),
		Verbose:           v.GetBool("verbose"),
		Quiet:             v.GetBool("quiet"),
		Debug:             v.GetBool("debug"),
		DryRun:            v.GetBool("dry-run"),
		FollowSymlinks:    v.GetBool("follow-symlinks"),
		RecurseSubmodules: v.GetBool("recurse-submodules"),
	}
	if c.TargetDir == "" {
		c.TargetDir = "target"
	}

	c.MetadataPath = v.GetString("metadata-path")
	if c.MetadataPath == "" {
		c.MetadataPath = filepath.Join(c.TargetDir, "cargo-hold.metadata")
	}

	if sizeStr := v.GetString("max-target-size"); sizeStr != "" {
		size, err := ParseSize(sizeStr)
		if err != nil {
			return nil, err
		}
		c.MaxTargetSize = size
	}

	days := v.GetInt("age-threshold-days")
	explicitlySetToZero := len(changed) > 0 && changed[0] != nil && changed[0]("age-threshold-days")
	if days == 0 && !explicitlySetToZero {
		days = 7
	}
	c.AgeThreshold = time.Duration(days) * 24 * time.Hour

	if csv := v.GetString("preserve-cargo-binaries"); csv != "" {
		for _, name := range strings.Split(csv, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.PreserveCargoBinaries = append(c.PreserveCargoBinaries, name)
			}
		}
	}

	return c, nil
}

// LogLevel maps the resolved verbosity flags to a logging.Level: -q wins
// over -v, and --debug implies the most verbose level.
func (c *Config) LogLevel() logging.Level {
	switch {
	case c.Quiet:
		return logging.LevelError
	case c.Debug, c.Verbose:
		return logging.LevelDebug
	default:
		return logging.LevelInfo
	}
}
