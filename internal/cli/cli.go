// Package cli wires cargo-hold's six subcommands — anchor, salvage, stow,
// bilge, heave, voyage — onto a cobra command tree, binding every flag into
// viper so it is also settable as a CARGO_HOLD_-prefixed environment
// variable, the same flag/viper/env wiring pattern the bennypowers-cem tool
// uses for its own command tree (cmd/root.go's BindPFlag calls plus
// viper.AutomaticEnv).
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Ellipsis-Labs/cargo-hold/internal/clock"
	cfgpkg "github.com/Ellipsis-Labs/cargo-hold/internal/config"
	"github.com/Ellipsis-Labs/cargo-hold/internal/discovery"
	"github.com/Ellipsis-Labs/cargo-hold/internal/gc"
	"github.com/Ellipsis-Labs/cargo-hold/internal/logging"
	"github.com/Ellipsis-Labs/cargo-hold/internal/manifest"
	"github.com/Ellipsis-Labs/cargo-hold/internal/stateengine"
)

// NewRootCommand builds the cargo-hold command tree.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(cfgpkg.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "cargo-hold",
		Short: "Stabilize cargo's reliance on filesystem mtimes across cache restores",
	}

	addCommonFlags(root, v)

	root.AddCommand(
		newAnchorCmd(v),
		newSalvageCmd(v),
		newStowCmd(v),
		newBilgeCmd(v),
		newHeaveCmd(v),
		newVoyageCmd(v),
	)
	return root
}

func addCommonFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()
	flags.String("target-dir", "target", "build output directory")
	flags.String("metadata-path", "", "manifest path (default <target-dir>/cargo-hold.metadata)")
	flags.BoolP("verbose", "v", false, "verbose logging")
	flags.BoolP("quiet", "q", false, "quiet: errors only")
	flags.Bool("follow-symlinks", true, "hash and re-stamp symlinked files' targets instead of leaving them untouched")
	flags.Bool("recurse-submodules", false, "also yield submodule gitlink entries (the submodules' own files are not enumerated)")
	mustBind(v, flags, "target-dir", "metadata-path", "verbose", "quiet", "follow-symlinks", "recurse-submodules")
}

func addHeaveFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.String("max-target-size", "", "maximum total size of groupable artifacts (e.g. 5G, 500M, 1024K)")
	flags.Int("age-threshold-days", 7, "age in days beyond which artifacts are evicted")
	flags.String("preserve-cargo-binaries", "", "comma-separated toolchain binary names never evicted")
	flags.Bool("dry-run", false, "plan deletions without executing them")
	flags.Bool("debug", false, "debug-level logging")
	mustBind(v, flags, "max-target-size", "age-threshold-days", "preserve-cargo-binaries", "dry-run", "debug")
}

func mustBind(v *viper.Viper, flags *pflag.FlagSet, names ...string) {
	for _, n := range names {
		if err := v.BindPFlag(n, flags.Lookup(n)); err != nil {
			panic(fmt.Sprintf("cli: bind flag %q: %v", n, err))
		}
	}
}

func newLogger(cfg *cfgpkg.Config) logging.Logger {
	return logging.NewDefault(cfg.LogLevel())
}

func newEngine(cfg *cfgpkg.Config, log logging.Logger) *stateengine.Engine {
	codec := manifest.NewCodec(cfg.MetadataPath)
	e := stateengine.New(cfg.TargetDir, codec, log)
	e.DiscOpts = discovery.Options{
		FollowSymlinks:    cfg.FollowSymlinks,
		RecurseSubmodules: cfg.RecurseSubmodules,
	}
	return e
}

// resolution probes the target directory's own filesystem, since that is
// where mtimes are actually stamped and compared. Before the first stow the
// target directory may not exist yet, so it is created first; only if that
// creation fails is the system temp dir probed instead.
func resolution(cfg *cfgpkg.Config) clock.Resolution {
	if err := os.MkdirAll(cfg.TargetDir, 0o755); err != nil {
		return clock.ProbeDefault()
	}
	return clock.Probe(cfg.TargetDir)
}

func loadConfig(v *viper.Viper, cmd *cobra.Command) (*cfgpkg.Config, error) {
	return cfgpkg.New(v, cmd.Flags().Changed)
}

func newAnchorCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "anchor",
		Short: "Restore mtimes, rescan, and persist the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, cmd)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			e := newEngine(cfg, log)
			res, err := e.Anchor(cmd.Context(), resolution(cfg))
			if err != nil {
				return err
			}
			reportFailures(log, res)
			return nil
		},
	}
}

func newSalvageCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "salvage",
		Short: "Reapply recorded mtimes without persisting the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, cmd)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			e := newEngine(cfg, log)
			res, err := e.Salvage(cmd.Context(), resolution(cfg))
			if err != nil {
				return err
			}
			reportFailures(log, res)
			return nil
		},
	}
}

func newStowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "stow",
		Short: "Scan and persist a manifest without touching mtimes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, cmd)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			e := newEngine(cfg, log)
			res, err := e.Stow(cmd.Context(), resolution(cfg))
			if err != nil {
				return err
			}
			reportFailures(log, res)
			return nil
		},
	}
}

func newBilgeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "bilge",
		Short: "Delete the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, cmd)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			e := newEngine(cfg, log)
			return e.Bilge()
		},
	}
}

func newHeaveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heave",
		Short: "Garbage-collect build artifacts under size and age bounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, cmd)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			return runHeave(cfg, log)
		},
	}
	addHeaveFlags(cmd, v)
	return cmd
}

func newVoyageCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voyage",
		Short: "Anchor, then heave using the freshly captured watermark",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, cmd)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			e := newEngine(cfg, log)
			res, err := e.Anchor(cmd.Context(), resolution(cfg))
			if err != nil {
				return err
			}
			reportFailures(log, res)
			return runHeave(cfg, log)
		},
	}
	addHeaveFlags(cmd, v)
	return cmd
}

func runHeave(cfg *cfgpkg.Config, log logging.Logger) error {
	codec := manifest.NewCodec(cfg.MetadataPath)
	m, closer, err := codec.Load()
	var watermark *manifest.Timestamp
	if err == nil && m != nil {
		defer closer()
		watermark = m.LastBuildMaxMtime
	}

	planner := gc.NewPlanner(gc.Options{
		TargetDir:             cfg.TargetDir,
		MaxTotalSize:          cfg.MaxTargetSize,
		AgeThreshold:          cfg.AgeThreshold,
		PreserveToolchainBins: cfg.PreserveCargoBinaries,
		ToolchainBinDir:       toolchainBinDir(),
		CargoHomeDir:          cargoHomeDir(),
		LastBuildMaxMtime:     watermark,
		DryRun:                cfg.DryRun,
	}, log)

	plan, err := planner.Plan()
	if err != nil {
		return err
	}
	log.Infof("heave: %d group(s) to delete, %d kept, %d ancillary entries", len(plan.Delete), len(plan.Keep), len(plan.Ancillary))
	return planner.Execute(plan)
}

// toolchainBinDir returns the user's cargo toolchain bin directory
// (CARGO_HOME/bin, defaulting to ~/.cargo/bin), used to resolve
// --preserve-cargo-binaries names.
func toolchainBinDir() string {
	if home := cargoHomeDir(); home != "" {
		return filepath.Join(home, "bin")
	}
	return ""
}

// cargoHomeDir returns CARGO_HOME, defaulting to ~/.cargo, the root under
// which cargo keeps its downloaded-crate registry and git-dependency
// checkout caches (as opposed to TargetDir, the build output directory).
func cargoHomeDir() string {
	if home := os.Getenv("CARGO_HOME"); home != "" {
		return home
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cargo")
	}
	return ""
}

func reportFailures(log logging.Logger, res *stateengine.Result) {
	for path, err := range res.Failures {
		log.Warnf("hash failed for %s: %v", path, err)
	}
	for path, err := range res.MtimeErrors {
		log.Warnf("mtime apply failed for %s: %v", path, err)
	}
}
