package config

import (
	"testing"

	"github.com/spf13/viper"

	"github.com/Ellipsis-Labs/cargo-hold/internal/logging"
)

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"", 0},
		{"1024", 1024},
		{"5G", 5 << 30},
		{"500M", 500 << 20},
		{"1024K", 1024 << 10},
		{"2t", 2 << 40},
	}
	for _, c := range cases {
		got, err := ParseSize(c.in)
		if err != nil {
			t.Fatalf("ParseSize(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseSize_Invalid(t *testing.T) {
	if _, err := ParseSize("5X"); err == nil {
		t.Fatalf("expected an error for an unrecognized suffix")
	}
	if _, err := ParseSize("not-a-number"); err == nil {
		t.Fatalf("expected an error for a non-numeric size")
	}
}

func TestNew_Defaults(t *testing.T) {
	v := viper.New()
	c, err := New(v)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.TargetDir != "target" {
		t.Fatalf("TargetDir = %q, want %q", c.TargetDir, "target")
	}
	if c.MetadataPath != "target/cargo-hold.metadata" {
		t.Fatalf("MetadataPath = %q", c.MetadataPath)
	}
	if c.AgeThreshold.Hours() != 7*24 {
		t.Fatalf("AgeThreshold = %v, want 7 days", c.AgeThreshold)
	}
}

func TestNew_UnsetAgeThresholdDaysFallsBackToSevenDays(t *testing.T) {
	v := viper.New()
	v.Set("age-threshold-days", 0)
	c, err := New(v, func(string) bool { return false })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.AgeThreshold.Hours() != 7*24 {
		t.Fatalf("AgeThreshold = %v, want 7 days when age-threshold-days was never set", c.AgeThreshold)
	}
}

func TestNew_ExplicitZeroAgeThresholdDaysIsHonored(t *testing.T) {
	v := viper.New()
	v.Set("age-threshold-days", 0)
	c, err := New(v, func(name string) bool { return name == "age-threshold-days" })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.AgeThreshold != 0 {
		t.Fatalf("AgeThreshold = %v, want 0 for an explicit --age-threshold-days=0", c.AgeThreshold)
	}
}

func TestNew_PreserveCargoBinariesSplitsCSV(t *testing.T) {
	v := viper.New()
	v.Set("preserve-cargo-binaries", "cargo, cargo-fmt , rustc")
	c, err := New(v)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := []string{"cargo", "cargo-fmt", "rustc"}
	if len(c.PreserveCargoBinaries) != len(want) {
		t.Fatalf("got %v, want %v", c.PreserveCargoBinaries, want)
	}
	for i := range want {
		if c.PreserveCargoBinaries[i] != want[i] {
			t.Fatalf("got %v, want %v", c.PreserveCargoBinaries, want)
		}
	}
}

func TestLogLevel_QuietWinsOverVerbose(t *testing.T) {
	c := &Config{Quiet: true, Verbose: true}
	if c.LogLevel() != logging.LevelError {
		t.Fatalf("expected LevelError when Quiet is set")
	}
}

func TestLogLevel_DebugImpliesMostVerbose(t *testing.T) {
	c := &Config{Debug: true}
	if c.LogLevel() != logging.LevelDebug {
		t.Fatalf("expected LevelDebug when Debug is set")
	}
}
