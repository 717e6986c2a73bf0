package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/Lllllllleong/scanrouter/internal/extract"
	"github.com/Lllllllleong/scanrouter/internal/models"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !slices.Equal(cfg.EntityAnchors, []string{"Legal Entity Name", "Registered Name"}) {
		t.Errorf("EntityAnchors = %v", cfg.EntityAnchors)
	}
	if cfg.Sentinel != "Err" || cfg.DPI != 400 {
		t.Errorf("Sentinel = %q, DPI = %d", cfg.Sentinel, cfg.DPI)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}

	cfg.BadNames[0] = "changed"
	if NewConfig().BadNames[0] == "changed" {
		t.Error("NewConfig shares the default bad-name slice")
	}
}

func TestDefaultEntityAnchorsFallBack(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	for i, a := range cfg.EntityAnchors {
		for j, b := range cfg.EntityAnchors {
			if i != j && strings.Contains(strings.ToLower(a), strings.ToLower(b)) {
				t.Errorf("anchor %q contains anchor %q", a, b)
			}
		}
	}

	// The first anchor yields a banned phrase; the second must still be reached.
	doc := models.NewDocument("scan.pdf", []string{
		"Profile\nLegal Entity Name\nMailing Address\n",
		"Details\nRegistered Name\nUmbrella Holdings\n",
	})
	s := extract.NewSearcher(cfg.NamePolicy())
	if got := s.EntityName(doc, cfg.EntityAnchors); got != "Umbrella Holdings" {
		t.Errorf("EntityName() = %q, want Umbrella Holdings", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"bad mode", func(c *Config) { c.Mode = "copy" }, ErrInvalidMode},
		{"zero workers", func(c *Config) { c.Workers = 0 }, ErrInvalidWorkers},
		{"zero dpi", func(c *Config) { c.DPI = 0 }, ErrInvalidDPI},
		{"unknown recognizer", func(c *Config) { c.Recognizer = "abbyy" }, ErrUnknownRecognizer},
		{"no anchors", func(c *Config) { c.EntityAnchors = nil }, ErrNoEntityAnchors},
		{"empty anchor", func(c *Config) { c.EntityAnchors = []string{""} }, ErrEmptyAnchor},
		{"empty cores anchor", func(c *Config) { c.CoresEndAnchor = "" }, ErrEmptyAnchor},
		{"unknown ledger", func(c *Config) { c.Ledger = "postgres" }, ErrUnknownLedger},
		{"firestore without project", func(c *Config) { c.Ledger = LedgerFirestore }, ErrMissingProject},
		{"firestore with project", func(c *Config) { c.Ledger = LedgerFirestore; c.ProjectID = "p" }, nil},
		{"asset mode", func(c *Config) { c.Mode = "asset" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := NewConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`mode: asset
workers: 3
bad_names:
  - "Registered Office"
entity_anchors: ["Company Name"]
log_level: warn
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := NewConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Mode != "asset" || cfg.Workers != 3 {
		t.Errorf("Mode = %q, Workers = %d", cfg.Mode, cfg.Workers)
	}
	if !slices.Equal(cfg.BadNames, []string{"Registered Office"}) {
		t.Errorf("BadNames = %v", cfg.BadNames)
	}
	if !slices.Equal(cfg.EntityAnchors, []string{"Company Name"}) {
		t.Errorf("EntityAnchors = %v", cfg.EntityAnchors)
	}
	if cfg.CoresStartAnchor != DefaultCoresStartAnchor {
		t.Errorf("unset key lost its default: %q", cfg.CoresStartAnchor)
	}
	if cfg.Level() != slog.LevelWarn {
		t.Errorf("Level() = %v, want warn", cfg.Level())
	}

	policy := cfg.NamePolicy()
	if got := policy.Clean("Registered Office"); got != "Err" {
		t.Errorf("configured bad name not rejected: %q", got)
	}
}

func TestLoadFileErrors(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "missing.yaml")
	if err := NewConfig().LoadFile(missing); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("LoadFile(missing) = %v, want ErrConfigNotFound", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("workers: ["), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := NewConfig().LoadFile(bad); err == nil || errors.Is(err, ErrConfigNotFound) {
		t.Errorf("LoadFile(bad) = %v, want a parse error", err)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("workers: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCANROUTER_WORKERS", "7")
	t.Setenv("ARCHIVE_BUCKET", "scans-archive")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workers != 7 {
		t.Errorf("Workers = %d, want env override 7", cfg.Workers)
	}
	if cfg.ArchiveBucket != "scans-archive" {
		t.Errorf("ArchiveBucket = %q", cfg.ArchiveBucket)
	}

	t.Setenv("SCANROUTER_WORKERS", "many")
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted a non-numeric worker count")
	}

	if _, err := Load(filepath.Join(dir, "nope.yaml")); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Load(explicit missing) = %v, want ErrConfigNotFound", err)
	}
}
