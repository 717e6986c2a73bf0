// Package config holds the settings shared by the batch CLI and the cloud
// intake function.
package config

import (
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"

	"github.com/Lllllllleong/scanrouter/internal/extract"
	"github.com/Lllllllleong/scanrouter/internal/models"
	"github.com/Lllllllleong/scanrouter/internal/ocr"
)

// AppName names the XDG directories.
const AppName = "scanrouter"

// Recognizers.
const (
	RecognizerOCRmyPDF  = "ocrmypdf"
	RecognizerTesseract = "tesseract"
)

// Ledger drivers.
const (
	LedgerSQLite    = "sqlite"
	LedgerFirestore = "firestore"
	LedgerNone      = "none"
)

// Default anchors.
const (
	DefaultCoresStartAnchor = "Corporate Registration System"
	DefaultCoresEndAnchor   = "This is to certify that,"
)

// DefaultEntityAnchors are tried in order until one yields a usable name.
// No anchor occurs inside another, so a fallback never re-reads the line an
// earlier anchor already rejected.
var DefaultEntityAnchors = []string{"Legal Entity Name", "Registered Name"}

// Config holds every tunable. Zero values are not meaningful; start from
// NewConfig.
type Config struct {
	Mode       string `yaml:"mode"`
	Workers    int    `yaml:"workers"`
	KeepSource bool   `yaml:"keep_source"`
	LogLevel   string `yaml:"log_level"`
	Summary    bool   `yaml:"summary"`
	ScratchDir string `yaml:"scratch_dir"`

	// OCR engine.
	Recognizer   string `yaml:"recognizer"`
	OCRBinary    string `yaml:"ocr_binary"`
	PythonBinary string `yaml:"python_binary"`
	Language     string `yaml:"language"`
	DPI          int    `yaml:"dpi"`

	// Field extraction. BadNames are exact extractions replaced by Sentinel.
	EntityAnchors    []string `yaml:"entity_anchors"`
	CoresStartAnchor string   `yaml:"cores_start_anchor"`
	CoresEndAnchor   string   `yaml:"cores_end_anchor"`
	BadNames         []string `yaml:"bad_names"`
	Sentinel         string   `yaml:"sentinel"`

	// Ledger and cloud.
	Ledger        string `yaml:"ledger"`
	LedgerDir     string `yaml:"ledger_dir"`
	ProjectID     string `yaml:"project_id"`
	Database      string `yaml:"firestore_database"`
	ArchiveBucket string `yaml:"archive_bucket"`
	OutputBucket  string `yaml:"output_bucket"`
	WorkflowName  string `yaml:"workflow_name"`
	Location      string `yaml:"location"`
}

// NewConfig returns a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Mode:             models.ModeEntity,
		Workers:          runtime.NumCPU(),
		LogLevel:         "debug",
		Summary:          true,
		Recognizer:       RecognizerOCRmyPDF,
		OCRBinary:        "ocrmypdf",
		PythonBinary:     "python3",
		DPI:              ocr.DefaultDPI,
		EntityAnchors:    append([]string(nil), DefaultEntityAnchors...),
		CoresStartAnchor: DefaultCoresStartAnchor,
		CoresEndAnchor:   DefaultCoresEndAnchor,
		BadNames:         append([]string(nil), extract.DefaultBadNames...),
		Sentinel:         extract.DefaultSentinel,
		Ledger:           LedgerSQLite,
		LedgerDir:        XDGDataDir(),
		Location:         "us-central1",
	}
}

// XDGDataDir is where the local ledger lives.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir is where the config file is looked up by default.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Level returns the configured slog level, defaulting to debug.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return l
}

// NamePolicy builds the entity-name cleaning policy.
func (c *Config) NamePolicy() extract.NamePolicy {
	return extract.NewNamePolicy(c.Sentinel, c.BadNames)
}

// OCROptions are the options for the main OCR pass.
func (c *Config) OCROptions() ocr.Options {
	opts := ocr.DefaultOptions()
	opts.DPI = c.DPI
	return opts
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Mode {
	case models.ModeAsset, models.ModeEntity:
	default:
		return ErrInvalidMode
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.DPI <= 0 {
		return ErrInvalidDPI
	}
	switch c.Recognizer {
	case RecognizerOCRmyPDF, RecognizerTesseract:
	default:
		return ErrUnknownRecognizer
	}
	if len(c.EntityAnchors) == 0 {
		return ErrNoEntityAnchors
	}
	for _, a := range c.EntityAnchors {
		if a == "" {
			return ErrEmptyAnchor
		}
	}
	if c.CoresStartAnchor == "" || c.CoresEndAnchor == "" {
		return ErrEmptyAnchor
	}
	switch c.Ledger {
	case LedgerSQLite, LedgerNone:
	case LedgerFirestore:
		if c.ProjectID == "" {
			return ErrMissingProject
		}
	default:
		return ErrUnknownLedger
	}
	return nil
}
