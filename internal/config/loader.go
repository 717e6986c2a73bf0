package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/scanrouter/internal/gcp"
)

// DefaultConfigFile is looked up in XDGConfigDir when no path is given.
const DefaultConfigFile = "config.yaml"

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(XDGConfigDir(), DefaultConfigFile)
}

// Load builds a Config from defaults, then the YAML file at path, then the
// environment. An empty path uses DefaultPath and tolerates its absence.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.LoadFile(path); err != nil {
		if !errors.Is(err, ErrConfigNotFound) || explicit {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto c.
func (c *Config) ApplyEnv() error {
	if v := gcp.GetEnv("SCANROUTER_WORKERS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCANROUTER_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := gcp.GetEnv("SCANROUTER_DPI", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCANROUTER_DPI: %w", err)
		}
		c.DPI = n
	}
	c.Mode = gcp.GetEnv("SCANROUTER_MODE", c.Mode)
	c.LogLevel = gcp.GetEnv("SCANROUTER_LOG_LEVEL", c.LogLevel)
	c.ScratchDir = gcp.GetEnv("SCANROUTER_SCRATCH_DIR", c.ScratchDir)
	c.Recognizer = gcp.GetEnv("SCANROUTER_RECOGNIZER", c.Recognizer)
	c.OCRBinary = gcp.GetEnv("SCANROUTER_OCR_BINARY", c.OCRBinary)
	c.PythonBinary = gcp.GetEnv("SCANROUTER_PYTHON", c.PythonBinary)
	c.Ledger = gcp.GetEnv("SCANROUTER_LEDGER", c.Ledger)
	c.LedgerDir = gcp.GetEnv("SCANROUTER_LEDGER_DIR", c.LedgerDir)
	c.ProjectID = gcp.GetEnv("PROJECT_ID", c.ProjectID)
	c.Database = gcp.GetEnv("FIRESTORE_DATABASE", c.Database)
	c.ArchiveBucket = gcp.GetEnv("ARCHIVE_BUCKET", c.ArchiveBucket)
	c.OutputBucket = gcp.GetEnv("OUTPUT_BUCKET", c.OutputBucket)
	c.WorkflowName = gcp.GetEnv("WORKFLOW_NAME", c.WorkflowName)
	c.Location = gcp.GetEnv("LOCATION", c.Location)
	return nil
}
