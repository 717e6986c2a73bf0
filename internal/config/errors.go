package config

import "errors"

// Validation errors returned by Config.Validate.
var (
	ErrInvalidMode       = errors.New("invalid mode: must be asset or entity")
	ErrInvalidWorkers    = errors.New("invalid workers: must be positive")
	ErrInvalidDPI        = errors.New("invalid dpi: must be positive")
	ErrUnknownRecognizer = errors.New("unknown recognizer: must be ocrmypdf or tesseract")
	ErrNoEntityAnchors   = errors.New("no entity anchors configured")
	ErrEmptyAnchor       = errors.New("anchors must not be empty")
	ErrUnknownLedger     = errors.New("unknown ledger: must be sqlite, firestore or none")
	ErrMissingProject    = errors.New("firestore ledger requires project_id")
)

// ErrConfigNotFound is returned when an explicitly named config file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")
