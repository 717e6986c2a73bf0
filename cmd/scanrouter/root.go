package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/scanrouter/internal/config"
)

// LogFile is written inside the destination directory.
const LogFile = "logs.txt"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scanrouter",
		Short: "OCR and route scanned PDFs",
		Long: `scanrouter runs OCR over scanned PDF documents and files the results.

In asset mode each document is renamed after the asset ID found in its text.
In entity mode each document is filed under a folder named after the legal
entity it describes, and split into Cores and Submission parts when the
registration anchors are present.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: $XDG_CONFIG_HOME/scanrouter/config.yaml)")

	cmd.AddCommand(NewBatchCmd())
	cmd.AddCommand(NewDiffOCRCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// promptPath asks for a directory on w and reads the answer from r.
func promptPath(r *bufio.Reader, w io.Writer, label string) (string, error) {
	fmt.Fprintf(w, "Enter a path for %s: ", label)
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read %s: %w", label, err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("no path given for %s", label)
	}
	return filepath.Abs(line)
}

// openLog creates dir and returns a JSON logger writing to dir/logs.txt.
func openLog(dir string, level slog.Level) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("failed to create destination: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})), f, nil
}
