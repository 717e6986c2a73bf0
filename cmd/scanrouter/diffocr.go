package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/scanrouter/internal/pdf"
	"github.com/Lllllllleong/scanrouter/internal/services"
)

// NewDiffOCRCmd creates the diffocr command.
func NewDiffOCRCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diffocr <input.pdf> <output.pdf>",
		Short: "OCR a grayscale copy and lay its text over the original",
		Long: `Diffocr renders a grayscale copy of the input, recognizes that copy, and
splices the recognized text layer onto the original page images. The output
keeps the original look with text from the conditioned scan.

The output path is only written once every step succeeds.`,
		Args: cobra.ExactArgs(2),
		RunE: runDiffOCRCmd,
	}

	cmd.Flags().Int("dpi", 0, "Rendering resolution (default from config)")
	cmd.Flags().String("recognizer", "", "Recognizer for the grayscale pass: ocrmypdf or tesseract")
	return cmd
}

func runDiffOCRCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("dpi") {
		if cfg.DPI, err = cmd.Flags().GetInt("dpi"); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("recognizer") {
		if cfg.Recognizer, err = cmd.Flags().GetString("recognizer"); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	input, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	output, err := filepath.Abs(args[1])
	if err != nil {
		return err
	}
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("input not found: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Level()}))
	merger := services.NewMerger(cfg, logger)

	start := time.Now()
	out, err := merger.Merge(cmd.Context(), input, pdf.NewGrayscaler().Preprocess, output)
	fmt.Fprintln(cmd.OutOrStdout(), "Elapsed:", time.Since(start))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Written:", out)
	return nil
}
