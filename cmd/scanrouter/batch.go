package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/scanrouter/internal/batch"
	"github.com/Lllllllleong/scanrouter/internal/config"
	"github.com/Lllllllleong/scanrouter/internal/gcp"
	"github.com/Lllllllleong/scanrouter/internal/models"
	"github.com/Lllllllleong/scanrouter/internal/report"
	"github.com/Lllllllleong/scanrouter/internal/services"
)

// NewBatchCmd creates the batch command.
func NewBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "OCR and route every PDF in a directory",
		Long: `Batch processes every file directly inside the source directory on a pool
of workers running at reduced priority. A file that fails is logged to
{dst}/logs.txt and left in place; the others carry on.

Output layout:
  asset mode:   {dst}/{asset_id}.pdf
  entity mode:  {dst}/{entity}/{n}/{entity}.pdf, Cores.pdf, Submission.pdf

Source and destination are prompted for when not given.`,
		Args: cobra.NoArgs,
		RunE: runBatchCmd,
	}

	cmd.Flags().StringP("src", "s", "", "Source directory with input PDFs")
	cmd.Flags().StringP("dst", "d", "", "Output directory")
	cmd.Flags().StringP("mode", "m", "", "Routing mode: asset or entity (default from config)")
	cmd.Flags().IntP("workers", "w", 0, "Number of workers (default: number of CPUs)")
	cmd.Flags().Bool("keep-source", false, "Keep source files after entity routing")
	cmd.Flags().Bool("no-summary", false, "Do not write {dst}/summary.md")
	return cmd
}

func runBatchCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyBatchFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	src, dst, err := batchDirs(cmd)
	if err != nil {
		return err
	}

	logger, logFile, err := openLog(dst, cfg.Level())
	if err != nil {
		return err
	}
	defer logFile.Close()

	start := time.Now()
	summary, err := runBatch(cmd.Context(), cfg, src, dst, logger)
	fmt.Fprintln(cmd.OutOrStdout(), "Elapsed:", time.Since(start))
	if err != nil {
		return err
	}
	if failed := len(summary.Failed()); failed > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d files failed; see %s\n", failed, len(summary.Results), filepath.Join(dst, LogFile))
	}
	return nil
}

func applyBatchFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		mode, err := flags.GetString("mode")
		if err != nil {
			return err
		}
		cfg.Mode = mode
	}
	if flags.Changed("workers") {
		n, err := flags.GetInt("workers")
		if err != nil {
			return err
		}
		cfg.Workers = n
	}
	if flags.Changed("keep-source") {
		keep, err := flags.GetBool("keep-source")
		if err != nil {
			return err
		}
		cfg.KeepSource = keep
	}
	if flags.Changed("no-summary") {
		noSummary, err := flags.GetBool("no-summary")
		if err != nil {
			return err
		}
		cfg.Summary = !noSummary
	}
	return nil
}

func batchDirs(cmd *cobra.Command) (string, string, error) {
	in := bufio.NewReader(cmd.InOrStdin())
	dirs := make([]string, 2)
	for i, f := range []struct{ flag, label string }{
		{"src", "a source directory with input PDFs"},
		{"dst", "the output directory"},
	} {
		v, err := cmd.Flags().GetString(f.flag)
		if err != nil {
			return "", "", err
		}
		if v == "" {
			if v, err = promptPath(in, cmd.OutOrStdout(), f.label); err != nil {
				return "", "", err
			}
		}
		if dirs[i], err = filepath.Abs(v); err != nil {
			return "", "", err
		}
	}
	return dirs[0], dirs[1], nil
}

func runBatch(ctx context.Context, cfg *config.Config, src, dst string, logger *slog.Logger) (models.RunSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	l, err := services.OpenLedger(ctx, cfg)
	if err != nil {
		return models.RunSummary{}, err
	}
	defer l.Close()

	var archive services.Archiver
	if cfg.ArchiveBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return models.RunSummary{}, fmt.Errorf("failed to create Storage client: %w", err)
		}
		defer client.Close()
		archive = gcp.NewBucket(client, cfg.ArchiveBucket, logger)
	}

	router := services.NewRouterFromConfig(cfg, l, archive, logger)
	orch := batch.New(router,
		batch.WithWorkers(cfg.Workers),
		batch.WithLogger(logger),
		batch.WithMode(cfg.Mode),
	)
	summary, err := orch.Run(ctx, src, dst)
	if err != nil {
		logger.Error("Batch aborted.", "error", err)
		return summary, err
	}

	if cfg.Summary {
		path, err := report.WriteFile(summary)
		if err != nil {
			logger.Warn("Failed to write summary.", "error", err)
		} else {
			logger.Info("Summary written.", "path", path)
		}
	}
	return summary, nil
}
