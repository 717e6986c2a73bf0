package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Lllllllleong/scanrouter/internal/config"
)

func TestNewBatchCmd(t *testing.T) {
	t.Parallel()

	cmd := NewBatchCmd()
	for _, name := range []string{"src", "dst", "mode", "workers", "keep-source", "no-summary"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
	if err := cmd.Args(cmd, []string{"extra"}); err == nil {
		t.Error("expected positional arguments to be rejected")
	}
}

func TestApplyBatchFlags(t *testing.T) {
	t.Parallel()

	t.Run("unset flags keep config", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		want := *cfg
		if err := applyBatchFlags(NewBatchCmd(), cfg); err != nil {
			t.Fatal(err)
		}
		if cfg.Mode != want.Mode || cfg.Workers != want.Workers || cfg.Summary != want.Summary {
			t.Errorf("config changed: %+v", cfg)
		}
	})

	t.Run("set flags override", func(t *testing.T) {
		t.Parallel()
		cmd := NewBatchCmd()
		for name, value := range map[string]string{
			"mode":        "asset",
			"workers":     "3",
			"keep-source": "true",
			"no-summary":  "true",
		} {
			if err := cmd.Flags().Set(name, value); err != nil {
				t.Fatal(err)
			}
		}
		cfg := config.NewConfig()
		if err := applyBatchFlags(cmd, cfg); err != nil {
			t.Fatal(err)
		}
		if cfg.Mode != "asset" || cfg.Workers != 3 || !cfg.KeepSource || cfg.Summary {
			t.Errorf("flags not applied: %+v", cfg)
		}
	})
}

func TestBatchDirs(t *testing.T) {
	t.Parallel()

	t.Run("prompts for both", func(t *testing.T) {
		t.Parallel()
		cmd := NewBatchCmd()
		var out bytes.Buffer
		cmd.SetIn(strings.NewReader("/scans/in\n/scans/out\n"))
		cmd.SetOut(&out)

		src, dst, err := batchDirs(cmd)
		if err != nil {
			t.Fatal(err)
		}
		if src != "/scans/in" || dst != "/scans/out" {
			t.Errorf("got %q %q", src, dst)
		}
		if strings.Count(out.String(), "Enter a path for ") != 2 {
			t.Errorf("expected two prompts, got %q", out.String())
		}
	})

	t.Run("flag skips prompt", func(t *testing.T) {
		t.Parallel()
		cmd := NewBatchCmd()
		var out bytes.Buffer
		cmd.SetIn(strings.NewReader("/scans/out\n"))
		cmd.SetOut(&out)
		if err := cmd.Flags().Set("src", "/scans/in"); err != nil {
			t.Fatal(err)
		}

		src, dst, err := batchDirs(cmd)
		if err != nil {
			t.Fatal(err)
		}
		if src != "/scans/in" || dst != "/scans/out" {
			t.Errorf("got %q %q", src, dst)
		}
		if strings.Contains(out.String(), "source") {
			t.Errorf("source should not be prompted: %q", out.String())
		}
	})

	t.Run("missing answer", func(t *testing.T) {
		t.Parallel()
		cmd := NewBatchCmd()
		cmd.SetIn(strings.NewReader(""))
		cmd.SetOut(&bytes.Buffer{})
		if _, _, err := batchDirs(cmd); err == nil {
			t.Error("expected error")
		}
	})
}
