// Command squeeze compresses images to a target file size.
//
// Usage:
//
//	squeeze [flags] <input>...
//
// Examples:
//
//	squeeze --target-size 100KB photo.jpg
//	squeeze --target-size 50KiB --format webp --out-dir out/ *.png
//	squeeze --quality 0.7 --max-width 1920 photo.jpg
//	SQUEEZE_WORKERS=6 squeeze --target-size 200KB shots/*.jpg
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/shamspias/squeeze"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, inputs, err := loadConfig(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(inputs) == 0 {
		fmt.Fprintln(stderr, "Usage: squeeze [flags] <input>...")
		fmt.Fprintln(stderr)
		fs := newFlagSet()
		fs.SetOutput(stderr)
		fs.PrintDefaults()
		return 2
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	if cfg.OutDir != "" {
		if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
			log.Error("create output directory", zap.String("dir", cfg.OutDir), zap.Error(err))
			return 1
		}
	}

	items := make([]squeeze.BatchItem, 0, len(inputs))
	for _, in := range inputs {
		opts, err := cfg.options(in, log)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		out := cfg.outputPath(in, squeeze.EffectiveFormat(opts.Format, opts.TargetSize))
		items = append(items, squeeze.BatchItem{Src: in, Dst: out, Opts: &opts})
	}

	log.Debug("starting batch", zap.Int("files", len(items)), zap.Int("workers", cfg.Workers))
	results := squeeze.CompressBatch(ctx, items, squeeze.BatchOptions{
		Workers: cfg.Workers,
		OnItem: func(completed, total int) {
			log.Debug("progress", zap.Int("completed", completed), zap.Int("total", total))
		},
	})

	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", r.Item.Src, r.Err)
			continue
		}
		fmt.Fprintf(stdout, "%s → %s | %s\n", r.Item.Src, r.Item.Dst, r.Result)
		if !r.Result.MetTarget() {
			log.Warn("target not reached",
				zap.String("input", r.Item.Src),
				zap.Int("size", r.Result.Size()),
				zap.Int("target", r.Result.TargetBytes))
		}
	}

	summary := squeeze.Summarize(results)
	if len(results) > 1 {
		fmt.Fprintln(stdout, summary)
	}
	if summary.Failed > 0 {
		return 1
	}
	return 0
}
