package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/finparse/statements/constants"
	"github.com/finparse/statements/internal/batch"
	"github.com/finparse/statements/internal/common"
	"github.com/finparse/statements/internal/export"
	"github.com/finparse/statements/internal/llm/openai"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir     = flag.String("dir", "", "directory of PDF reports to process (required)")
		out     = flag.String("out", "", "output file path (defaults next to --dir)")
		format  = flag.String("format", "wide", "output format: wide, long, or xlsx")
		workers = flag.Int("workers", 0, "concurrent extractions (default from BATCH_WORKERS)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	switch *format {
	case "wide", "long", "xlsx":
	default:
		printError("Error: --format must be wide, long, or xlsx\n")
		os.Exit(1)
	}
	if *out == "" {
		ext := "csv"
		if *format == "xlsx" {
			ext = "xlsx"
		}
		*out = filepath.Join(filepath.Dir(strings.TrimRight(*dir, "/")), "statements-"+*format+"."+ext)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if cfg.LLM.APIKey == "" {
		printError("Error: OPENAI_API_KEY is required\n")
		os.Exit(1)
	}
	if *workers <= 0 {
		*workers = cfg.Batch.Workers
	}

	jobs, err := loadDirectory(*dir)
	if err != nil {
		logger.Error("failed to scan directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(jobs) == 0 {
		printError("Error: no PDF files found in %s\n", *dir)
		os.Exit(1)
	}
	logger.Info("scanned directory", "dir", *dir, "files", len(jobs))

	extractor := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	orch := batch.NewOrchestrator(extractor, logger,
		batch.WithWorkers(*workers),
		batch.WithJobTimeout(cfg.Batch.JobTimeout),
	)
	sum := orch.Run(context.Background(), jobs)
	os.Exit(finish(sum, *format, *out, logger))
}

// finish writes whatever succeeded and reports the process exit code. An auth
// failure mid-batch still gets its partial results written before the
// non-zero exit, so a revoked key never discards finished extractions.
func finish(sum batch.Summary, format, out string, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	for _, f := range sum.Failures {
		printError("failed: %s: %s\n", f.FileName, f.Message)
	}
	if len(sum.Results) == 0 {
		if sum.AuthFailure {
			printError("Error: extraction provider rejected the API key\n")
		} else {
			printError("Error: every file failed\n")
		}
		return 1
	}

	var data []byte
	var err error
	switch format {
	case "wide":
		data, err = export.WideCSV(sum.Results)
	case "long":
		data, err = export.LongCSV(sum.Results)
	case "xlsx":
		data, err = export.XLSX(sum.Results, logger)
	}
	if err != nil {
		logger.Error("export failed", "format", format, "error", err)
		return 1
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		logger.Error("failed to write output", "path", out, "error", err)
		return 1
	}

	logger.Info("batch complete",
		"succeeded", len(sum.Results),
		"failed", len(sum.Failures),
		"out", out,
	)
	if sum.AuthFailure {
		printError("Error: extraction provider rejected the API key; wrote %d partial result(s) to %s\n", len(sum.Results), out)
		return 1
	}
	if len(sum.Failures) > 0 {
		fmt.Printf("Done with %d failure(s); wrote %s\n", len(sum.Failures), out)
	} else {
		fmt.Printf("Done; wrote %s\n", out)
	}
	return 0
}

// loadDirectory reads every PDF directly under dir into a file job.
func loadDirectory(dir string) ([]*batch.FileJob, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var jobs []*batch.FileJob
	for _, e := range entries {
		if e.IsDir() || !constants.IsAllowedExt(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		jobs = append(jobs, batch.NewFileJob(e.Name(), data))
	}
	return jobs, nil
}
