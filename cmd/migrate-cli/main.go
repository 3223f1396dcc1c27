package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"mediamigrate/internal/adapters/authapi"
	"mediamigrate/internal/adapters/checkpoint"
	"mediamigrate/internal/adapters/s3store"
	"mediamigrate/internal/adapters/sourceapi"
	"mediamigrate/internal/adapters/transfer"
	"mediamigrate/internal/config"
	"mediamigrate/internal/service"
	"mediamigrate/internal/utils/logger"
)

func main() {
	envPath := flag.String("env", ".env", "Path to the .env file")
	inputFile := flag.String("input", "", "Newline-separated item ID list (overrides INPUT_FILE)")
	flag.Parse()

	cfg, err := config.LoadConfig(*envPath)
	if err != nil {
		fmt.Printf("error initializing config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogMode); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *inputFile != "" {
		cfg.InputFile = *inputFile
	}

	ids, err := readIDList(cfg.InputFile)
	if err != nil {
		logger.Error("failed to read input id list", zap.Error(err))
		os.Exit(1)
	}
	if len(ids) == 0 {
		logger.Error("input id list is empty", zap.String("path", cfg.InputFile))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Let the current batch settle and checkpoint before exiting.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warn("received signal, finishing current batch", zap.String("signal", sig.String()))
		cancel()
	}()

	tokens := authapi.NewManager(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, nil)

	// Obtaining no credential at all is fatal before any work starts.
	if _, err := tokens.Token(ctx); err != nil {
		logger.Error("cannot obtain initial credential", zap.Error(err))
		os.Exit(1)
	}

	store, err := s3store.New(ctx, cfg.Bucket, cfg.Region)
	if err != nil {
		logger.Error("failed to initialize destination store", zap.Error(err))
		os.Exit(1)
	}

	resolver := sourceapi.NewResolver(cfg.APIBaseURL, tokens, nil,
		sourceapi.WithMaxAttempts(cfg.ResolveAttempts),
	)
	transferer := transfer.NewTransferer(store, "video/mp4", nil)
	checkpoints := checkpoint.NewFileStore(cfg.CheckpointFile)
	errorSink := checkpoint.NewFileErrorSink(cfg.ErrorFile)

	scheduler := service.NewScheduler(resolver, transferer, checkpoints, errorSink, service.Options{
		KeyPrefix:   cfg.KeyPrefix,
		BatchSize:   cfg.BatchSize,
		RetryBudget: cfg.TransferRetries,
	})

	summary, runErr := scheduler.Run(ctx, ids)

	fmt.Println("\n=== Migration Summary ===")
	fmt.Printf("Run ID:     %s\n", summary.RunID)
	fmt.Printf("Total:      %d\n", summary.Total)
	fmt.Printf("Skipped:    %d (already completed)\n", summary.Skipped)
	fmt.Printf("Succeeded:  %d\n", summary.Succeeded)
	fmt.Printf("Failed:     %d\n", summary.Failed)
	fmt.Printf("Bytes:      %d\n", summary.Bytes)
	fmt.Printf("Elapsed:    %s\n", summary.Elapsed)
	if summary.ItemsPerMinute != nil {
		fmt.Printf("Rate:       %.1f items/min\n", *summary.ItemsPerMinute)
	}
	if summary.Failed > 0 {
		fmt.Printf("Errors written to %s\n", cfg.ErrorFile)
	}

	// Per-item failures do not fail the run; only run-level faults do.
	if runErr != nil {
		logger.Error("run aborted", zap.Error(runErr))
		os.Exit(1)
	}
}

func readIDList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open id list %s: %w", path, err)
	}
	defer file.Close()

	var ids []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan id list %s: %w", path, err)
	}
	return ids, nil
}
