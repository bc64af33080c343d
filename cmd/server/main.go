// Command server starts the TravelGuard checkout risk-scoring API.
//
// Usage:
//
//	go run ./cmd/server [flags]
//
// Flags:
//
//	-port  HTTP port to listen on (overrides PORT)
//	-seed  Path to a JSON file of checkout events replayed on startup (default: data/seed.json)
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"travelguard/antifraud/internal/config"
	"travelguard/antifraud/internal/domain"
	"travelguard/antifraud/internal/logging"
	"travelguard/antifraud/internal/server"
)

func main() {
	port := flag.Int("port", 0, "HTTP port")
	seedFile := flag.String("seed", "data/seed.json", "path to seed events JSON file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Port = strconv.Itoa(*port)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to initialize server", "error", err)
		os.Exit(1)
	}

	if err := srv.SeedBlacklist(ctx); err != nil {
		logger.Error("failed to seed blacklist", "error", err)
		os.Exit(1)
	}

	if *seedFile != "" {
		if err := loadSeedData(ctx, srv, *seedFile, logger); err != nil {
			// Non-fatal: the API works fine without seed data.
			logger.Warn("seed data not loaded", "file", *seedFile, "reason", err.Error())
		}
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// loadSeedData reads a JSON array of checkout events and replays them in file
// order so the API starts with history for velocity and reporting.
func loadSeedData(ctx context.Context, srv *server.Server, filePath string, logger *slog.Logger) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	scored, limited, err := srv.Replay(ctx, events)
	if err != nil {
		return err
	}
	logger.Info("seed data loaded", "file", filePath, "scored", scored, "rate_limited", limited)
	return nil
}
