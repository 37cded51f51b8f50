package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/wrenware/resume-fetch/internal/adapter/httpfetch"
	"github.com/wrenware/resume-fetch/internal/adapter/sqlite"
	"github.com/wrenware/resume-fetch/internal/config"
	"github.com/wrenware/resume-fetch/internal/domain"
	"github.com/wrenware/resume-fetch/internal/engine"
	"github.com/wrenware/resume-fetch/internal/logger"
)

const version = "0.1.0"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	sourceURL := flag.String("url", "", "URL to download; empty resumes a persisted download")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting resume-fetch",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Open state store
	statePath := cfg.State.Path
	if statePath == "" {
		statePath = filepath.Join(cfg.Download.Dir, "state.db")
	}

	store, err := sqlite.Open(statePath)
	if err != nil {
		log.Fatal("failed to open state store", zap.Error(err), zap.String("path", statePath))
	}
	defer store.Close()

	if err := store.Ping(); err != nil {
		log.Fatal("state store not reachable", zap.Error(err), zap.String("path", statePath))
	}

	// Create HTTP transport
	transport, err := httpfetch.New(httpfetch.Config{
		SpoolDir:   cfg.Download.GetSpoolDir(),
		BufferSize: cfg.HTTP.GetBufferSize(),
		UserAgent:  cfg.HTTP.UserAgent,
	}, log)
	if err != nil {
		log.Fatal("failed to create transport", zap.Error(err))
	}
	defer transport.Close()

	if n, err := transport.CleanSpool(cfg.Download.GetSpoolMaxAge()); err != nil {
		log.Warn("spool cleanup failed", zap.Error(err))
	} else if n > 0 {
		log.Info("removed stale spool files", zap.Int("count", n))
	}

	// Create engine; a persisted resume record is loaded here
	eng, err := engine.New(transport, store, log, engine.Options{
		DownloadDir:     cfg.Download.Dir,
		PublishInterval: cfg.Download.GetPublishInterval(),
	})
	if err != nil {
		log.Fatal("failed to create engine", zap.Error(err))
	}

	updates := eng.Subscribe()

	if err := eng.Start(*sourceURL); err != nil {
		if err == domain.ErrNothingToStart {
			fmt.Fprintln(os.Stderr, "Nothing to resume; pass -url")
			os.Exit(1)
		}
		log.Error("start failed", zap.Error(err))
		os.Exit(1)
	}

	// Wait for completion, failure, or interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigChan:
			log.Info("shutdown signal received, pausing download...")
			if err := eng.Close(); err != nil {
				log.Error("failed to pause cleanly", zap.Error(err))
			}
			status := eng.Status()
			log.Info("stopped", zap.String("status", status.Message))
			return

		case status, ok := <-updates:
			if !ok {
				return
			}
			log.Info("progress", zap.String("status", status.Message))

			switch status.State {
			case domain.JobStateCompleted:
				log.Info("download completed")
				eng.Close()
				return
			case domain.JobStateFailed:
				log.Error("download failed", zap.String("error", status.Error))
				eng.Close()
				os.Exit(1)
			case domain.JobStateInterrupted:
				if status.Resumable {
					log.Info("download interrupted; run again to resume")
				}
				eng.Close()
				return
			}
		}
	}
}
