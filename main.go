package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ecosort/wastelens/internal/config"
	"github.com/ecosort/wastelens/internal/detect"
	"github.com/ecosort/wastelens/internal/logger"
	"github.com/ecosort/wastelens/internal/storage"
	"github.com/ecosort/wastelens/internal/web"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	// Optional .env for local development; real config comes from YAML
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (short)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if url := os.Getenv("WASTELENS_DETECTION_URL"); url != "" {
		cfg.Detection.ServiceURL = url
	}

	log, err := logger.New(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting WasteLens gateway",
		"version", version,
		"build_time", buildTime,
		"git_commit", gitCommit,
	)

	detector := detect.NewClient(detect.ClientConfig{
		ServiceURL:          cfg.Detection.ServiceURL,
		Timeout:             cfg.Detection.Timeout,
		ConfidenceThreshold: cfg.Detection.ConfidenceThreshold,
	}, log)

	// Probe the model service at startup. Not fatal: the service may come up
	// later, and /api/health keeps reporting its readiness.
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := detector.Ready(probeCtx); err != nil {
		log.Warn("Detection service not ready", "url", cfg.Detection.ServiceURL, "error", err)
	} else {
		log.Info("Detection service ready", "url", cfg.Detection.ServiceURL)
	}
	probeCancel()

	uploads, err := storage.NewUploadStore(storage.UploadConfig{
		Dir:               cfg.Uploads.Dir,
		AllowedExtensions: cfg.Uploads.AllowedExtensions,
	}, log)
	if err != nil {
		log.Error("Failed to initialize upload store", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(cfg, detector, uploads, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		log.Error("Failed to start web server", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Shutdown complete")
}
