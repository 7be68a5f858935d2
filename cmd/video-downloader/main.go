package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"video-downloader/internal/config"
	"video-downloader/internal/files"
	"video-downloader/internal/session"
	"video-downloader/internal/settings"
	"video-downloader/internal/web"
	"video-downloader/internal/ytdlp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup structured logging
	setupLogging(cfg.LogLevel)

	slog.Info("Starting Video Downloader", "version", "1.0.0")

	// Ensure the downloads directory exists
	if err := os.MkdirAll(cfg.DownloadsPath, 0o755); err != nil {
		return fmt.Errorf("failed to create downloads directory: %w", err)
	}

	// Initialize yt-dlp client
	client := ytdlp.New(cfg.YtdlpPath)

	// Probe the binary (warn but don't exit, so the API can still report health)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if version, err := client.Version(ctx); err != nil {
		slog.Warn("yt-dlp probe failed - continuing anyway", "path", cfg.YtdlpPath, "error", err)
		slog.Warn("Please ensure yt-dlp is installed and on PATH for full functionality")
	} else {
		slog.Info("yt-dlp detected", "version", version)
	}
	cancel()

	// Initialize settings store
	store, err := settings.NewStore(cfg.SettingsPath)
	if err != nil {
		return fmt.Errorf("failed to initialize settings store: %w", err)
	}

	// Initialize file registry and session tracker
	registry := files.NewRegistry(cfg.DownloadsPath)
	tracker := session.NewTracker(client, cfg.DownloadsPath, cfg.MaxDownloadDuration)

	// Initialize web server
	server := web.NewServer(cfg, tracker, registry, store, client)

	return runServer(server)
}

func runServer(server *web.Server) error {
	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// setupLogging configures structured logging based on the log level
func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
}
