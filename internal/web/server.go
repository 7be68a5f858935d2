// Package web provides the HTTP server and routing
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"video-downloader/internal/config"
	"video-downloader/internal/files"
	"video-downloader/internal/session"
	"video-downloader/internal/settings"
	"video-downloader/internal/web/handlers"
	"video-downloader/internal/ytdlp"
)

// Server represents the HTTP server
type Server struct {
	server   *http.Server
	handlers *handlers.Handlers
	logger   *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, tracker *session.Tracker, registry *files.Registry, store *settings.Store, client ytdlp.Client) *Server {
	handlers := handlers.NewHandlers(tracker, registry, store, client)

	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("GET /api/health", handlers.Health)
	mux.HandleFunc("POST /api/info", handlers.GetVideoInfo)
	mux.HandleFunc("POST /api/download", handlers.StartDownload)
	mux.HandleFunc("GET /api/status", handlers.GetStatus)
	mux.HandleFunc("POST /api/reset", handlers.ResetSession)
	mux.HandleFunc("POST /api/cancel", handlers.CancelDownload)
	mux.HandleFunc("GET /api/files", handlers.ListFiles)
	mux.HandleFunc("GET /api/settings", handlers.GetSettings)
	mux.HandleFunc("PUT /api/settings", handlers.UpdateSettings)

	// Completed artifacts
	mux.HandleFunc("GET /files/{filename}", handlers.ServeFile)

	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// Streaming large media files rules out a short write timeout
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		server:   server,
		handlers: handlers,
		logger:   slog.Default(),
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	localIP := getLocalIP()
	port := strings.TrimPrefix(s.server.Addr, ":")

	s.logger.Info("Starting HTTP server",
		"addr", s.server.Addr,
		"local_ip", localIP,
		"port", port,
		"url", fmt.Sprintf("http://%s:%s", localIP, port))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// getLocalIP returns the local network IP address for the startup log
func getLocalIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "localhost"
	}

	for _, iface := range interfaces {
		// Skip loopback and down interfaces
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}

			if ip == nil || ip.IsLoopback() {
				continue
			}

			if ip.To4() != nil && ip.IsPrivate() {
				return ip.String()
			}
		}
	}

	return "localhost"
}
