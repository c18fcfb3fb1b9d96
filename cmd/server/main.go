package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/quantatirsk/filesearch"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := filesearch.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			f.Close()
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
		f.Close()
	}

	if v := os.Getenv("FILESEARCH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FILESEARCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}

	apiKey := os.Getenv("FILESEARCH_API_KEY")
	corsOrigins := os.Getenv("FILESEARCH_CORS_ORIGINS")

	engine, err := filesearch.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	h := newHandler(engine, cfg)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /search", h.handleSearch)
	mux.HandleFunc("POST /search/advanced", h.handleSearchAdvanced)
	mux.HandleFunc("POST /search/metadata", h.handleSearchMetadata)
	mux.HandleFunc("POST /search/combined", h.handleSearchCombined)
	mux.HandleFunc("POST /index", h.handleIndex)
	mux.HandleFunc("POST /index/stream", h.handleIndexStream)
	mux.HandleFunc("GET /api/indexing/progress", h.handleCurrentProgress)
	mux.HandleFunc("GET /index/progress/{session_id}", h.handleSessionProgress)
	mux.HandleFunc("POST /file/content", h.handleFileContent)
	mux.HandleFunc("DELETE /file", h.handleFileDelete)
	mux.HandleFunc("PUT /file/path", h.handleFileRename)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /supported-formats", h.handleSupportedFormats)
	mux.HandleFunc("GET /suggest", h.handleSuggest)
	mux.HandleFunc("DELETE /index", h.handleClearIndex)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses (indexing can run long)
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
