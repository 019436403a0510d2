package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/reims-io/docflow/internal/config"
	"github.com/reims-io/docflow/internal/stubserver"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	srv := stubserver.New(cfg.Dev.ProcessingDelay)
	defer srv.Close()

	slog.Info("starting dev document service",
		"addr", cfg.Dev.ListenAddr,
		"processing_delay", cfg.Dev.ProcessingDelay,
	)

	if err := http.ListenAndServe(cfg.Dev.ListenAddr, srv.Router()); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
