package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warden-sh/warden"
)

func runServe(configPath string) error {
	cfg, err := warden.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	w, err := warden.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("start warden: %w", err)
	}
	log := w.Logger()

	server := w.NewHTTPServer(cfg.Listen)
	log.Info("daemon started", "listen", cfg.Listen, "servers", len(w.Servers()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	w.Shutdown(shutdownCtx)
	return nil
}
