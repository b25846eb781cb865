package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/agrigenius/internal/app"
	"github.com/ent0n29/agrigenius/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config error", "err", err)
	}
	logger := cfg.NewLogger(os.Stderr)

	built, err := app.Build(cfg, logger, "")
	if err != nil {
		logger.Fatal("startup failed", "err", err)
	}
	logger.Info("speech provider", "provider", built.Provider.TTS, "detail", built.Provider.TTSDetail, "cache_capacity", built.Cache.Capacity())
	logger.Info("chat provider", "provider", built.Provider.Chat, "detail", built.Provider.ChatDetail)
	if built.Chat.Available() && !built.Chat.HasCredential() {
		logger.Warn("chat credential missing; /api/gemini will answer 500 until it is set", "env", cfg.ChatCredentialEnv)
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
