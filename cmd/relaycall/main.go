package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sebas/relaycall/internal/banner"
	"github.com/sebas/relaycall/internal/callengine/app"
	"github.com/sebas/relaycall/internal/callengine/config"
	"github.com/sebas/relaycall/internal/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	relayLabel := cfg.RelayURL
	if relayLabel == "" {
		relayLabel = "disabled"
	}
	banner.Print("Relaycall Engine", []banner.ConfigLine{
		{Label: "SIP", Value: cfg.BindAddr + ":" + strconv.Itoa(cfg.Port)},
		{Label: "Identity", Value: cfg.LocalAddress()},
		{Label: "Relay", Value: relayLabel},
		{Label: "API", Value: cfg.APIAddr},
		{Label: "Log level", Value: cfg.LogLevel},
	})

	engine, err := app.New(cfg)
	if err != nil {
		slog.Error("Failed to create call engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	run(engine, cfg)
}

func run(engine *app.App, cfg *config.Config) {
	slog.Info("Starting Relaycall Engine",
		"port", cfg.Port,
		"relay", cfg.RelayURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := engine.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Engine error", "error", err)
		}
	}()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig)
	cancel()

	time.Sleep(1 * time.Second)
}
