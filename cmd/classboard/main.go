package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classboard/internal/app"
	"classboard/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := os.Getenv("CLASSBOARD_CONFIG_FILE")
	cfg := config.LoadConfigWithPrecedence(configPath)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	appErrCh := make(chan error, 1)
	go func() {
		if err := application.Start(); err != nil {
			appErrCh <- err
		}
	}()

	select {
	case err := <-appErrCh:
		return fmt.Errorf("application error: %w", err)
	case sig := <-signalCh:
		log.Printf("received signal %v, shutting down gracefully", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := application.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	}
}
