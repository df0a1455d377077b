// Command webpdserver runs the test execution engine as a standalone HTTP
// service for one station.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "github.com/webpdtool/engine/internal/app"
	"github.com/webpdtool/engine/internal/config"
	"github.com/webpdtool/engine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logr := logger.New(logger.LoggingConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})

	application, err := app.New(cfg, logr)
	if err != nil {
		log.Fatalf("initialise application: %v", err)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		log.Fatalf("start application: %v", err)
	}
	logr.WithField("station_id", cfg.StationID).
		WithField("addr", application.HTTP.Addr()).
		Info("webpdtool engine started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
