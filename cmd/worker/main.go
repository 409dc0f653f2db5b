// Command worker runs the task poller without serving the HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/coursebay/coursebay/backend/go-services/internal/app"
	"github.com/coursebay/coursebay/backend/go-services/internal/config"
	"github.com/coursebay/coursebay/backend/go-services/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to start: %v", err)
	}

	a.Poller.Start()
	logger.Infof("worker started (interval=%s, concurrency=%d)", cfg.Tasks.PollInterval, cfg.Tasks.Concurrency)
	<-ctx.Done()

	a.Close(context.Background())
}
