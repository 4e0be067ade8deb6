package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/app"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/config"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg := config.LoadConfig()
	app.SetupLogging(cfg.LogLevel)
	log.Info("Starting StoryCanvas API...")

	// kill (no param) sends SIGTERM, Ctrl+C sends SIGINT
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Serve(ctx, cfg); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
