// The archiver consumes terminal bid events from NATS and persists them to
// the audit table. It runs separately from the server so the write path never
// depends on archival.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/goodbids/auction-server/configs"
	"github.com/goodbids/auction-server/internal/archive"
	"github.com/goodbids/auction-server/internal/database"
)

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal("Error connecting to database: ", err)
	}
	defer db.Close()

	consumer, err := archive.NewConsumer(cfg.NATS.URL, db)
	if err != nil {
		log.Fatal("Error connecting to NATS: ", err)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Archiver started")
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Archiver stopped: ", err)
	}
}
