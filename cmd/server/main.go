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

	"github.com/goodbids/auction-server/configs"
	"github.com/goodbids/auction-server/internal/archive"
	"github.com/goodbids/auction-server/internal/auth"
	"github.com/goodbids/auction-server/internal/bidding"
	"github.com/goodbids/auction-server/internal/database"
	httphandlers "github.com/goodbids/auction-server/internal/handlers/http"
	wshandlers "github.com/goodbids/auction-server/internal/handlers/websocket"
	"github.com/goodbids/auction-server/internal/payments"
	"github.com/goodbids/auction-server/internal/realtime"
)

func main() {
	// Load configurations
	cfg, err := configs.LoadConfig()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	port := cfg.Server.Port
	if port == "" {
		port = "8080" // Default port if not specified
	}

	// Setup logger
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "debug"
	}
	logLevel, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Error("Invalid log level: ", err)
	}
	log.SetLevel(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.New(cfg)
	if err != nil {
		log.Fatal("Error connecting to database: ", err)
	}
	defer db.Close()

	// Realtime notifier over Redis pub/sub
	notifier, err := realtime.NewRedisNotifier(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Error connecting to Redis: ", err)
	}
	defer notifier.Close()

	// Audit publisher over NATS
	audit, err := archive.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatal("Error connecting to NATS: ", err)
	}
	defer audit.Close()

	// Payment provider
	provider := payments.NewPayPalClient(cfg.PayPal.BaseURL, cfg.PayPal.ClientID, cfg.PayPal.ClientSecret)

	// Core workflow and the periodic sweep
	workflow := bidding.NewWorkflow(db, provider, notifier, audit, cfg.Locks.TTL)
	sweeper := bidding.NewSweeper(db, notifier, audit, cfg.Locks.SweepInterval)
	sweeper.StartPeriodicCheck(ctx)

	// Auth
	verifier := auth.NewVerifier(cfg.Auth.SecretKey)
	chat := auth.NewChatTokenIssuer(cfg.Chat.APIKey, cfg.Chat.APISecret, cfg.Chat.TokenTTL)

	// Websocket hub, fed by the Redis subscriber
	hub := wshandlers.NewHub(db, verifier, cfg.Features.AllowCrossOrigin)
	go func() {
		if err := notifier.Subscribe(ctx, hub.Deliver); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Realtime subscriber stopped: ", err)
		}
	}()

	// Routes
	handler := httphandlers.NewHandler(db, workflow, verifier, chat)
	router := handler.Routes()
	router.HandleFunc("/ws/auction", hub.HandleAuctionWebSocket)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Infof("Server started on port %s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown: ", err)
	}
}
