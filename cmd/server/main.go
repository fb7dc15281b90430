package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goali/auctions/internal/api"
	"github.com/goali/auctions/internal/auction"
	"github.com/goali/auctions/internal/auth"
	"github.com/goali/auctions/internal/broadcast"
	"github.com/goali/auctions/internal/config"
	"github.com/goali/auctions/internal/db"
	"github.com/goali/auctions/internal/memstore"
	"github.com/goali/auctions/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// store is everything the server needs from persistence
type store interface {
	api.AuctionStore
	auction.Store
	auth.UserStore
}

func openStore(ctx context.Context, cfg *config.Config) (store, func()) {
	if cfg.StoreBackend == "memory" {
		log.Println("Using in-memory store; data is lost on restart")
		return memstore.New(), func() {}
	}

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return database, func() { database.Close(ctx) }
}

func openRelay(cfg *config.Config) broadcast.Relay {
	switch cfg.Relay {
	case "redis":
		relay, err := broadcast.NewRedisRelay(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		log.Printf("Broadcasting through Redis at %s", cfg.RedisAddr)
		return relay
	case "nats":
		relay, err := broadcast.NewNATSRelay(cfg.NatsURL)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		log.Printf("Broadcasting through NATS at %s", cfg.NatsURL)
		return relay
	case "", "none":
		return nil
	default:
		log.Fatalf("Unknown BROADCAST_RELAY %q", cfg.Relay)
		return nil
	}
}

// Main entry point: sets up storage, broadcast, bidding and HTTP server
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore := openStore(ctx, cfg)
	defer closeStore()

	// Broadcast channel: local hub, optionally bridged across instances
	relay := openRelay(cfg)
	if relay != nil {
		defer relay.Close()
	}
	broadcaster := broadcast.NewBroadcaster(broadcast.NewHub(broadcast.DefaultBuffer), relay)
	go broadcaster.Run(ctx)

	bidding := auction.NewService(st, broadcaster, cfg.BidMaxAttempts)

	scheduler := auction.NewScheduler(st, broadcaster)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start lifecycle scheduler: %v", err)
	}
	defer scheduler.Stop()

	authService := auth.NewAuthService(st, cfg.JWTSecret, cfg.TokenTTL)
	handler := api.NewHandler(st, bidding, authService, scheduler, broadcaster, cfg.EndingSoon)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/ws", ws.NewHandler(broadcaster, st, cfg.EndingSoon))
	handler.Mount(r)

	server := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server stopped")
}
