// judge-server is the code execution judge API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kodejudge/kodejudge/internal/api"
	"github.com/kodejudge/kodejudge/internal/config"
	"github.com/kodejudge/kodejudge/internal/queue"
	"github.com/kodejudge/kodejudge/internal/state"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	port := flag.Int("port", 8080, "Server port")
	flag.Parse()

	// Load configuration (uses defaults if no config file found)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Override with flags
	if *port != 8080 {
		cfg.Server.Port = *port
	}

	store, err := state.NewStore(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer store.Close()
	log.Printf("Connected to PostgreSQL: %s", cfg.Database.DBName)

	rdb, err := queue.ConnectRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()
	log.Printf("Connected to Redis: %s", cfg.Redis.Addr)

	q := queue.NewQueue(rdb, cfg.Redis.Prefix)
	registry := queue.NewRegistry(rdb, cfg.Redis.Prefix, 2*cfg.Worker.Heartbeat)

	server := api.NewServer(cfg, store, q, registry, rdb)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting judge server on port %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
