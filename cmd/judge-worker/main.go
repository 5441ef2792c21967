// judge-worker executes queued submissions inside isolate sandboxes.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kodejudge/kodejudge/internal/config"
	"github.com/kodejudge/kodejudge/internal/queue"
	"github.com/kodejudge/kodejudge/internal/sandbox"
	"github.com/kodejudge/kodejudge/internal/state"
	"github.com/kodejudge/kodejudge/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	name := flag.String("name", "", "Worker name (overrides config)")
	boxID := flag.Int("box-id", -1, "Isolate box ID (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *name != "" {
		cfg.Worker.Name = *name
	}
	if *boxID >= 0 {
		cfg.Worker.BoxID = *boxID
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

	slot := sandbox.AllocateSlot(cfg.Worker.BoxID, cfg.Worker.Name, cfg.Sandbox.BoxRoot)
	processor := worker.NewProcessor(store, &cfg.Sandbox, slot)
	runner := worker.NewRunner(cfg, q, registry, processor)

	ctx, cancel := context.WithCancel(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Shutting down worker...")
		cancel()
	}()

	log.Printf("Starting worker %s with box ID %d", cfg.Worker.Name, slot)
	if err := runner.Run(ctx); err != nil {
		log.Fatalf("Worker error: %v", err)
	}

	log.Println("Worker stopped")
}
