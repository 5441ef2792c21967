package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kodejudge/kodejudge/internal/config"
	"github.com/kodejudge/kodejudge/internal/queue"
	"github.com/kodejudge/kodejudge/internal/ratelimit"
	"github.com/kodejudge/kodejudge/internal/state"
)

// loadConfig reads configuration for admin commands that talk to the
// backing services directly instead of going through the API.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func connectRegistry(cmd *cobra.Command) (*queue.Registry, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	rdb, err := queue.ConnectRedis(&cfg.Redis)
	if err != nil {
		return nil, nil, err
	}

	reg := queue.NewRegistry(rdb, cfg.Redis.Prefix, 2*cfg.Worker.Heartbeat)
	return reg, func() { rdb.Close() }, nil
}

func newWorkersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Manage the worker registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered workers",
		RunE:  runWorkersList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Deregister all workers",
		RunE:  runWorkersCleanup,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup-stale",
		Short: "Drop workers whose heartbeat expired",
		RunE:  runWorkersCleanupStale,
	})

	return cmd
}

func runWorkersList(cmd *cobra.Command, args []string) error {
	reg, done, err := connectRegistry(cmd)
	if err != nil {
		return err
	}
	defer done()

	workers, err := reg.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list workers: %w", err)
	}

	if len(workers) == 0 {
		fmt.Println("No workers registered")
		return nil
	}

	fmt.Printf("%-20s  %-8s  %-8s  %-20s  %s\n", "NAME", "STATE", "PID", "HOSTNAME", "LAST SEEN")
	for _, info := range workers {
		fmt.Printf("%-20s  %-8s  %-8d  %-20s  %s\n",
			info.Name, info.State, info.PID, info.Hostname, info.LastSeen.Format(time.RFC3339))
	}
	return nil
}

func runWorkersCleanup(cmd *cobra.Command, args []string) error {
	reg, done, err := connectRegistry(cmd)
	if err != nil {
		return err
	}
	defer done()

	removed, err := reg.Cleanup(context.Background())
	if err != nil {
		return fmt.Errorf("failed to clean up workers: %w", err)
	}

	fmt.Printf("Removed %d workers\n", removed)
	return nil
}

func runWorkersCleanupStale(cmd *cobra.Command, args []string) error {
	reg, done, err := connectRegistry(cmd)
	if err != nil {
		return err
	}
	defer done()

	removed, err := reg.CleanupStale(context.Background())
	if err != nil {
		return fmt.Errorf("failed to clean up stale workers: %w", err)
	}

	fmt.Printf("Removed %d stale workers\n", removed)
	return nil
}

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the language catalog",
		Long:  `Seed the language catalog into the database. Existing languages are updated by name.`,
		RunE:  runSeed,
	}

	cmd.Flags().String("file", "", "Language catalog YAML (defaults to the built-in catalog)")

	return cmd
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := state.NewStore(cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer store.Close()

	entries := state.DefaultCatalog()
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		entries, err = state.LoadCatalog(file)
		if err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}
	}

	if err := state.SeedLanguages(context.Background(), store, entries); err != nil {
		return fmt.Errorf("failed to seed languages: %w", err)
	}

	fmt.Printf("Seeded %d languages\n", len(entries))
	return nil
}

func newRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage rate limiting",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <identity>",
		Short: "Clear rate limit counters for an identity",
		Long:  `Clear rate limit counters for an identity such as "ip:10.0.0.1" or "user:42".`,
		Args:  cobra.ExactArgs(1),
		RunE:  runRatelimitReset,
	})

	return cmd
}

func runRatelimitReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rdb, err := queue.ConnectRedis(&cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	if err := ratelimit.Reset(context.Background(), rdb, cfg.Redis.Prefix, args[0]); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}

	fmt.Printf("Rate limit counters cleared for %s\n", args[0])
	return nil
}
