// Command worker runs a file-translation worker process (spec.md §4.10):
// it consumes file_translation_tasks messages, rewrites one config file
// per message, and reports terminal status into the completion registry.
// The registry is Redis-backed (internal/registry.RedisRegistry), so any
// number of worker processes can run independently of, and be scaled
// separately from, the cmd/coordinator process polling for their results.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lsilvatti/modxlate/internal/bus"
	"github.com/lsilvatti/modxlate/internal/config"
	"github.com/lsilvatti/modxlate/internal/registry"
	"github.com/lsilvatti/modxlate/internal/translator"
	"github.com/lsilvatti/modxlate/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: load config: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "worker")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	b, err := bus.Dial(cfg.Bus.URL)
	if err != nil {
		return fmt.Errorf("dial bus: %w", err)
	}
	defer b.Close()
	if err := b.Declare(ctx, cfg.Bus.FileTaskQueue); err != nil {
		return fmt.Errorf("declare file task queue: %w", err)
	}

	redisClient := registry.DialRedis(cfg.Registry.Addr, cfg.Registry.Password, cfg.Registry.DB)
	defer redisClient.Close()
	reg := registry.NewRedisRegistry(redisClient, cfg.Registry.TTL)

	tr := translator.NewClient(translator.Config{
		Provider:    cfg.Translator.Provider,
		APIKey:      cfg.Translator.APIKey,
		Model:       cfg.Translator.Model,
		BaseURL:     cfg.Translator.BaseURL,
		Temperature: cfg.Translator.Temperature,
	})

	w := worker.New(tr, reg, log)

	log.Info("worker starting", "queue", cfg.Bus.FileTaskQueue, "prefetch", cfg.Bus.WorkerPrefetch)
	return b.Consume(ctx, cfg.Bus.FileTaskQueue, cfg.Bus.WorkerPrefetch, w.Handle)
}
