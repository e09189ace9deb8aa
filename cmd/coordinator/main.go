// Command coordinator runs the per-archive coordination process (spec.md
// §4.9): it consumes translation_tasks messages and drives each task's
// archive through unpack, fan-out, fan-in, and repack.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lsilvatti/modxlate/internal/blobstore"
	"github.com/lsilvatti/modxlate/internal/bus"
	"github.com/lsilvatti/modxlate/internal/config"
	"github.com/lsilvatti/modxlate/internal/coordinator"
	"github.com/lsilvatti/modxlate/internal/registry"
	"github.com/lsilvatti/modxlate/internal/store"
	"github.com/lsilvatti/modxlate/internal/translator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "coordinator: load config: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "coordinator")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("coordinator exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	blobCfg := blobstore.Config{
		Region:          cfg.BlobStore.Region,
		Endpoint:        cfg.BlobStore.Endpoint,
		AccessKeyID:     cfg.BlobStore.AccessKeyID,
		SecretAccessKey: cfg.BlobStore.SecretAccessKey,
		UsePathStyle:    cfg.BlobStore.UsePathStyle,
	}
	blob, err := blobstore.NewS3Store(ctx, blobCfg)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer st.Close()

	b, err := bus.Dial(cfg.Bus.URL)
	if err != nil {
		return fmt.Errorf("dial bus: %w", err)
	}
	defer b.Close()
	if err := b.Declare(ctx, cfg.Bus.TaskQueue); err != nil {
		return fmt.Errorf("declare task queue: %w", err)
	}
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

	coord := coordinator.New(blob, st, b, reg, tr, log)
	if cfg.Coordinator.PollInterval > 0 {
		coord.PollInterval = cfg.Coordinator.PollInterval
	}
	if cfg.Coordinator.WorkDirRoot != "" {
		coord.WorkDirRoot = cfg.Coordinator.WorkDirRoot
	}

	log.Info("coordinator starting", "queue", cfg.Bus.TaskQueue, "prefetch", cfg.Bus.CoordinatorPrefetch)
	return b.Consume(ctx, cfg.Bus.TaskQueue, cfg.Bus.CoordinatorPrefetch, coord.Handle)
}
