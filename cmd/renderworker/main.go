// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Command renderworker consumes the Valkey render queue filled by fields in
// queue mode and renders each job until interrupted.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"imagefield/internal/cache"
	"imagefield/internal/config"
	"imagefield/internal/field"
	"imagefield/internal/render"
	"imagefield/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	if !cfg.ValkeyEnabled {
		slog.Error("the render worker needs valkey; set VALKEY_ENABLED=true")
		os.Exit(1)
	}

	st, err := storage.New(cfg.StorageOptions())
	if err != nil {
		slog.Error("failed to initialize storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}

	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		os.Exit(1)
	}
	defer valkeyClient.Close()

	queue := cache.NewRenderQueue(valkeyClient, cache.DefaultQueueKey)
	reg, err := field.LoadFile(afero.NewOsFs(), cfg.FieldsFile, field.Deps{
		Storage: st,
		Queue:   queue,
		Dims:    cache.NewDimensionCache(valkeyClient, cache.DefaultDimensionTTL),
	})
	if err != nil {
		slog.Error("failed to load field definitions", "file", cfg.FieldsFile, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n, err := queue.Len(ctx); err == nil {
		slog.Info("render queue", "pending", n, "fields", len(reg.Refs()))
	}

	w := &render.Worker{
		Source:      queue,
		Resolve:     reg.ResolveJob,
		PollTimeout: 5 * time.Second,
	}
	if err := w.Run(ctx); err != nil {
		slog.Error("render worker failed", "error", err)
		os.Exit(1)
	}
}
