// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Command rendervariations (re)builds the variations of every stored image
// of one or more fields.
//
//	rendervariations [--replace] [--ignore-missing|-i] [--workers N] app.model.field ...
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	flag "github.com/spf13/pflag"

	"imagefield/internal/batch"
	"imagefield/internal/cache"
	"imagefield/internal/config"
	"imagefield/internal/database"
	"imagefield/internal/field"
	"imagefield/internal/storage"
	"imagefield/internal/store"
)

func main() {
	replace := flag.Bool("replace", false, "re-render variations that already exist")
	var ignoreMissing bool
	flag.BoolVarP(&ignoreMissing, "ignore-missing", "i", false, "do not fail when a source file is missing")
	workers := flag.Int("workers", 0, "concurrent renders (default BATCH_WORKERS)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] app.model.field [app.model.field ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	// Reject malformed field paths before touching any service.
	for _, tok := range flag.Args() {
		if _, err := batch.ParseFieldPath(tok); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := storage.New(cfg.StorageOptions())
	if err != nil {
		slog.Error("failed to initialize storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}

	deps := field.Deps{Storage: st}
	var dims *cache.DimensionCache
	if cfg.ValkeyEnabled {
		valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
		if err != nil {
			slog.Error("failed to connect to valkey", "error", err)
			os.Exit(1)
		}
		defer valkeyClient.Close()
		dims = cache.NewDimensionCache(valkeyClient, cache.DefaultDimensionTTL)
		deps.Dims = dims
		deps.Queue = cache.NewRenderQueue(valkeyClient, cache.DefaultQueueKey)
	}

	reg, err := field.LoadFile(afero.NewOsFs(), cfg.FieldsFile, deps)
	if err != nil {
		slog.Error("failed to load field definitions", "file", cfg.FieldsFile, "error", err)
		os.Exit(1)
	}

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if *replace && dims != nil {
		dims.InvalidateAll(ctx)
	}

	driver := &batch.Driver{
		Fields:  reg,
		Records: store.NewRecordStore(db),
		Workers: cfg.BatchWorkers,
	}
	summaries, err := driver.RunAll(ctx, flag.Args(), batch.Request{
		Replace:       *replace,
		IgnoreMissing: ignoreMissing,
		Workers:       *workers,
	})
	for _, s := range summaries {
		printSummary(s)
	}
	if err != nil {
		var cmdErr *batch.CommandError
		if errors.As(err, &cmdErr) || errors.Is(err, batch.ErrInvalidFieldPath) {
			fmt.Fprintln(os.Stderr, err)
		} else {
			slog.Error("batch render failed", "error", err)
		}
		os.Exit(1)
	}
}

func printSummary(s batch.Summary) {
	fmt.Printf("%s: %d record(s) in %s, %d rendered, %d skipped, %d failed",
		s.Field, s.Processed, s.Duration.Round(time.Millisecond), s.Rendered, s.Skipped, s.Failed)
	if s.Deferred > 0 {
		fmt.Printf(", %d deferred", s.Deferred)
	}
	if len(s.Missing) > 0 {
		fmt.Printf(", %d missing", len(s.Missing))
	}
	fmt.Println()
}
