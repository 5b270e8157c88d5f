package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"caseboard/internal/blob"
	"caseboard/internal/config"
	"caseboard/internal/eventbus"
	"caseboard/internal/export"
	"caseboard/internal/infra/persistence"
	"caseboard/internal/mutation"
	"caseboard/internal/overlay"
	"caseboard/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the board server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	driver, opts := cfg.StoreOptions()
	store, err := persistence.Open(ctx, driver, opts)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	bus := eventbus.New()
	ov := overlay.New(bus)
	defer ov.Close()

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		relay, err := eventbus.NewRelay(ctx, bus, client, cfg.Redis.Channel)
		if err != nil {
			return fmt.Errorf("connect relay: %w", err)
		}
		defer func() { _ = relay.Close() }()
	}

	service := mutation.NewService(store, bus,
		mutation.WithHistoryLimit(cfg.History.Limit),
		mutation.WithMetrics(mutation.NewMetrics(nil)),
	)

	artifacts, err := blob.OpenDriver(ctx, blob.Driver(cfg.Blob.Driver), cfg.Blob.FSRoot)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	exports := export.NewWorker(store, artifacts, nil)
	exports.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = exports.Stop(stopCtx)
	}()

	srv := server.New(store, service, ov, bus, exports)
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("caseboard listening on %s (storage: %s)\n", cfg.Server.Addr, driver)
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
