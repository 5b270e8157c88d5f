package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"caseboard/internal/blob"
	"caseboard/internal/config"
	"caseboard/internal/export"
	"caseboard/internal/infra/persistence"
)

func exportCmd() *cobra.Command {
	var formats []string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the current board snapshot and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), cfg, formats)
		},
	}
	cmd.Flags().StringSliceVar(&formats, "format", []string{"json", "csv"}, "export formats (json, csv)")
	return cmd
}

func runExport(ctx context.Context, cfg config.Config, formats []string) error {
	driver, opts := cfg.StoreOptions()
	store, err := persistence.Open(ctx, driver, opts)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	artifacts, err := blob.OpenDriver(ctx, blob.Driver(cfg.Blob.Driver), cfg.Blob.FSRoot)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}

	worker := export.NewWorker(store, artifacts, nil)
	worker.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = worker.Stop(stopCtx)
	}()

	input := export.Input{RequestedBy: "cli"}
	for _, f := range formats {
		input.Formats = append(input.Formats, export.Format(f))
	}
	record, err := worker.Enqueue(ctx, input)
	if err != nil {
		return err
	}

	for {
		current, ok := worker.Get(record.ID)
		if !ok {
			return fmt.Errorf("export job %s vanished", record.ID)
		}
		switch current.Status {
		case export.StatusSucceeded:
			for _, artifact := range current.Artifacts {
				fmt.Printf("%s\t%d bytes\t%s\n", artifact.Key, artifact.SizeBytes, artifact.ContentType)
			}
			return nil
		case export.StatusFailed:
			return fmt.Errorf("export failed: %s", current.Error)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
