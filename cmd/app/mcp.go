package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/starford/raido/internal/catalog"
	"github.com/starford/raido/internal/listing"
	"github.com/starford/raido/internal/mcpserver"
	"github.com/starford/raido/internal/storage"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:   "mcp",
		Usage:  "Serve collections and drafts to an MCP client over stdio",
		Action: runMCP,
	}
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Stdout carries the protocol.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	slog.SetDefault(logger)

	store, err := storage.Open(ctx, cfg.Drafts.StorageOptions())
	if err != nil {
		return fmt.Errorf("init draft storage: %w", err)
	}
	defer store.Close()

	cat, err := catalog.Open(cfg.Catalog.Path, logger)
	if err != nil {
		return fmt.Errorf("init catalog: %w", err)
	}

	list := listing.NewService(cat, listing.WithCacheTTL(cfg.Cache.TTL), listing.WithLogger(logger))
	return mcpserver.New(list, store).ServeStdio()
}
