package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"amega-vpn-bot/config"
	"amega-vpn-bot/internal/db"
	"amega-vpn-bot/internal/logger"
	"amega-vpn-bot/internal/services"

	"go.uber.org/zap"
)

// loadKeys replaces the unused key pool with the contents of path.
func loadKeys(ctx context.Context, path string, out io.Writer) error {
	cfg, err := config.Load(config.RoleLoadKeys)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open keys file: %w", err)
	}
	defer f.Close()

	gdb, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
	}

	rep, err := services.NewKeyLoader(db.NewGormStore(gdb), log).ReplaceFromReader(ctx, f)
	if err != nil {
		log.Error("load keys", zap.String("file", path), zap.Error(err))
		return err
	}
	fmt.Fprintf(out, "removed %d unused keys, added %d, skipped %d duplicates and %d malformed lines\n",
		rep.Removed, rep.Added, rep.Duplicates, rep.Malformed)
	return nil
}
