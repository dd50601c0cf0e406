package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"amega-vpn-bot/internal/db"
	"amega-vpn-bot/internal/metrics"
	"amega-vpn-bot/internal/vpnkey"

	"go.uber.org/zap"
)

// LoadReport counts the outcome of one batch of key lines.
type LoadReport struct {
	Added      int
	Duplicates int
	Malformed  int
	Removed    int64
}

type KeyLoader struct {
	store db.Store
	log   *zap.Logger
}

func NewKeyLoader(store db.Store, log *zap.Logger) *KeyLoader {
	return &KeyLoader{store: store, log: log.Named("keyloader")}
}

// AddBatch inserts every valid non-empty line of text as an unused key.
// Malformed lines are logged and skipped.
func (l *KeyLoader) AddBatch(ctx context.Context, text string) (LoadReport, error) {
	keys, rep := l.parse(strings.Split(text, "\n"))
	added, err := l.store.Keys().Add(ctx, keys)
	if err != nil {
		return rep, fmt.Errorf("add keys: %w", err)
	}
	rep.Added = added
	rep.Duplicates += len(keys) - added
	metrics.ObserveKeysLoaded("admin", rep.Added, rep.Duplicates, rep.Malformed)
	l.log.Info("keys added", zap.Int("added", rep.Added), zap.Int("duplicates", rep.Duplicates), zap.Int("malformed", rep.Malformed))
	return rep, nil
}

// ReplaceFromReader clears the unused pool and loads r in one transaction.
// Keys already bound to users are kept.
func (l *KeyLoader) ReplaceFromReader(ctx context.Context, r io.Reader) (LoadReport, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return LoadReport{}, fmt.Errorf("read keys: %w", err)
	}
	keys, rep := l.parse(lines)

	err := l.store.Transaction(ctx, func(tx db.Store) error {
		removed, err := tx.Keys().DeleteUnused(ctx)
		if err != nil {
			return fmt.Errorf("delete unused keys: %w", err)
		}
		added, err := tx.Keys().Add(ctx, keys)
		if err != nil {
			return fmt.Errorf("add keys: %w", err)
		}
		rep.Removed = removed
		rep.Added = added
		rep.Duplicates += len(keys) - added
		return nil
	})
	if err != nil {
		return LoadReport{}, err
	}
	metrics.ObserveKeysLoaded("file", rep.Added, rep.Duplicates, rep.Malformed)
	l.log.Info("key pool replaced",
		zap.Int64("removed", rep.Removed),
		zap.Int("added", rep.Added),
		zap.Int("duplicates", rep.Duplicates),
		zap.Int("malformed", rep.Malformed),
	)
	return rep, nil
}

func (l *KeyLoader) parse(lines []string) ([]db.VPNKey, LoadReport) {
	var rep LoadReport
	seen := make(map[string]struct{}, len(lines))
	keys := make([]db.VPNKey, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !vpnkey.Validate(line) {
			rep.Malformed++
			l.log.Warn("skipping malformed key line", zap.Int("line", i+1), zap.Error(ErrMalformedInput))
			continue
		}
		if _, ok := seen[line]; ok {
			rep.Duplicates++
			continue
		}
		seen[line] = struct{}{}
		parsed := vpnkey.Parse(line)
		keys = append(keys, db.VPNKey{
			Key:           line,
			XUIIdentifier: parsed.Identifier,
			XUIID:         parsed.ID,
		})
	}
	return keys, rep
}
