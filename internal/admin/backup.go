package admin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"amega-vpn-bot/internal/metrics"
	"amega-vpn-bot/internal/services"

	"go.uber.org/zap"
)

// BackupRetention is how long dumps are kept in the backup directory.
const BackupRetention = 31 * 24 * time.Hour

type DumpFunc func(ctx context.Context, dsn, file string) error

// PgDump writes a custom-format dump of dsn to file.
func PgDump(ctx context.Context, dsn, file string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	out, err := exec.CommandContext(ctx, "pg_dump", dsn, "-Fc", "-f", file).CombinedOutput()
	if err != nil {
		return fmt.Errorf("pg_dump: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

type Backuper struct {
	dsn   string
	dir   string
	dump  DumpFunc
	alert services.Alerter
	now   func() time.Time
	log   *zap.Logger
}

func NewBackuper(dsn, dir string, dump DumpFunc, alert services.Alerter, log *zap.Logger) *Backuper {
	if dump == nil {
		dump = PgDump
	}
	return &Backuper{dsn: dsn, dir: dir, dump: dump, alert: alert, now: time.Now, log: log.Named("backup")}
}

// Backup creates <dir>/<prefix>_<timestamp>.dump and returns its path.
func (b *Backuper) Backup(ctx context.Context, prefix string) (string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	file := filepath.Join(b.dir, prefix+"_"+b.now().Format("20060102_150405")+".dump")
	err := b.dump(ctx, b.dsn, file)
	metrics.IncBackup(err == nil)
	if err != nil {
		_ = os.Remove(file)
		return "", err
	}
	b.log.Info("database backup created", zap.String("file", file))
	return file, nil
}

// CleanOld removes dumps older than retention.
func (b *Backuper) CleanOld(retention time.Duration) (int, error) {
	files, err := filepath.Glob(filepath.Join(b.dir, "*.dump"))
	if err != nil {
		return 0, err
	}
	cutoff := b.now().Add(-retention)
	removed := 0
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(f); err != nil {
				b.log.Warn("old backup not removed", zap.String("file", f), zap.Error(err))
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// Auto is the scheduled backup: dump, prune and alert on failure.
func (b *Backuper) Auto(ctx context.Context) {
	file, err := b.Backup(ctx, "autobackup")
	if err != nil {
		b.log.Error("auto backup failed", zap.Error(err))
		b.alert.Alert("Автоматический бэкап не удался: " + err.Error())
		return
	}
	removed, err := b.CleanOld(BackupRetention)
	if err != nil {
		b.log.Warn("backup cleanup failed", zap.Error(err))
	}
	b.log.Info("auto backup done", zap.String("file", file), zap.Int("pruned", removed))
}
