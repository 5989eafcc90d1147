package config

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"tickwork/pkg/logx"
)

const debounce = 200 * time.Millisecond

// Watch re-reads the config whenever the file changes and hands each valid
// new config to apply. The parent directory is watched, not the file itself,
// because editors typically replace the file (rename-over) rather than write
// it in place. Invalid intermediate contents are logged and skipped; the last
// committed config stays active.
func Watch(ctx context.Context, path string, log logx.Logger, apply func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()

		var lastHash uint64
		if b, err := os.ReadFile(path); err == nil {
			lastHash = hashBytes(b)
		}

		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				// Editors emit bursts of events per save; coalesce them.
				pending = time.After(debounce)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", logx.Err(err))
			case <-pending:
				pending = nil

				b, err := os.ReadFile(path)
				if err != nil {
					log.Warn("config re-read failed", logx.Err(err))
					continue
				}
				h := hashBytes(b)
				if h == lastHash {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Warn("config reload rejected", logx.Err(err))
					continue
				}
				lastHash = h
				log.Info("config reloaded", logx.Int("jobs", len(cfg.Jobs)))
				apply(cfg)
			}
		}
	}()
	return nil
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
