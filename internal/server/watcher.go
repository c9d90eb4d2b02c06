package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ivlev/framescroll/internal/config"
)

// Applier takes a freshly loaded config. *engine.Player implements it.
type Applier interface {
	Apply(cfg *config.Config) error
}

// ConfigWatcher reloads a config file on change and hands it to an Applier.
type ConfigWatcher struct {
	path   string
	target Applier
	delay  time.Duration
	log    zerolog.Logger

	mu       sync.Mutex
	debounce *time.Timer
}

func NewConfigWatcher(path string, target Applier, log zerolog.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		path:   path,
		target: target,
		delay:  100 * time.Millisecond,
		log:    log.With().Str("component", "config-watcher").Str("path", path).Logger(),
	}
}

// Run watches the directory holding the config, so editors that replace the
// file by rename are caught too. It blocks until ctx ends.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.debounce != nil {
				w.debounce.Stop()
			}
			w.mu.Unlock()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.debounceReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *ConfigWatcher) debounceReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, w.reload)
}

func (w *ConfigWatcher) reload() {
	cfg, err := config.Load(w.path)
	if err != nil {
		w.log.Warn().Err(err).Msg("keeping previous config")
		return
	}
	if err := w.target.Apply(cfg); err != nil {
		w.log.Warn().Err(err).Msg("config rejected")
		return
	}
	w.log.Info().Msg("config reloaded")
}
