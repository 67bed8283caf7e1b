package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/familiar-ai/familiar/internal/logging"
)

// Watcher reloads configuration when a config file changes and hands the
// fresh Config to a callback. The engine keeps running; only tunables
// like the log level are worth hot-reloading.
type Watcher struct {
	watcher *fsnotify.Watcher
	onLoad  func(*Config)
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// NewWatcher watches the global config directory (and FAMILIAR_CONFIG's
// directory when set). onLoad runs with the reloaded config after each
// relevant change.
func NewWatcher(onLoad func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch directories, not files: editors replace files on save, which
	// breaks per-file watches.
	dirs := []string{GetPaths().Config}
	if path := configEnvFile(); path != "" {
		dirs = append(dirs, filepath.Dir(path))
	}
	watching := 0
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			logging.Debug().Err(err).Str("dir", dir).Msg("Config directory not watchable")
			continue
		}
		watching++
	}
	if watching == 0 {
		w.Close()
		return nil, nil
	}

	return &Watcher{
		watcher: w,
		onLoad:  onLoad,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching. Safe to call once; later calls are no-ops.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

// Stop ends watching and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		w.watcher.Close()
		return
	}
	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !isConfigFile(ev.Name) {
				continue
			}
			cfg, err := Load()
			if err != nil {
				logging.Warn().Err(err).Msg("Config reload failed")
				continue
			}
			logging.Info().Str("file", ev.Name).Msg("Config reloaded")
			w.onLoad(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("Config watcher error")
		}
	}
}

func isConfigFile(name string) bool {
	base := filepath.Base(name)
	if base == "familiar.json" || base == "familiar.jsonc" {
		return true
	}
	if path := configEnvFile(); path != "" {
		return filepath.Clean(name) == filepath.Clean(path)
	}
	return false
}

func configEnvFile() string {
	return strings.TrimSpace(os.Getenv("FAMILIAR_CONFIG"))
}
