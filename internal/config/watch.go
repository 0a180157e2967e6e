package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"namegofer/internal/debounce"
)

// DefaultReloadDelay is how long the config file has to be quiet before it
// is reloaded
const DefaultReloadDelay = 250 * time.Millisecond

// Watcher reloads the config file when it changes and hands valid configs
// to the registered callbacks. Invalid files are logged and ignored.
type Watcher struct {
	path      string
	watcher   *fsnotify.Watcher
	debouncer *debounce.Debouncer
	logger    zerolog.Logger

	mu        sync.Mutex
	callbacks []func(*Config)
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewWatcher creates a Watcher for the config file at path
func NewWatcher(path string, delay time.Duration, logger zerolog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if delay <= 0 {
		delay = DefaultReloadDelay
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		path:    abs,
		watcher: fw,
		logger:  logger.With().Str("component", "config").Logger(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	w.debouncer = debounce.NewValidated(delay,
		func() (*Config, error) { return Load(w.path) },
		w.apply,
		func(err error) {
			w.logger.Error().Err(err).Str("path", w.path).Msg("config reload rejected, keeping current config")
		},
	)
	return w, nil
}

// OnChange registers fn to receive every successfully reloaded config
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start begins watching. The directory is watched rather than the file so
// that editors replacing the file by rename are noticed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().Str("path", w.path).Msg("watching config file")
	go w.run(ctx)
	return nil
}

// Stop stops watching, cancels a pending reload and releases the file
// watcher. It is safe to call after a failed Start and more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}

	w.closeOnce.Do(func() {
		w.debouncer.Stop()
		if err := w.watcher.Close(); err != nil {
			w.logger.Error().Err(err).Msg("error closing file watcher")
		}
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug().Str("op", event.Op.String()).Msg("config file changed")
			w.debouncer.Trigger()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("file watcher error")
		}
	}
}

func (w *Watcher) apply(cfg *Config) {
	w.mu.Lock()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info().Str("path", w.path).Msg("config reloaded")
	for _, fn := range callbacks {
		fn(cfg)
	}
}
