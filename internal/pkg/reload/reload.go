// Package reload rebuilds the trusted table when its source changes and
// publishes each new generation atomically.
package reload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/endorses/trustpeer/internal/pkg/constants"
	"github.com/endorses/trustpeer/internal/pkg/loader"
	"github.com/endorses/trustpeer/internal/pkg/logger"
	"github.com/endorses/trustpeer/internal/pkg/metrics"
	"github.com/endorses/trustpeer/internal/pkg/trusted"
	"github.com/fsnotify/fsnotify"
)

// Config wires a Reloader.
type Config struct {
	Store   *trusted.Store
	Source  loader.Source
	Options loader.Options
	Metrics *metrics.Collector

	// WatchPath, when set, is a file whose changes trigger a reload.
	WatchPath string

	// Debounce is the quiet period after the last file event.
	Debounce time.Duration
}

// Reloader serializes reloads from file events and explicit triggers.
type Reloader struct {
	cfg     Config
	trigger chan struct{}
	mu      sync.Mutex // one reload at a time
}

// New validates cfg and returns a Reloader.
func New(cfg Config) (*Reloader, error) {
	if cfg.Store == nil || cfg.Source == nil {
		return nil, errors.New("reload: store and source are required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = constants.ReloadDebounce
	}
	return &Reloader{
		cfg:     cfg,
		trigger: make(chan struct{}, constants.ReloadTriggerBuffer),
	}, nil
}

// ReloadNow builds and publishes a new generation. On failure the current
// generation stays published.
func (r *Reloader) ReloadNow(ctx context.Context) (loader.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report, err := loader.Reload(ctx, r.cfg.Store, r.cfg.Source, r.cfg.Options)
	entries := 0
	if err == nil {
		entries = report.Inserted
	}
	r.cfg.Metrics.ObserveReload(entries, err)
	if err != nil {
		logger.Error("Trusted table reload failed, keeping current generation",
			"source", r.cfg.Source.Describe(),
			"error", err)
		return report, err
	}
	if report.RowErrors != nil {
		logger.Warn("Trusted table reloaded with skipped rows",
			"failed", report.Failed,
			"error", report.RowErrors)
	}
	return report, nil
}

// Trigger requests a reload. It never blocks; a pending request absorbs
// later ones.
func (r *Reloader) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run processes triggers and file events until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var watchErrs <-chan error

	if r.cfg.WatchPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		defer watcher.Close()

		// Watch the directory: editors and config management replace the
		// file by rename, which drops a watch on the file itself.
		dir := filepath.Dir(r.cfg.WatchPath)
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %q: %w", dir, err)
		}
		events, watchErrs = watcher.Events, watcher.Errors
		logger.Info("Watching trusted table file", "path", r.cfg.WatchPath)
	}

	target := filepath.Clean(r.cfg.WatchPath)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-r.trigger:
			_, _ = r.ReloadNow(ctx)

		case event, ok := <-events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("Trusted table file changed", "path", event.Name, "op", event.Op.String())
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(r.cfg.Debounce, r.Trigger)

		case err, ok := <-watchErrs:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error", "error", err)
		}
	}
}
