// options_watcher.go: Hot install of plugin directories added to the options file
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// SearchPathInstaller installs and resolves the bundles found under new
// search paths. InternalPlatform implements it.
type SearchPathInstaller interface {
	InstallSearchPaths(paths []string) ([]*Bundle, error)
}

// OptionsWatcherConfig tunes the underlying argus watcher.
type OptionsWatcherConfig struct {
	PollInterval time.Duration
	CacheTTL     time.Duration
	Logger       any
}

// OptionsWatcher watches a platform options file. When the file lists
// plugin directories that were not known before, their bundles are
// installed. Installed bundles are never replaced or removed by a reload.
type OptionsWatcher struct {
	path      string
	installer SearchPathInstaller
	logger    Logger
	watcher   *argus.Watcher

	mu      sync.Mutex
	known   map[string]struct{}
	running atomic.Bool
}

// NewOptionsWatcher creates a watcher. initial holds the options the
// platform was initialized with; its search paths count as known.
func NewOptionsWatcher(path string, installer SearchPathInstaller, initial PlatformOptions, config OptionsWatcherConfig) *OptionsWatcher {
	logger := NewLogger(config.Logger)
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.CacheTTL <= 0 || config.CacheTTL > config.PollInterval {
		config.CacheTTL = config.PollInterval / 2
	}

	w := &OptionsWatcher{
		path:      path,
		installer: installer,
		logger:    logger,
		known:     make(map[string]struct{}),
	}
	for _, p := range initial.SearchPaths() {
		w.known[p] = struct{}{}
	}

	w.watcher = argus.New(argus.Config{
		PollInterval:         config.PollInterval,
		CacheTTL:             config.CacheTTL,
		MaxWatchedFiles:      1,
		Audit:                argus.AuditConfig{Enabled: false},
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, filepath string) {
			logger.Error("Options file watching error", "error", err, "file", filepath)
		},
	})
	return w
}

// Start begins watching.
func (w *OptionsWatcher) Start() error {
	if !w.running.CompareAndSwap(false, true) {
		return NewConfigError(w.path, "options watcher already running", nil)
	}
	if err := w.watcher.Watch(w.path, w.handleChange); err != nil {
		w.running.Store(false)
		return NewConfigError(w.path, "failed to watch options file", err)
	}
	if err := w.watcher.Start(); err != nil {
		w.running.Store(false)
		return NewConfigError(w.path, "failed to start options watcher", err)
	}
	w.logger.Info("Options watcher started", "path", w.path)
	return nil
}

// Stop ends watching. Stopping a stopped watcher is a no-op.
func (w *OptionsWatcher) Stop() error {
	if !w.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := w.watcher.Stop(); err != nil {
		return NewConfigError(w.path, "failed to stop options watcher", err)
	}
	return nil
}

func (w *OptionsWatcher) handleChange(event argus.ChangeEvent) {
	defer withStackRecover(w.logger)()

	if event.IsDelete {
		w.logger.Warn("Options file was deleted, keeping current bundles", "path", event.Path)
		return
	}
	if _, err := w.Reload(); err != nil {
		w.logger.Error("Failed to reload options", "path", event.Path, "error", err)
	}
}

// Reload reads the options file and installs bundles from search paths
// not seen before. It returns the newly installed bundles.
func (w *OptionsWatcher) Reload() ([]*Bundle, error) {
	opts, err := LoadPlatformOptions(w.path)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	var fresh []string
	for _, p := range opts.SearchPaths() {
		if _, ok := w.known[p]; ok {
			continue
		}
		w.known[p] = struct{}{}
		fresh = append(fresh, p)
	}
	w.mu.Unlock()

	if len(fresh) == 0 {
		return nil, nil
	}
	w.logger.Info("New plugin directories listed", "paths", fresh)
	return w.installer.InstallSearchPaths(fresh)
}
