// platform.go: Process-wide runtime context
//
// InternalPlatform owns one ServiceRegistry, one CodeCache and one
// BundleLoader. A single mutex serializes Initialize, Launch, Shutdown and
// every accessor, so activator hooks (which run inside Launch) must reach
// the runtime through their BundleContext and never through the platform.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// PlatformConfig carries the host-provided collaborators of a platform.
type PlatformConfig struct {
	Logger  any
	Metrics MetricsCollector
	Health  *HealthReporter
}

// InternalPlatform is the runtime lifecycle:
//
//	uninitialized -> Initialize -> initialized -> Launch -> running -> Shutdown -> uninitialized
type InternalPlatform struct {
	mu sync.Mutex

	baseLogger Logger
	metrics    MetricsCollector
	health     *HealthReporter

	initialized bool
	running     bool
	options     PlatformOptions
	sessionID   string
	logger      Logger
	services    *ServiceRegistry
	cache       *CodeCache
	loader      *BundleLoader
}

var (
	platformOnce     sync.Once
	platformInstance *InternalPlatform
)

// Platform returns the process-wide platform, created on first use with
// default collaborators.
func Platform() *InternalPlatform {
	platformOnce.Do(func() {
		platformInstance = NewInternalPlatform(PlatformConfig{})
	})
	return platformInstance
}

// NewInternalPlatform creates an uninitialized platform. Hosts that want
// more than one runtime, or tests, use it instead of Platform.
func NewInternalPlatform(config PlatformConfig) *InternalPlatform {
	if config.Metrics == nil {
		config.Metrics = NewDefaultMetricsCollector()
	}
	if config.Health == nil {
		config.Health = NewHealthReporter()
	}
	return &InternalPlatform{
		baseLogger: NewLogger(config.Logger),
		metrics:    config.Metrics,
		health:     config.Health,
	}
}

// SetLogger replaces the logger used from the next Initialize on.
func (p *InternalPlatform) SetLogger(logger any) {
	p.mu.Lock()
	p.baseLogger = NewLogger(logger)
	p.mu.Unlock()
}

// Initialize prepares the code cache, installs every bundle found under the
// search paths (plus options.PluginDirs) and resolves them. Per-bundle
// failures are logged and skipped. Only an unusable cache directory or an
// unreadable search path fails Initialize.
func (p *InternalPlatform) Initialize(searchPaths []string, options PlatformOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return NewPlatformError("platform already initialized", nil)
	}

	options.PluginDirs = append(append([]string(nil), options.PluginDirs...), searchPaths...)
	if err := expandPlatformOptions(&options, DefaultEnvConfigOptions()); err != nil {
		return err
	}
	options.ApplyDefaults()
	if err := options.Validate(); err != nil {
		return err
	}

	sessionID := uuid.NewString()
	logger := p.baseLogger.With("session", sessionID)

	cacheDir, err := usableCacheDir(options.CacheDir, logger)
	if err != nil {
		return err
	}
	options.CacheDir = cacheDir
	cache := NewCodeCache(cacheDir)
	if options.CleanCache {
		if err := cache.Clear(); err != nil {
			return err
		}
		logger.Info("Code cache cleared", "path", cacheDir)
	}

	services := NewServiceRegistry(logger)
	instanceDir := options.InstanceDir
	loader := NewBundleLoader(LoaderConfig{
		Logger:            logger,
		Services:          services,
		CodeCache:         cache,
		Metrics:           p.metrics,
		Health:            p.health,
		ArchiveExtensions: options.ArchiveExtensions,
		LuaCallTimeout:    options.LuaTimeout(),
		StatePath: func(symbolicName string, create bool) (string, bool) {
			return statePath(instanceDir, symbolicName, create)
		},
	})

	for _, path := range options.SearchPaths() {
		if _, err := loader.LoadBundles(path); err != nil {
			loader.UninstallAll()
			return err
		}
	}
	loader.EnsureSystemBundle()
	loader.ResolveAllBundles()

	for _, b := range loader.GetBundles() {
		logger.Info("Bundle state",
			"bundle", b.SymbolicName(),
			"state", b.State().String())
	}

	p.options = options
	p.sessionID = sessionID
	p.logger = logger
	p.services = services
	p.cache = cache
	p.loader = loader
	p.initialized = true
	logger.Info("Platform initialized",
		"bundles", len(loader.GetBundles()),
		"cache", cacheDir)
	return nil
}

// usableCacheDir returns preferred if files can be created there, otherwise
// a fresh temp directory.
func usableCacheDir(preferred string, logger Logger) (string, error) {
	if preferred != "" && writable(preferred) {
		return preferred, nil
	}
	fallback, err := os.MkdirTemp("", "gobundles-cache-")
	if err != nil || !writable(fallback) {
		return "", NewCodeCacheError(preferred, "no writable cache directory", err)
	}
	logger.Warn("Cache directory not writable, using temp directory",
		"path", preferred,
		"fallback", fallback)
	return fallback, nil
}

// Launch starts the system bundle, which reads all contributions and starts
// the eager bundles. Launching a running platform is a no-op.
func (p *InternalPlatform) Launch() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assertInitializedLocked("Launch")

	if p.running {
		return nil
	}
	p.running = true
	err := p.loader.StartSystemBundle(p.loader.SystemBundle())
	p.health.SetPlatformServing(err == nil)
	if err != nil {
		p.logger.Error("System bundle failed to start", "error", err)
	}
	return err
}

// Shutdown stops and uninstalls every bundle, clears the registries and
// returns the platform to the uninitialized state. It is best effort and
// safe to call on an uninitialized platform.
func (p *InternalPlatform) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return
	}
	p.running = false
	p.health.SetPlatformServing(false)

	p.loader.UninstallAll()
	p.services.Clear()
	p.logger.Info("Platform shut down")

	p.loader = nil
	p.services = nil
	p.cache = nil
	p.logger = nil
	p.initialized = false
}

// AssertInitialized panics with an ErrCodeNotInitialized error when the
// platform has not been initialized.
func (p *InternalPlatform) AssertInitialized() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assertInitializedLocked("AssertInitialized")
}

func (p *InternalPlatform) assertInitializedLocked(operation string) {
	if !p.initialized {
		panic(NewNotInitializedError(operation))
	}
}

// IsInitialized reports whether Initialize has completed.
func (p *InternalPlatform) IsInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// IsRunning reports whether Launch has been called since Initialize.
func (p *InternalPlatform) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// SessionID identifies the current Initialize..Shutdown span.
func (p *InternalPlatform) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assertInitializedLocked("SessionID")
	return p.sessionID
}

// GetServiceRegistry returns the service registry.
func (p *InternalPlatform) GetServiceRegistry() *ServiceRegistry {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assertInitializedLocked("GetServiceRegistry")
	return p.services
}

// GetExtensionPointService returns the registered extension point service,
// or the loader's registry before the system bundle has published it.
func (p *InternalPlatform) GetExtensionPointService() ExtensionPointService {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assertInitializedLocked("GetExtensionPointService")

	if svc, err := GetServiceByID[ExtensionPointService](p.services, ExtensionPointServiceID); err == nil && svc != nil {
		return svc
	}
	return p.loader.Extensions()
}

// GetBundleLoader returns the loader.
func (p *InternalPlatform) GetBundleLoader() *BundleLoader {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assertInitializedLocked("GetBundleLoader")
	return p.loader
}

// GetBundle returns the bundle with the given symbolic name, or nil.
func (p *InternalPlatform) GetBundle(symbolicName string) *Bundle {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assertInitializedLocked("GetBundle")
	return p.loader.FindBundle(symbolicName)
}

// GetBundles returns all installed bundles in install order.
func (p *InternalPlatform) GetBundles() []*Bundle {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assertInitializedLocked("GetBundles")
	return p.loader.GetBundles()
}

// InstallSearchPaths installs the bundles under additional search paths and
// resolves them. On a running platform their contributions are read and
// eager bundles are started as well.
func (p *InternalPlatform) InstallSearchPaths(paths []string) ([]*Bundle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assertInitializedLocked("InstallSearchPaths")

	var installed []*Bundle
	for _, path := range ParseSearchPaths(joinSearchPaths(paths)) {
		loaded, err := p.loader.LoadBundles(path)
		if err != nil {
			return installed, err
		}
		installed = append(installed, loaded...)
		p.options.PluginDirs = append(p.options.PluginDirs, path)
	}
	p.loader.ResolveAllBundles()
	if p.running {
		p.loader.ReadAllContributions()
		p.loader.StartAllBundles()
	}
	for _, b := range installed {
		p.logger.Info("Bundle state",
			"bundle", b.SymbolicName(),
			"state", b.State().String())
	}
	return installed, nil
}

func joinSearchPaths(paths []string) string {
	out := ""
	for i, path := range paths {
		if i > 0 {
			out += ";"
		}
		out += path
	}
	return out
}

// Options returns the effective options of the current session.
func (p *InternalPlatform) Options() PlatformOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assertInitializedLocked("Options")
	return p.options
}

// Metrics returns the metrics collector.
func (p *InternalPlatform) Metrics() MetricsCollector { return p.metrics }

// Health returns the health reporter.
func (p *InternalPlatform) Health() *HealthReporter { return p.health }

func (p *InternalPlatform) GetConfigurationPath() string { return p.pathOption("GetConfigurationPath", func(o *PlatformOptions) string { return o.ConfigurationDir }) }
func (p *InternalPlatform) GetInstallPath() string       { return p.pathOption("GetInstallPath", func(o *PlatformOptions) string { return o.InstallDir }) }
func (p *InternalPlatform) GetInstancePath() string      { return p.pathOption("GetInstancePath", func(o *PlatformOptions) string { return o.InstanceDir }) }
func (p *InternalPlatform) GetUserPath() string          { return p.pathOption("GetUserPath", func(o *PlatformOptions) string { return o.UserDir }) }
func (p *InternalPlatform) GetCachePath() string         { return p.pathOption("GetCachePath", func(o *PlatformOptions) string { return o.CacheDir }) }

func (p *InternalPlatform) pathOption(operation string, get func(*PlatformOptions) string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assertInitializedLocked(operation)
	return get(&p.options)
}

// GetStatePath returns <instance>/.metadata/.plugins/<symbolic-name>. With
// create set the directory is created; ok is false when it does not exist
// or cannot be created.
func (p *InternalPlatform) GetStatePath(bundle *Bundle, create bool) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assertInitializedLocked("GetStatePath")
	if bundle == nil {
		return "", false
	}
	return statePath(p.options.InstanceDir, bundle.SymbolicName(), create)
}

func statePath(instanceDir, symbolicName string, create bool) (string, bool) {
	if instanceDir == "" || validateSymbolicName(symbolicName) != nil {
		return "", false
	}
	dir := filepath.Join(instanceDir, ".metadata", ".plugins", symbolicName)
	if create {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return "", false
		}
		return dir, true
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}
