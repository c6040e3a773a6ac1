// loader.go: Bundle discovery, dependency resolution and activation
//
// The loader owns every installed bundle. All lifecycle passes walk the same
// canonical order, computed by a depth-first walk over Require-Bundle edges
// in install order: a bundle always comes after everything it requires. Stop
// passes use the reverse of that order.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// LoaderConfig wires a BundleLoader to its collaborators. Nil fields get
// private defaults.
type LoaderConfig struct {
	Logger            any
	Services          *ServiceRegistry
	Extensions        *ExtensionRegistry
	CodeCache         *CodeCache
	Metrics           MetricsCollector
	Health            *HealthReporter
	ArchiveExtensions []string
	LuaCallTimeout    time.Duration

	// StatePath backs BundleContext.StatePath.
	StatePath func(symbolicName string, create bool) (string, bool)
}

// BundleLoader installs, resolves, starts and stops bundles.
type BundleLoader struct {
	logger            Logger
	services          *ServiceRegistry
	extensions        *ExtensionRegistry
	cache             *CodeCache
	metrics           MetricsCollector
	health            *HealthReporter
	activators        activatorLoader
	statePath         func(symbolicName string, create bool) (string, bool)
	archiveExtensions []string

	mu          sync.RWMutex
	bundles     map[string]*Bundle
	order       []*Bundle
	nextID      int64
	system      *SystemBundle
	contributed map[string]bool

	listenersMu sync.RWMutex
	listeners   []BundleListener
}

// NewBundleLoader creates an empty loader.
func NewBundleLoader(config LoaderConfig) *BundleLoader {
	logger := NewLogger(config.Logger)
	if config.Services == nil {
		config.Services = NewServiceRegistry(logger)
	}
	if config.Extensions == nil {
		config.Extensions = NewExtensionRegistry()
	}
	if config.CodeCache == nil {
		config.CodeCache = NewCodeCache(filepath.Join(os.TempDir(), "gobundles-cache"))
	}
	if config.Metrics == nil {
		config.Metrics = NewDefaultMetricsCollector()
	}
	if config.ArchiveExtensions == nil {
		config.ArchiveExtensions = DefaultArchiveExtensions
	}

	l := &BundleLoader{
		logger:            logger,
		services:          config.Services,
		extensions:        config.Extensions,
		cache:             config.CodeCache,
		metrics:           config.Metrics,
		health:            config.Health,
		activators:        activatorLoader{cache: config.CodeCache, luaTimeout: config.LuaCallTimeout},
		statePath:         config.StatePath,
		archiveExtensions: config.ArchiveExtensions,
		bundles:           make(map[string]*Bundle),
		contributed:       make(map[string]bool),
	}
	l.extensions.SetActivationHook(l.activateLazy)
	return l
}

// Services returns the service registry bundles see.
func (l *BundleLoader) Services() *ServiceRegistry { return l.services }

// Extensions returns the extension registry.
func (l *BundleLoader) Extensions() *ExtensionRegistry { return l.extensions }

// AddBundleListener registers a listener for every bundle transition.
// Listeners run synchronously; a panicking listener is logged and skipped.
func (l *BundleLoader) AddBundleListener(listener BundleListener) {
	l.listenersMu.Lock()
	l.listeners = append(l.listeners, listener)
	l.listenersMu.Unlock()
}

// LoadBundles installs every bundle directory or archive directly under
// searchPath, in name order. Individual failures are logged and skipped; a
// missing search path is only a warning.
func (l *BundleLoader) LoadBundles(searchPath string) ([]*Bundle, error) {
	entries, err := os.ReadDir(searchPath)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn("Plugin search path does not exist", "path", searchPath)
			return nil, nil
		}
		return nil, NewStorageError(searchPath, "cannot list plugin search path", err)
	}

	var loaded []*Bundle
	for _, entry := range entries {
		location := filepath.Join(searchPath, entry.Name())
		if !entry.IsDir() && !isArchiveName(entry.Name(), l.archiveExtensions) {
			continue
		}

		b, err := l.LoadBundle(location)
		if err != nil {
			if HasErrorCode(err, ErrCodeManifestNotFound) {
				l.logger.Debug("Skipping directory without bundle descriptor", "path", location)
				continue
			}
			l.logger.Warn("Failed to load bundle",
				"bundle", entry.Name(),
				"path", location,
				"error", err)
			continue
		}
		loaded = append(loaded, b)
	}
	return loaded, nil
}

// LoadBundle installs the bundle at path. Loading the same location twice
// returns the installed bundle; a different location declaring an installed
// symbolic name fails with ErrCodeBundleVersionConflict and the first
// bundle stays installed.
func (l *BundleLoader) LoadBundle(path string) (*Bundle, error) {
	storage, err := OpenBundleStorage(path, l.archiveExtensions)
	if err != nil {
		l.metrics.IncrementCounter(MetricBundleLoadFailures, map[string]string{"reason": "storage"}, 1)
		return nil, err
	}
	manifest, err := ParseManifest(storage)
	if err != nil {
		_ = storage.Close()
		if !HasErrorCode(err, ErrCodeManifestNotFound) {
			l.metrics.IncrementCounter(MetricBundleLoadFailures, map[string]string{"reason": "manifest"}, 1)
		}
		return nil, err
	}
	return l.InstallBundle(manifest, storage)
}

// InstallBundle installs an already parsed bundle. The loader takes
// ownership of storage.
func (l *BundleLoader) InstallBundle(manifest *Manifest, storage BundleStorage) (*Bundle, error) {
	name := manifest.SymbolicName()

	l.mu.Lock()
	if existing, ok := l.bundles[name]; ok {
		l.mu.Unlock()
		if sameLocation(existing.Location(), storage.GetPath()) {
			if existing.storage != storage {
				_ = storage.Close()
			}
			return existing, nil
		}
		_ = storage.Close()
		l.metrics.IncrementCounter(MetricBundleLoadFailures, map[string]string{"reason": "conflict"}, 1)
		return nil, NewBundleVersionConflictError(name, existing.Location(), storage.GetPath()).
			WithContext("installed_version", existing.Version()).
			WithContext("new_version", manifest.Version())
	}

	var b *Bundle
	if name == SystemBundleName {
		l.system = newSystemBundle(manifest, storage, l)
		b = l.system.Bundle
	} else {
		l.nextID++
		b = newBundle(l.nextID, manifest, storage, l)
	}
	l.bundles[name] = b
	l.order = append(l.order, b)
	l.mu.Unlock()

	l.metrics.IncrementCounter(MetricBundlesLoaded, nil, 1)
	b.emit(EventInstalled, b.State(), nil)
	l.logger.Debug("Bundle installed",
		"bundle", name,
		"version", manifest.Version(),
		"path", storage.GetPath())
	return b, nil
}

func sameLocation(a, b string) bool {
	if a == b {
		return true
	}
	ca, errA := filepath.Abs(a)
	cb, errB := filepath.Abs(b)
	return errA == nil && errB == nil && filepath.Clean(ca) == filepath.Clean(cb)
}

// SystemBundle returns the installed system bundle, or nil.
func (l *BundleLoader) SystemBundle() *SystemBundle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.system
}

// EnsureSystemBundle installs the built-in system bundle when none was
// discovered on disk.
func (l *BundleLoader) EnsureSystemBundle() *SystemBundle {
	if sys := l.SystemBundle(); sys != nil {
		return sys
	}
	manifest, storage := builtinSystemDescriptor()
	if _, err := l.InstallBundle(manifest, storage); err != nil {
		l.logger.Error("Failed to install system bundle", "error", err)
	}
	return l.SystemBundle()
}

// FindBundle returns the bundle with the given symbolic name, or nil.
func (l *BundleLoader) FindBundle(symbolicName string) *Bundle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bundles[symbolicName]
}

// GetBundles returns a snapshot of installed bundles in install order.
func (l *BundleLoader) GetBundles() []*Bundle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Bundle, len(l.order))
	copy(out, l.order)
	return out
}

type resolveMark int

const (
	markUnvisited resolveMark = iota
	markVisiting
	markResolvable
	markFailed
)

// plan walks the dependency graph from roots. order lists every resolvable
// bundle reached, dependencies first; failures maps each unresolvable
// bundle to the reason. A bundle that would close a cycle fails, and the
// failure propagates to the bundles that required it.
func (l *BundleLoader) plan(roots []*Bundle) ([]*Bundle, map[string]error) {
	marks := make(map[string]resolveMark)
	failures := make(map[string]error)
	var order []*Bundle

	var visit func(b *Bundle) error
	visit = func(b *Bundle) error {
		name := b.SymbolicName()
		switch marks[name] {
		case markResolvable:
			return nil
		case markFailed:
			return failures[name]
		}
		marks[name] = markVisiting

		var requires []string
		if !b.system {
			requires = b.RequiredBundles()
		}
		for _, dep := range requires {
			var reason string
			var cause error
			d := l.FindBundle(dep)
			switch {
			case d == nil:
				reason = "required bundle " + dep + " is not installed"
			case marks[dep] == markVisiting:
				reason = "dependency cycle through " + dep
			default:
				if depErr := visit(d); depErr != nil {
					reason = "required bundle " + dep + " cannot be resolved"
					cause = depErr
				}
			}
			if reason != "" {
				marks[name] = markFailed
				failures[name] = NewBundleResolveError(name, reason, cause).
					WithContext("requires", dep).
					WithContext("path", b.Location())
				return failures[name]
			}
		}

		marks[name] = markResolvable
		order = append(order, b)
		return nil
	}

	for _, b := range roots {
		if marks[b.SymbolicName()] == markUnvisited {
			_ = visit(b)
		}
	}
	return order, failures
}

// ResolutionOrder returns every resolvable bundle, dependencies first. The
// same order drives resolution, contribution reading and start; stop uses
// its reverse.
func (l *BundleLoader) ResolutionOrder() []*Bundle {
	order, _ := l.plan(l.GetBundles())
	return order
}

// ResolveAllBundles resolves every installed bundle it can. Bundles with a
// missing or cyclic dependency stay INSTALLED and are reported with a
// warning; all others resolve regardless.
func (l *BundleLoader) ResolveAllBundles() {
	bundles := l.GetBundles()
	order, failures := l.plan(bundles)

	for _, b := range order {
		if err := b.markResolved(); err != nil {
			l.logger.Warn("Failed to resolve bundle",
				"bundle", b.SymbolicName(),
				"path", b.Location(),
				"error", err)
		}
	}
	for _, b := range bundles {
		err, failed := failures[b.SymbolicName()]
		if !failed || b.State() != StateInstalled {
			continue
		}
		l.metrics.IncrementCounter(MetricBundleResolveFailures, map[string]string{"bundle": b.SymbolicName()}, 1)
		l.logger.Warn("Bundle could not be resolved",
			"bundle", b.SymbolicName(),
			"path", b.Location(),
			"error", err)
	}
	l.updateStateGauge()
}

// ResolveBundle resolves one bundle and everything it requires.
func (l *BundleLoader) ResolveBundle(symbolicName string) error {
	b := l.FindBundle(symbolicName)
	if b == nil {
		return NewBundleNotFoundError(symbolicName)
	}
	if b.State() == StateUninstalled {
		return NewBundleStateError(symbolicName, "resolve", StateUninstalled)
	}

	order, failures := l.plan([]*Bundle{b})
	if err, failed := failures[symbolicName]; failed {
		l.metrics.IncrementCounter(MetricBundleResolveFailures, map[string]string{"bundle": symbolicName}, 1)
		return err
	}
	for _, x := range order {
		if err := x.markResolved(); err != nil {
			return err
		}
	}
	l.updateStateGauge()
	return nil
}

// ReadAllContributions registers the extension points and extensions of
// every resolved bundle, once per bundle. Unreadable descriptors and
// rejected extensions are logged and skipped. Extensions whose point is
// still undeclared after the pass are reported.
func (l *BundleLoader) ReadAllContributions() {
	for _, b := range l.ResolutionOrder() {
		if !b.IsResolved() {
			continue
		}
		name := b.SymbolicName()

		l.mu.Lock()
		done := l.contributed[name]
		l.contributed[name] = true
		l.mu.Unlock()
		if done {
			continue
		}

		contributions, err := ReadContributions(b.storage, name)
		if err != nil {
			l.logger.Warn("Failed to read bundle contributions",
				"bundle", name,
				"path", b.Location(),
				"error", err)
			continue
		}

		for _, point := range contributions.ExtensionPoints {
			for _, err := range l.extensions.AddExtensionPoint(point) {
				l.logger.Warn("Extension rejected",
					"bundle", name,
					"path", b.Location(),
					"extension_point", point.UniqueID(),
					"error", err)
			}
		}
		for _, ext := range contributions.Extensions {
			if err := l.extensions.AddExtension(ext); err != nil {
				l.logger.Warn("Extension rejected",
					"bundle", name,
					"path", b.Location(),
					"extension_point", ext.ExtensionPointID(),
					"error", err)
			}
		}
	}

	for _, orphan := range l.extensions.Orphans() {
		l.logger.Warn("Extension targets an undeclared extension point",
			"bundle", orphan.Contributor(),
			"extension", orphan.UniqueID(),
			"extension_point", orphan.ExtensionPointID())
	}
}

// StartAllBundles starts every resolved eager bundle in resolution order,
// after its dependencies. A bundle whose start fails is logged and the pass
// continues.
func (l *BundleLoader) StartAllBundles() {
	failed := make(map[string]error)
	for _, b := range l.ResolutionOrder() {
		if b.system || b.ActivationPolicy() != ActivationEager || b.State() != StateResolved {
			continue
		}
		if err := l.startWithDependencies(b, failed); err != nil {
			l.logger.Warn("Failed to start bundle",
				"bundle", b.SymbolicName(),
				"path", b.Location(),
				"error", err)
		}
	}
	l.updateStateGauge()
}

// StartBundle starts a bundle after starting everything it requires,
// resolving it first if needed. Starting an active bundle is a no-op.
func (l *BundleLoader) StartBundle(symbolicName string) error {
	b := l.FindBundle(symbolicName)
	if b == nil {
		return NewBundleNotFoundError(symbolicName)
	}
	err := l.startWithDependencies(b, make(map[string]error))
	l.updateStateGauge()
	return err
}

func (l *BundleLoader) startWithDependencies(b *Bundle, failed map[string]error) error {
	name := b.SymbolicName()
	if b.IsStarted() {
		return nil
	}
	if err, ok := failed[name]; ok {
		return err
	}
	if b.State() == StateInstalled {
		if err := l.ResolveBundle(name); err != nil {
			failed[name] = err
			return err
		}
	}

	if !b.system {
		for _, dep := range b.RequiredBundles() {
			d := l.FindBundle(dep)
			if d == nil || d.system {
				continue
			}
			if err := l.startWithDependencies(d, failed); err != nil {
				failed[name] = NewBundleError(name, "required bundle "+dep+" is not active", err).
					WithContext("requires", dep)
				return failed[name]
			}
		}
	}

	if err := b.Start(); err != nil {
		failed[name] = err
		return err
	}
	return nil
}

// StartSystemBundle starts bundle zero and resumes it, which reads all
// contributions and starts the eager bundles.
func (l *BundleLoader) StartSystemBundle(sys *SystemBundle) error {
	if sys == nil {
		return NewBundleNotFoundError(SystemBundleName)
	}
	if sys.State() == StateResolved {
		if err := sys.Start(); err != nil {
			return err
		}
	}
	sys.Resume()
	return nil
}

// StopAllBundles stops active bundles in reverse resolution order, the
// system bundle last. Failures are logged.
func (l *BundleLoader) StopAllBundles() {
	order := l.ResolutionOrder()
	seen := make(map[string]bool, len(order))
	var stopList []*Bundle
	for i := len(order) - 1; i >= 0; i-- {
		seen[order[i].SymbolicName()] = true
		stopList = append(stopList, order[i])
	}
	bundles := l.GetBundles()
	for i := len(bundles) - 1; i >= 0; i-- {
		if !seen[bundles[i].SymbolicName()] {
			stopList = append(stopList, bundles[i])
		}
	}
	sort.SliceStable(stopList, func(i, j int) bool { return !stopList[i].system && stopList[j].system })

	for _, b := range stopList {
		if b.State() != StateActive {
			continue
		}
		if err := b.Stop(); err != nil {
			l.logger.Warn("Failed to stop bundle",
				"bundle", b.SymbolicName(),
				"path", b.Location(),
				"error", err)
		}
	}
	l.updateStateGauge()
}

// UninstallBundle uninstalls a non-active bundle and forgets it. Its
// contributions, cached code and storage are released.
func (l *BundleLoader) UninstallBundle(symbolicName string) error {
	b := l.FindBundle(symbolicName)
	if b == nil {
		return NewBundleNotFoundError(symbolicName)
	}
	if err := b.Uninstall(); err != nil {
		return err
	}
	l.forget(b)
	return nil
}

// UninstallAll stops every bundle and uninstalls all of them.
func (l *BundleLoader) UninstallAll() {
	l.StopAllBundles()
	bundles := l.GetBundles()
	for i := len(bundles) - 1; i >= 0; i-- {
		b := bundles[i]
		if err := b.Uninstall(); err != nil {
			l.logger.Warn("Failed to uninstall bundle",
				"bundle", b.SymbolicName(),
				"path", b.Location(),
				"error", err)
		}
		l.forget(b)
	}
}

func (l *BundleLoader) forget(b *Bundle) {
	name := b.SymbolicName()

	l.mu.Lock()
	delete(l.bundles, name)
	delete(l.contributed, name)
	for i, x := range l.order {
		if x == b {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	if l.system != nil && l.system.Bundle == b {
		l.system = nil
	}
	l.mu.Unlock()

	l.extensions.RemoveContributionsFrom(name)
	if err := l.cache.Evict(b.manifest); err != nil {
		l.logger.Debug("Failed to evict cached code", "bundle", name, "error", err)
	}
	_ = b.storage.Close()
	l.updateStateGauge()
}

func (l *BundleLoader) loadActivator(b *Bundle) (Activator, error) {
	if b.system {
		return systemActivator{}, nil
	}
	return l.activators.load(b)
}

// activateLazy starts a contributing bundle on first use of one of its
// executable extensions.
func (l *BundleLoader) activateLazy(symbolicName string) error {
	b := l.FindBundle(symbolicName)
	if b == nil || b.IsStarted() {
		return nil
	}
	l.logger.Debug("Activating bundle on first use", "bundle", symbolicName)
	return l.StartBundle(symbolicName)
}

func (l *BundleLoader) fireEvent(event BundleEvent) {
	if l.health != nil {
		l.health.BundleChanged(event.SymbolicName, event.State)
	}

	l.listenersMu.RLock()
	listeners := make([]BundleListener, len(l.listeners))
	copy(listeners, l.listeners)
	l.listenersMu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer withStackRecover(l.logger)()
			listener(event)
		}()
	}
}

func (l *BundleLoader) observeStart(b *Bundle, elapsed time.Duration, err error) {
	labels := map[string]string{"bundle": b.SymbolicName()}
	l.metrics.RecordHistogram(MetricBundleStartSeconds, labels, elapsed.Seconds())
	if err != nil {
		l.metrics.IncrementCounter(MetricBundleStartFailures, labels, 1)
	}
}

func (l *BundleLoader) updateStateGauge() {
	counts := make(map[BundleState]int)
	for _, b := range l.GetBundles() {
		counts[b.State()]++
	}
	for _, s := range []BundleState{StateInstalled, StateResolved, StateStarting, StateActive, StateStopping, StateUninstalled} {
		l.metrics.SetGauge(MetricBundlesByState, map[string]string{"state": s.String()}, float64(counts[s]))
	}
}
