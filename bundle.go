// bundle.go: Installed bundles and their lifecycle state machine
//
//	INSTALLED -> RESOLVED -> STARTING -> ACTIVE -> STOPPING -> RESOLVED
//	INSTALLED | RESOLVED -> UNINSTALLED
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// Bundle is one installed unit of functionality. Bundles are owned by the
// BundleLoader that installed them; other components refer to them by
// symbolic name.
type Bundle struct {
	id       int64
	manifest *Manifest
	storage  BundleStorage
	system   bool
	loader   *BundleLoader

	mu           sync.RWMutex
	state        BundleState
	activator    Activator
	context      *BundleContext
	lastModified int64
}

func newBundle(id int64, manifest *Manifest, storage BundleStorage, loader *BundleLoader) *Bundle {
	return &Bundle{
		id:           id,
		manifest:     manifest,
		storage:      storage,
		loader:       loader,
		state:        StateInstalled,
		lastModified: timecache.CachedTimeNano(),
	}
}

// ID returns the install sequence number. The system bundle is 0.
func (b *Bundle) ID() int64 { return b.id }

func (b *Bundle) SymbolicName() string               { return b.manifest.SymbolicName() }
func (b *Bundle) Version() string                    { return b.manifest.Version() }
func (b *Bundle) Manifest() *Manifest                { return b.manifest }
func (b *Bundle) Storage() BundleStorage             { return b.storage }
func (b *Bundle) ActivationPolicy() ActivationPolicy { return b.manifest.ActivationPolicy() }
func (b *Bundle) RequiredBundles() []string          { return b.manifest.RequiredBundles() }
func (b *Bundle) IsSystemBundle() bool               { return b.system }

// Location returns where the bundle was installed from.
func (b *Bundle) Location() string { return b.storage.GetPath() }

// State returns the current lifecycle state.
func (b *Bundle) State() BundleState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// LastModified returns the time of the last state transition.
func (b *Bundle) LastModified() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return time.Unix(0, b.lastModified)
}

// IsActive reports whether the bundle is ACTIVE.
func (b *Bundle) IsActive() bool { return b.State() == StateActive }

// IsResolved reports whether the bundle's dependencies are satisfied, which
// holds in every state from RESOLVED to STOPPING.
func (b *Bundle) IsResolved() bool {
	switch b.State() {
	case StateResolved, StateStarting, StateActive, StateStopping:
		return true
	}
	return false
}

// IsStarted reports whether the bundle is STARTING or ACTIVE.
func (b *Bundle) IsStarted() bool {
	s := b.State()
	return s == StateStarting || s == StateActive
}

// Resolve resolves the bundle and, recursively, everything it requires.
func (b *Bundle) Resolve() error {
	return b.loader.ResolveBundle(b.SymbolicName())
}

// markResolved moves INSTALLED to RESOLVED. Dependencies are the caller's
// concern.
func (b *Bundle) markResolved() error {
	b.mu.Lock()
	if b.state != StateInstalled {
		state := b.state
		b.mu.Unlock()
		if state == StateUninstalled {
			return NewBundleStateError(b.SymbolicName(), "resolve", state)
		}
		return nil
	}
	b.setStateLocked(StateResolved)
	b.mu.Unlock()

	b.emit(EventResolved, StateResolved, nil)
	return nil
}

// Start runs the activator's start hook. The bundle must be RESOLVED. When
// the activator cannot be loaded or its hook fails, the bundle goes back to
// RESOLVED and the error is returned.
func (b *Bundle) Start() error {
	b.mu.Lock()
	if b.state != StateResolved {
		state := b.state
		b.mu.Unlock()
		return NewBundleStateError(b.SymbolicName(), "start", state)
	}
	b.setStateLocked(StateStarting)
	b.mu.Unlock()
	b.emit(EventStarting, StateStarting, nil)

	began := time.Now()
	ctx := newBundleContext(b, b.loader)
	act, err := b.loader.loadActivator(b)
	if err == nil && act != nil {
		err = callActivatorHook(b.SymbolicName(), "start", func() error { return act.Start(ctx) })
		if err != nil {
			closeActivator(act)
		}
	}
	b.loader.observeStart(b, time.Since(began), err)

	b.mu.Lock()
	if err != nil {
		b.setStateLocked(StateResolved)
		b.mu.Unlock()
		b.emit(EventStartFailed, StateResolved, err)
		return err
	}
	b.activator = act
	b.context = ctx
	b.setStateLocked(StateActive)
	b.mu.Unlock()

	b.emit(EventStarted, StateActive, nil)
	return nil
}

// Stop runs the activator's stop hook and returns the bundle to RESOLVED.
// The bundle must be ACTIVE. A failing stop hook still completes the
// transition; its error is returned.
func (b *Bundle) Stop() error {
	b.mu.Lock()
	if b.state != StateActive {
		state := b.state
		b.mu.Unlock()
		return NewBundleStateError(b.SymbolicName(), "stop", state)
	}
	b.setStateLocked(StateStopping)
	act, ctx := b.activator, b.context
	b.mu.Unlock()
	b.emit(EventStopping, StateStopping, nil)

	var err error
	if act != nil {
		err = callActivatorHook(b.SymbolicName(), "stop", func() error { return act.Stop(ctx) })
		closeActivator(act)
	}

	b.mu.Lock()
	b.activator = nil
	b.context = nil
	b.setStateLocked(StateResolved)
	b.mu.Unlock()

	b.emit(EventStopped, StateResolved, err)
	return err
}

// Uninstall moves an INSTALLED or RESOLVED bundle to UNINSTALLED. Use
// BundleLoader.UninstallBundle to also drop it from the loader.
func (b *Bundle) Uninstall() error {
	b.mu.Lock()
	if b.state != StateInstalled && b.state != StateResolved {
		state := b.state
		b.mu.Unlock()
		return NewBundleStateError(b.SymbolicName(), "uninstall", state)
	}
	b.setStateLocked(StateUninstalled)
	b.mu.Unlock()

	b.emit(EventUninstalled, StateUninstalled, nil)
	return nil
}

func (b *Bundle) setStateLocked(state BundleState) {
	b.state = state
	b.lastModified = timecache.CachedTimeNano()
}

func (b *Bundle) emit(kind BundleEventType, state BundleState, err error) {
	b.loader.fireEvent(BundleEvent{
		Type:         kind,
		SymbolicName: b.SymbolicName(),
		BundleID:     b.id,
		State:        state,
		Timestamp:    timecache.CachedTime(),
		Error:        err,
	})
}

func closeActivator(act Activator) {
	if c, ok := act.(closer); ok {
		_ = c.Close()
	}
}
