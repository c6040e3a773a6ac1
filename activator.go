// activator.go: Bundle activators and how they are obtained
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"path/filepath"
	"strings"
	"time"
)

// Activator receives the start and stop callbacks of a bundle.
//
// Hooks run synchronously on the goroutine that starts or stops the bundle
// and block the whole start pass while they run, so they must not block
// indefinitely. A panic inside a hook is recovered and reported as an
// ErrCodeActivator error.
type Activator interface {
	Start(ctx *BundleContext) error
	Stop(ctx *BundleContext) error
}

// ActivatorFuncs adapts plain functions to Activator. Nil hooks are no-ops.
type ActivatorFuncs struct {
	OnStart func(ctx *BundleContext) error
	OnStop  func(ctx *BundleContext) error
}

// Start implements Activator.
func (a ActivatorFuncs) Start(ctx *BundleContext) error {
	if a.OnStart == nil {
		return nil
	}
	return a.OnStart(ctx)
}

// Stop implements Activator.
func (a ActivatorFuncs) Stop(ctx *BundleContext) error {
	if a.OnStop == nil {
		return nil
	}
	return a.OnStop(ctx)
}

// closer is implemented by activators that hold resources beyond Stop.
type closer interface {
	Close() error
}

// activatorLoader turns a manifest's activator declaration into an instance.
type activatorLoader struct {
	cache      *CodeCache
	luaTimeout time.Duration
}

// load resolves, in order: a registered activator class, a .lua script
// library, a Go plugin (.so) library. A bundle that declares neither class
// nor library has no activator and load returns nil, nil.
func (l *activatorLoader) load(b *Bundle) (Activator, error) {
	manifest := b.Manifest()
	className := manifest.ActivatorClass()
	library := manifest.ActivatorLibrary()

	if className != "" {
		if factory, ok := lookupActivator(className); ok {
			act := factory()
			if act == nil {
				return nil, NewActivatorError(b.SymbolicName(), "activator factory returned nil for "+className, nil)
			}
			return act, nil
		}
	}

	if library == "" {
		if className != "" {
			return nil, NewActivatorError(b.SymbolicName(), "activator class "+className+" is not registered", nil).
				WithContext("activator", className)
		}
		return nil, nil
	}

	path, err := l.cache.Prepare(manifest, b.storage)
	if err != nil {
		return nil, NewActivatorError(b.SymbolicName(), "failed to prepare activator library", err).
			WithContext("library", library)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".lua":
		return newLuaActivator(path, l.luaTimeout)
	case ".so":
		return openPluginActivator(b.SymbolicName(), path)
	default:
		return nil, NewActivatorError(b.SymbolicName(), "unsupported activator library type", nil).
			WithContext("library", library)
	}
}
