// bundle_context.go: Per-bundle view of the runtime handed to activators
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

// BundleContext is scoped to one bundle. Activators reach the runtime only
// through it.
type BundleContext struct {
	bundle *Bundle
	loader *BundleLoader
}

func newBundleContext(b *Bundle, l *BundleLoader) *BundleContext {
	return &BundleContext{bundle: b, loader: l}
}

// Bundle returns the bundle this context belongs to.
func (c *BundleContext) Bundle() *Bundle { return c.bundle }

// SymbolicName returns the bundle's symbolic name.
func (c *BundleContext) SymbolicName() string { return c.bundle.SymbolicName() }

// Logger returns the loader's logger with a "bundle" field.
func (c *BundleContext) Logger() Logger {
	return c.loader.logger.With("bundle", c.bundle.SymbolicName())
}

// Services returns the process-wide service registry.
func (c *BundleContext) Services() *ServiceRegistry { return c.loader.services }

// ExtensionPointService returns the extension registry.
func (c *BundleContext) ExtensionPointService() ExtensionPointService { return c.loader.extensions }

// FindBundle looks up another bundle; nil when absent.
func (c *BundleContext) FindBundle(symbolicName string) *Bundle {
	return c.loader.FindBundle(symbolicName)
}

// StatePath returns the bundle's private state directory, creating it when
// create is true.
func (c *BundleContext) StatePath(create bool) (string, bool) {
	if c.loader.statePath == nil {
		return "", false
	}
	return c.loader.statePath(c.bundle.SymbolicName(), create)
}
