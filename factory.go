// factory.go: Process-wide factories for activators and executable extensions
//
// Bundles name their activator and their executable extensions by class name.
// Go has no class loading, so host programs and compiled-in bundles register
// a factory per class name at init time:
//
//	func init() {
//	    gobundles.RegisterActivator("org.example.Activator", func() gobundles.Activator {
//	        return &exampleActivator{}
//	    })
//	}
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"sort"
	"sync"
)

// ActivatorFactory creates a fresh activator instance.
type ActivatorFactory func() Activator

// ExecutableExtensionFactory creates the object behind an executable
// extension. The element is the configuration element that named the class.
type ExecutableExtensionFactory func(element *ConfigurationElement) (any, error)

type factoryRegistry struct {
	mu          sync.RWMutex
	activators  map[string]ActivatorFactory
	executables map[string]ExecutableExtensionFactory
}

var factories = &factoryRegistry{
	activators:  make(map[string]ActivatorFactory),
	executables: make(map[string]ExecutableExtensionFactory),
}

// RegisterActivator binds an activator class name to a factory. Registering
// the same name twice replaces the previous factory.
func RegisterActivator(className string, factory ActivatorFactory) error {
	if className == "" {
		return NewConfigError("activator", "activator class name cannot be empty", nil)
	}
	if factory == nil {
		return NewConfigError(className, "activator factory cannot be nil", nil)
	}
	factories.mu.Lock()
	factories.activators[className] = factory
	factories.mu.Unlock()
	return nil
}

// UnregisterActivator removes a registered activator class.
func UnregisterActivator(className string) {
	factories.mu.Lock()
	delete(factories.activators, className)
	factories.mu.Unlock()
}

func lookupActivator(className string) (ActivatorFactory, bool) {
	factories.mu.RLock()
	defer factories.mu.RUnlock()
	f, ok := factories.activators[className]
	return f, ok
}

// RegisterExecutableExtension binds a class name usable from a configuration
// element attribute (usually "class") to a factory.
func RegisterExecutableExtension(className string, factory ExecutableExtensionFactory) error {
	if className == "" {
		return NewConfigError("executable_extension", "class name cannot be empty", nil)
	}
	if factory == nil {
		return NewConfigError(className, "executable extension factory cannot be nil", nil)
	}
	factories.mu.Lock()
	factories.executables[className] = factory
	factories.mu.Unlock()
	return nil
}

// UnregisterExecutableExtension removes a registered executable extension class.
func UnregisterExecutableExtension(className string) {
	factories.mu.Lock()
	delete(factories.executables, className)
	factories.mu.Unlock()
}

func lookupExecutableExtension(className string) (ExecutableExtensionFactory, bool) {
	factories.mu.RLock()
	defer factories.mu.RUnlock()
	f, ok := factories.executables[className]
	return f, ok
}

// RegisteredActivators lists registered activator class names, sorted.
func RegisteredActivators() []string {
	factories.mu.RLock()
	defer factories.mu.RUnlock()
	names := make([]string, 0, len(factories.activators))
	for name := range factories.activators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
