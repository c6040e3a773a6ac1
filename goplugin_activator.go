// goplugin_activator.go: Activators compiled as Go plugins
//
// A library ending in .so is opened with the standard plugin package and must
// export:
//
//	func NewActivator() gobundles.Activator
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"fmt"
	"plugin"
)

// GoPluginActivatorSymbol is the symbol looked up in a Go plugin library.
const GoPluginActivatorSymbol = "NewActivator"

func openPluginActivator(symbolicName, path string) (Activator, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, NewActivatorError(symbolicName, "failed to open Go plugin", err).
			WithContext("library", path)
	}
	sym, err := p.Lookup(GoPluginActivatorSymbol)
	if err != nil {
		return nil, NewActivatorError(symbolicName, "Go plugin does not export "+GoPluginActivatorSymbol, err).
			WithContext("library", path)
	}

	var factory func() Activator
	switch fn := sym.(type) {
	case func() Activator:
		factory = fn
	case *func() Activator:
		factory = *fn
	default:
		return nil, NewActivatorError(symbolicName, fmt.Sprintf("%s has type %T", GoPluginActivatorSymbol, sym), nil).
			WithContext("library", path)
	}

	act := factory()
	if act == nil {
		return nil, NewActivatorError(symbolicName, GoPluginActivatorSymbol+" returned nil", nil)
	}
	return act, nil
}
