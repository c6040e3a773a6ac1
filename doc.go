// Package gobundles is a bundle runtime for Go applications: it discovers
// self-describing bundles on disk, resolves their dependencies, starts and
// stops them in dependency order, and lets them publish services and
// declarative extensions to each other.
//
// Key Features:
//   - Bundle descriptors as META-INF/MANIFEST.MF, plugin.yaml or plugin.json
//   - Bundles as directories or zip archives
//   - INSTALLED, RESOLVED, STARTING, ACTIVE, STOPPING, UNINSTALLED lifecycle
//   - Require-Bundle resolution with cycle and missing-dependency detection
//   - Activators registered in Go, written in Lua, or loaded from Go plugins
//   - Extension points and extensions declared in plugin.xml or plugin.yaml
//   - Lazy bundles activated on first use of an executable extension
//   - Process-wide service registry with typed lookup
//   - Prometheus metrics, gRPC health and structured logging
//
// Basic Usage:
//
//	gobundles.RegisterActivator("org.example.Activator", func() gobundles.Activator {
//		return gobundles.ActivatorFuncs{
//			OnStart: func(ctx *gobundles.BundleContext) error {
//				ctx.Services().RegisterService("org.example.Greeter", greeter{})
//				return nil
//			},
//		}
//	})
//
//	platform := gobundles.NewInternalPlatform(gobundles.PlatformConfig{Logger: zapLogger})
//	if err := platform.Initialize([]string{"./plugins"}, gobundles.PlatformOptions{}); err != nil {
//		log.Fatal(err)
//	}
//	defer platform.Shutdown()
//
//	if err := platform.Launch(); err != nil {
//		log.Fatal(err)
//	}
//
// Bundle layout:
//
//	plugins/
//	  org.example.greeter/
//	    META-INF/MANIFEST.MF
//	    plugin.xml
//	    activator.lua
//
// Activators must reach the runtime through their BundleContext. The
// platform holds its lock while Launch runs activator hooks.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package gobundles
