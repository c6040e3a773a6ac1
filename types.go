// types.go: Common data types for the bundle runtime
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"strings"
	"time"
)

// SystemBundleName is the symbolic name of bundle zero.
const SystemBundleName = "system.bundle"

// BundleState is the lifecycle state of a bundle.
//
//	INSTALLED -> RESOLVED -> STARTING -> ACTIVE -> STOPPING -> RESOLVED
//	any non-active state -> UNINSTALLED (terminal)
type BundleState int

const (
	StateInstalled BundleState = iota
	StateResolved
	StateStarting
	StateActive
	StateStopping
	StateUninstalled
)

// String returns the upper-case state name used in logs.
func (s BundleState) String() string {
	switch s {
	case StateInstalled:
		return "INSTALLED"
	case StateResolved:
		return "RESOLVED"
	case StateStarting:
		return "STARTING"
	case StateActive:
		return "ACTIVE"
	case StateStopping:
		return "STOPPING"
	case StateUninstalled:
		return "UNINSTALLED"
	default:
		return "UNKNOWN"
	}
}

// ActivationPolicy controls when a resolved bundle is started.
type ActivationPolicy string

const (
	// ActivationEager starts the bundle when the platform starts.
	ActivationEager ActivationPolicy = "eager"
	// ActivationLazy defers the start until the bundle is first used.
	ActivationLazy ActivationPolicy = "lazy"
)

// ParseActivationPolicy maps a descriptor value to a policy. Empty and
// unknown values mean eager.
func ParseActivationPolicy(value string) ActivationPolicy {
	if strings.EqualFold(strings.TrimSpace(value), string(ActivationLazy)) {
		return ActivationLazy
	}
	return ActivationEager
}

// BundleEventType identifies a lifecycle transition.
type BundleEventType string

const (
	EventInstalled   BundleEventType = "installed"
	EventResolved    BundleEventType = "resolved"
	EventStarting    BundleEventType = "starting"
	EventStarted     BundleEventType = "started"
	EventStopping    BundleEventType = "stopping"
	EventStopped     BundleEventType = "stopped"
	EventUninstalled BundleEventType = "uninstalled"
	EventStartFailed BundleEventType = "start_failed"
)

// BundleEvent is delivered synchronously to bundle listeners on every transition.
type BundleEvent struct {
	Type         BundleEventType `json:"type"`
	SymbolicName string          `json:"symbolic_name"`
	BundleID     int64           `json:"bundle_id"`
	State        BundleState     `json:"state"`
	Timestamp    time.Time       `json:"timestamp"`
	Error        error           `json:"error,omitempty"`
}

// BundleListener receives bundle events.
type BundleListener func(event BundleEvent)
