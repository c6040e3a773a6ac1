// panic_recovery.go: Panic recovery around activator hooks and listeners
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"fmt"
	"runtime"
)

const panicStackSize = 64 << 10

// withStackRecover returns a deferred function that logs a recovered panic
// with its stack trace.
//
//	defer withStackRecover(logger)()
func withStackRecover(logger Logger) func() {
	return func() {
		if r := recover(); r != nil {
			buf := make([]byte, panicStackSize)
			n := runtime.Stack(buf, false)
			logger.Error("Panic recovered",
				"panic", r,
				"stack", string(buf[:n]))
		}
	}
}

// callActivatorHook runs an activator hook and converts a panic into an
// ErrCodeActivator error carrying the stack.
func callActivatorHook(symbolicName, hook string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, panicStackSize)
			n := runtime.Stack(buf, false)
			err = NewActivatorError(symbolicName, fmt.Sprintf("%s hook panicked: %v", hook, r), nil).
				WithContext("hook", hook).
				WithContext("stack", string(buf[:n]))
		}
	}()

	if err := fn(); err != nil {
		if HasErrorCode(err, ErrCodeActivator) {
			return err
		}
		return NewActivatorError(symbolicName, hook+" hook failed", err).WithContext("hook", hook)
	}
	return nil
}
