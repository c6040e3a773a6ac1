// logging_zap.go: Logger adapter for go.uber.org/zap
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"go.uber.org/zap"
)

// ZapAdapter exposes a *zap.Logger through the Logger interface using the
// sugared key-value API.
type ZapAdapter struct {
	sugar *zap.SugaredLogger
}

// NewZapAdapter wraps a zap logger. A nil logger yields zap.NewNop.
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAdapter{sugar: logger.Sugar()}
}

func (z *ZapAdapter) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }
func (z *ZapAdapter) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *ZapAdapter) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *ZapAdapter) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

// With implements Logger.
func (z *ZapAdapter) With(args ...any) Logger {
	return &ZapAdapter{sugar: z.sugar.With(args...)}
}

// Sync flushes buffered entries.
func (z *ZapAdapter) Sync() error {
	return z.sugar.Sync()
}

func adaptZap(logger any) (Logger, bool) {
	if zl, ok := logger.(*zap.Logger); ok {
		return NewZapAdapter(zl), true
	}
	return nil, false
}
