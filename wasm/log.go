package wasm

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the decoder's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	logger.CompareAndSwap(nil, zap.NewNop())
	return logger.Load()
}

// SetLogger configures the decoder's logger. It is safe to call while modules
// are being decoded; decodes already in flight may log to either logger. A nil
// logger restores the no-op default.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}
