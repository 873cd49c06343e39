//go:build !nogpu

package gpu

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// logPtr stores the logger handed down from the root package. Defaults to
// a silent logger until posevis.SetLogger propagates one.
var logPtr atomic.Pointer[slog.Logger]

func init() {
	logPtr.Store(slog.New(discardHandler{}))
}

// SetLogger accepts the logger propagated from the root package.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(discardHandler{})
	}
	logPtr.Store(l)
}

func logger() *slog.Logger { return logPtr.Load() }

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
