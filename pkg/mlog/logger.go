// Package mlog defines the structured logger every component of the session
// layer logs through.
package mlog

type Logger interface {
	Info(s string, keyValues ...any)
	Error(s string, keyValues ...any)
	Debug(s string, keyValues ...any)
	Warn(s string, keyValues ...any)
}

type nop struct{}

func (nop) Info(string, ...any)  {}
func (nop) Error(string, ...any) {}
func (nop) Debug(string, ...any) {}
func (nop) Warn(string, ...any)  {}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return nop{}
}

// OrNop returns l, or a discarding logger if l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return nop{}
	}
	return l
}

// With returns a logger that prepends keyValues to every call.
func With(l Logger, keyValues ...any) Logger {
	return &withLogger{base: OrNop(l), kv: keyValues}
}

type withLogger struct {
	base Logger
	kv   []any
}

func (w *withLogger) merge(kv []any) []any {
	out := make([]any, 0, len(w.kv)+len(kv))
	out = append(out, w.kv...)
	return append(out, kv...)
}

func (w *withLogger) Info(s string, kv ...any)  { w.base.Info(s, w.merge(kv)...) }
func (w *withLogger) Error(s string, kv ...any) { w.base.Error(s, w.merge(kv)...) }
func (w *withLogger) Debug(s string, kv ...any) { w.base.Debug(s, w.merge(kv)...) }
func (w *withLogger) Warn(s string, kv ...any)  { w.base.Warn(s, w.merge(kv)...) }
