package mlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	lines [][]any
}

func (r *recorder) Info(s string, kv ...any)  { r.lines = append(r.lines, append([]any{s}, kv...)) }
func (r *recorder) Error(s string, kv ...any) { r.lines = append(r.lines, append([]any{s}, kv...)) }
func (r *recorder) Debug(s string, kv ...any) { r.lines = append(r.lines, append([]any{s}, kv...)) }
func (r *recorder) Warn(s string, kv ...any)  { r.lines = append(r.lines, append([]any{s}, kv...)) }

func TestWithPrependsKeyValues(t *testing.T) {
	rec := &recorder{}
	l := With(rec, "conn", "abc")

	l.Warn("late response", "request", 4)
	l.Info("closed")

	require.Equal(t, [][]any{
		{"late response", "conn", "abc", "request", 4},
		{"closed", "conn", "abc"},
	}, rec.lines)
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))
	OrNop(nil).Error("discarded", "k", "v")

	rec := &recorder{}
	require.Same(t, rec, OrNop(rec))
}
