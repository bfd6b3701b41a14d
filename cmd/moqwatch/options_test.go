package main

import (
	"testing"

	"github.com/QYUbit/moqsession/pkg/race"
	"github.com/QYUbit/moqsession/pkg/setup"
	"github.com/stretchr/testify/require"
)

func TestResolveDialect(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		url     string
		want    setup.Dialect
	}{
		{"auto lite relay", "auto", "https://cdn.moq.dev/anon", setup.DialectLiteBytes},
		{"auto cloudflare relay", "auto", "https://relay-next.cloudflare.mediaoverquic.com", setup.DialectDraft14Parity},
		{"auto raw quic", "", "moqt://localhost:4443", setup.DialectLiteBytes},
		{"explicit lite", "lite-bytes", "https://relay-next.cloudflare.mediaoverquic.com", setup.DialectLiteBytes},
		{"explicit draft", "draft14", "https://cdn.moq.dev/anon", setup.DialectDraft14Parity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveDialect(tt.dialect, tt.url)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDialectRejectsUnknown(t *testing.T) {
	_, err := resolveDialect("draft7", "https://cdn.moq.dev/anon")
	require.Error(t, err)

	_, err = resolveDialect("auto", "://bad")
	require.Error(t, err)
}

func TestConfigCarriesFlags(t *testing.T) {
	opts := &options{
		url:         "https://relay-next.cloudflare.mediaoverquic.com",
		dialect:     "auto",
		fallbackURL: "https://fallback.test/moq",
		noFallback:  true,
		logLevel:    "debug",
	}
	cfg, err := opts.config(opts.logger(), nil)
	require.NoError(t, err)
	require.Equal(t, setup.DialectDraft14Parity, cfg.Dialect)
	require.True(t, cfg.FallbackDisabled)
	require.Equal(t, "https://fallback.test/moq", cfg.FallbackURL)
	require.NotNil(t, cfg.Logger)
	require.Same(t, race.DefaultMemory, cfg.Memory)
}
