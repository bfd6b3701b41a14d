package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/QYUbit/moqsession/pkg/metrics"
	"github.com/QYUbit/moqsession/pkg/mlog"
	"github.com/QYUbit/moqsession/pkg/mlog/hclogadapter"
	"github.com/QYUbit/moqsession/pkg/mlog/slogadapter"
	"github.com/QYUbit/moqsession/pkg/race"
	"github.com/QYUbit/moqsession/pkg/session"
	"github.com/QYUbit/moqsession/pkg/setup"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type options struct {
	url         string
	dialect     string
	fallbackURL string
	noFallback  bool
	headStart   time.Duration
	logLevel    string
	logFormat   string
	metricsAddr string
}

func (o *options) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.url, "url", "u", "https://cdn.moq.dev/anon", "Relay URL (https://, http:// with fingerprint, or moqt://)")
	f.StringVar(&o.dialect, "dialect", "auto", "Handshake dialect: auto, lite-bytes or draft14-parity")
	f.StringVar(&o.fallbackURL, "fallback-url", "", "URL for the WebSocket fallback (default: --url)")
	f.BoolVar(&o.noFallback, "no-fallback", false, "Disable the WebSocket fallback")
	f.DurationVar(&o.headStart, "head-start", 0, "Head start of the native transport (default 200ms)")
	f.StringVar(&o.logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	f.StringVar(&o.logFormat, "log-format", "text", "Log format: text or json")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func (o *options) logger() mlog.Logger {
	if o.logFormat == "json" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
			level = slog.LevelInfo
		}
		h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		return slogadapter.New(slog.New(h))
	}
	return hclogadapter.New(hclog.New(&hclog.LoggerOptions{
		Name:   "moqwatch",
		Level:  hclog.LevelFromString(o.logLevel),
		Output: os.Stderr,
	}))
}

// serveMetrics starts the metrics endpoint when requested. The returned
// function stops it.
func (o *options) serveMetrics(logger mlog.Logger) (*metrics.Metrics, func()) {
	if o.metricsAddr == "" {
		return nil, func() {}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: o.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", o.metricsAddr)

	return m, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func (o *options) config(logger mlog.Logger, m *metrics.Metrics) (session.Config, error) {
	dialect, err := resolveDialect(o.dialect, o.url)
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		Dialect:          dialect,
		FallbackDisabled: o.noFallback,
		FallbackURL:      o.fallbackURL,
		HeadStart:        o.headStart,
		Memory:           race.DefaultMemory,
		Logger:           logger,
		Metrics:          m,
	}, nil
}

// resolveDialect maps the --dialect flag. "auto" guesses from the relay
// host: Cloudflare's relay speaks draft 14 with parity parameters.
func resolveDialect(name, rawURL string) (setup.Dialect, error) {
	switch name {
	case "lite-bytes", "lite":
		return setup.DialectLiteBytes, nil
	case "draft14-parity", "draft14":
		return setup.DialectDraft14Parity, nil
	case "auto", "":
		u, err := url.Parse(rawURL)
		if err != nil {
			return 0, fmt.Errorf("invalid relay url: %w", err)
		}
		if strings.Contains(u.Hostname(), "cloudflare") {
			return setup.DialectDraft14Parity, nil
		}
		return setup.DialectLiteBytes, nil
	}
	return 0, fmt.Errorf("unknown dialect %q", name)
}
