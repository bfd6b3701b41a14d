package session

import (
	"context"

	"github.com/QYUbit/moqsession/pkg/race"
	"github.com/QYUbit/moqsession/pkg/setup"
	"github.com/QYUbit/moqsession/pkg/transport"
	"github.com/QYUbit/moqsession/pkg/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/QYUbit/moqsession/pkg/session"

// Connect races the transports for url, runs the setup handshake on a new
// bidirectional stream and returns the running connection. Failures are
// returned as is and never retried here.
func Connect(ctx context.Context, url string, cfg Config) (*Connection, error) {
	cfg = cfg.withDefaults()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "moq.connect", trace.WithAttributes(
		attribute.String("moq.url", url),
		attribute.String("moq.dialect", cfg.Dialect.String()),
	))
	defer span.End()

	fail := func(err error) (*Connection, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	won, err := race.Race(ctx, url, cfg.raceConfig())
	if err != nil {
		return fail(err)
	}
	span.AddEvent("transport ready", trace.WithAttributes(attribute.Bool("moq.fallback", won.Fallback)))

	str, err := won.Session.OpenStream(ctx)
	if err != nil {
		won.Session.CloseWithError(transport.CodeInternal, "open control stream")
		return fail(err)
	}

	// Negotiate blocks on the stream, closing the session unblocks it.
	stop := context.AfterFunc(ctx, func() {
		won.Session.CloseWithError(transport.CodeCancelled, "cancelled")
	})

	r := wire.NewReader(str)
	res, err := setup.Negotiate(str, r, cfg.Dialect, cfg.Logger)
	if !stop() {
		return fail(ctx.Err())
	}
	if err != nil {
		cfg.Metrics.Handshake("failed")
		won.Session.CloseWithError(transport.CodeInternal, "handshake failed")
		return fail(err)
	}
	cfg.Metrics.Handshake(res.Variant.String())
	span.SetAttributes(attribute.Int64("moq.version", int64(res.Version)))

	return New(won.Session, str, r, res, Options{
		URL:      url,
		Fallback: won.Fallback,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	}), nil
}
