package main

import (
	"context"
	"errors"
	"io"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/QYUbit/moqsession/pkg/media"
	"github.com/QYUbit/moqsession/pkg/mlog"
	"github.com/QYUbit/moqsession/pkg/session"
	"github.com/spf13/cobra"
)

func publishTestCmd(opts *options) *cobra.Command {
	var (
		interval time.Duration
		frames   int
	)

	cmd := &cobra.Command{
		Use:   "publish-test <broadcast>",
		Short: "Publish a broadcast whose tracks carry timestamps",
		Long: `publish-test announces a broadcast and serves any requested track. Every
interval a new group is started holding the given number of frames, each
the current Unix time in milliseconds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := opts.logger()
			m, stopMetrics := opts.serveMetrics(logger)
			defer stopMetrics()

			cfg, err := opts.config(logger, m)
			if err != nil {
				return err
			}
			conn, err := session.Connect(ctx, opts.url, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			b := media.NewBroadcast()
			defer b.Close()
			if err := conn.Publish(path, b); err != nil {
				return err
			}
			logger.Info("publishing", "broadcast", path)

			for {
				req, err := b.Requested(ctx)
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return nil
				}
				if err != nil {
					return err
				}
				logger.Info("track requested", "track", req.Track.Name)
				go serveClock(ctx, req.Track, interval, frames, logger)
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Time between groups")
	cmd.Flags().IntVar(&frames, "frames", 1, "Frames per group")
	return cmd
}

func serveClock(ctx context.Context, t *media.Track, interval time.Duration, frames int, logger mlog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer t.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Done():
			logger.Info("track closed", "track", t.Name, "error", t.Err())
			return
		case <-ticker.C:
		}

		g, err := t.AppendGroup()
		if err != nil {
			return
		}
		for i := 0; i < frames; i++ {
			now := strconv.FormatInt(time.Now().UnixMilli(), 10)
			if err := g.WriteFrame([]byte(now)); err != nil {
				break
			}
		}
		g.Close()
	}
}
