package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/QYUbit/moqsession/pkg/media"
	"github.com/QYUbit/moqsession/pkg/reload"
	"github.com/spf13/cobra"
)

func subscribeCmd(opts *options) *cobra.Command {
	var (
		priority uint8
		dump     bool
	)

	cmd := &cobra.Command{
		Use:   "subscribe <broadcast> <track>",
		Short: "Print the groups of a track, reconnecting on failure",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, name := args[0], args[1]

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := opts.logger()
			m, stopMetrics := opts.serveMetrics(logger)
			defer stopMetrics()

			cfg, err := opts.config(logger, m)
			if err != nil {
				return err
			}

			r := reload.New(reload.Config{URL: opts.url, Session: cfg})
			defer r.Close()

			for {
				conn, err := r.Connection(ctx)
				if err != nil {
					return nil
				}

				track := conn.Consume(path).Subscribe(name, priority)
				err = printTrack(ctx, cmd.OutOrStdout(), track, dump)
				track.Close()

				switch {
				case ctx.Err() != nil:
					return nil
				case err == nil:
					logger.Info("track ended")
					return nil
				}
				logger.Warn("track failed", "error", err)

				select {
				case <-conn.Done():
				case <-ctx.Done():
					return nil
				}
			}
		},
	}

	cmd.Flags().Uint8Var(&priority, "priority", 0, "Subscriber priority")
	cmd.Flags().BoolVar(&dump, "dump", false, "Hex dump every frame")
	return cmd
}

// printTrack returns nil when the track ends normally.
func printTrack(ctx context.Context, w io.Writer, t *media.Track, dump bool) error {
	for {
		g, err := t.NextGroup(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		var frames, size int
		for {
			payload, err := g.ReadFrame(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				fmt.Fprintf(w, "group %d aborted after %d frames: %v\n", g.ID(), frames, err)
				break
			}
			if dump {
				fmt.Fprintf(w, "group %d frame %d\n%s", g.ID(), frames, hex.Dump(payload))
			}
			frames++
			size += len(payload)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintf(w, "group %d: %d frames, %d bytes\n", g.ID(), frames, size)
	}
}
