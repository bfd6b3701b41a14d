package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/QYUbit/moqsession/pkg/session"
	"github.com/spf13/cobra"
)

func announcedCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "announced [prefix]",
		Short: "List broadcasts announced under a prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}

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

			a := conn.Announced(prefix)
			defer a.Close()

			out := cmd.OutOrStdout()
			for {
				e, err := a.Next(ctx)
				if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
					return nil
				}
				if err != nil {
					return err
				}
				mark := "-"
				if e.Active {
					mark = "+"
				}
				fmt.Fprintf(out, "%s %s\n", mark, e.Path)
			}
		},
	}
}
