// Command moqwatch connects to a media relay for manual interop testing.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "moqwatch",
		Short: "Inspect and exercise a media relay",
		Long: `moqwatch opens a session with a relay over WebTransport, raw QUIC or the
WebSocket fallback and lists announcements, subscribes to tracks or
publishes a test broadcast.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.register(rootCmd)

	rootCmd.AddCommand(
		announcedCmd(opts),
		subscribeCmd(opts),
		publishTestCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}
