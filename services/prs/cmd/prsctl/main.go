package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globalOptions struct {
	server  string
	admin   string
	timeout time.Duration
	output  string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "prsctl",
		Short:         "Client for the port reservation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateOutput(opts.output)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("PRS_SERVER", "127.0.0.1:30000"), "Reservation service UDP address")
	cmd.PersistentFlags().StringVar(&opts.admin, "admin", envOr("PRS_ADMIN_URL", "http://127.0.0.1:8080"), "Base URL of the admin HTTP API")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 3*time.Second, "How long to wait for a reply")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "Output format: table, json, or yaml")

	cmd.AddCommand(newRequestCommand(opts))
	cmd.AddCommand(newKeepAliveCommand(opts))
	cmd.AddCommand(newCloseCommand(opts))
	cmd.AddCommand(newLookupCommand(opts))
	cmd.AddCommand(newStopCommand(opts))
	cmd.AddCommand(newSendCommand(opts))
	cmd.AddCommand(newLeasesCommand(opts))
	cmd.AddCommand(newEventsCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
