package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"prsd/pkg/bus"
	"prsd/services/prs/internal/events"
)

func newWatchCommand(opts *globalOptions) *cobra.Command {
	var (
		natsURL string
		prefix  string
		durable string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream lease events from NATS until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b, err := bus.New(natsURL, nats.Name("prsctl"))
			if err != nil {
				return fmt.Errorf("connect nats: %w", err)
			}
			defer b.Close()

			out := cmd.OutOrStdout()
			subject := events.NewBusSink(nil, prefix).Subjects()
			sub, err := b.Subscribe(ctx, subject, durable, func(_ context.Context, data []byte) error {
				var rec events.Record
				if err := json.Unmarshal(data, &rec); err != nil {
					return err
				}
				if opts.output == outputTable {
					_, err := fmt.Fprintf(out, "%s\t%s\t%s\t%d\n", rec.At.Format(time.RFC3339), rec.Type, rec.ServiceName, rec.Port)
					return err
				}
				return writeStructured(out, opts.output, rec)
			})
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", subject, err)
			}
			defer sub.Close()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats", envOr("PRS_NATS_URL", nats.DefaultURL), "NATS server URL")
	cmd.Flags().StringVar(&prefix, "prefix", envOr("PRS_NATS_SUBJECT_PREFIX", events.DefaultSubjectPrefix), "Subject prefix lease events are published under")
	cmd.Flags().StringVar(&durable, "durable", "", "Durable consumer name (empty only sees new events)")
	return cmd
}
