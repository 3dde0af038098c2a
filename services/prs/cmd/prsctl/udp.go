package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"prsd/pkg/prsproto"
	"prsd/services/prs/client"
)

func dial(opts *globalOptions) (*client.Client, error) {
	return client.New(opts.server, client.WithTimeout(opts.timeout))
}

func withClient(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, c *client.Client) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := dial(opts)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

// reply prints the server's answer. A non-SUCCESS status is printed and
// then returned as the command error.
func reply(cmd *cobra.Command, opts *globalOptions, resp prsproto.Message, err error) error {
	var statusErr *client.StatusError
	if errors.As(err, &statusErr) {
		resp = statusErr.Response
	} else if err != nil {
		return err
	}
	if werr := writeMessage(cmd.OutOrStdout(), opts.output, resp); werr != nil {
		return werr
	}
	return err
}

func parsePort(raw string) (uint16, error) {
	port, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", raw)
	}
	return uint16(port), nil
}

func newRequestCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "request SERVICE",
		Short: "Reserve the lowest free port for a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) error {
				port, err := c.RequestPort(ctx, args[0])
				return reply(cmd, opts, prsproto.NewResponse(args[0], port, prsproto.Success), err)
			})
		},
	}
}

func newKeepAliveCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keepalive SERVICE PORT",
		Short: "Renew a lease",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[1])
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) error {
				err := c.KeepAlive(ctx, args[0], port)
				return reply(cmd, opts, prsproto.NewResponse(args[0], port, prsproto.Success), err)
			})
		},
	}
}

func newCloseCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "close SERVICE PORT",
		Short: "Release a lease",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[1])
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) error {
				err := c.ClosePort(ctx, args[0], port)
				return reply(cmd, opts, prsproto.NewResponse(args[0], port, prsproto.Success), err)
			})
		},
	}
}

func newLookupCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup SERVICE",
		Short: "Find the port leased to a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) error {
				port, err := c.LookupPort(ctx, args[0])
				return reply(cmd, opts, prsproto.NewResponse(args[0], port, prsproto.Success), err)
			})
		},
	}
}

func newStopCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the service to shut down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) error {
				err := c.Stop(ctx)
				return reply(cmd, opts, prsproto.NewResponse("", 0, prsproto.Success), err)
			})
		},
	}
}

func newSendCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send KIND [SERVICE] [PORT]",
		Short: "Send one raw message and print the reply as received",
		Long:  "KIND is one of REQUEST_PORT, KEEP_ALIVE, CLOSE_PORT, LOOKUP_PORT, STOP.",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := prsproto.ParseMessageType(strings.ToUpper(args[0]))
			if err != nil {
				return err
			}
			req := prsproto.Message{Type: kind}
			if len(args) > 1 {
				req.ServiceName = args[1]
			}
			if len(args) > 2 {
				if req.Port, err = parsePort(args[2]); err != nil {
					return err
				}
			}
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Do(ctx, req)
				if err != nil {
					return err
				}
				return writeMessage(cmd.OutOrStdout(), opts.output, resp)
			})
		},
	}
}
