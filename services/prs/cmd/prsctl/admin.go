package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"prsd/services/prs/internal/adminhttp"
	"prsd/services/prs/internal/lease"
)

type apiError struct {
	Error string `json:"error"`
}

// getJSON fetches path from the admin API into dest.
func getJSON(ctx context.Context, opts *globalOptions, path string, query url.Values, dest any) error {
	base, err := url.Parse(strings.TrimRight(opts.admin, "/"))
	if err != nil {
		return fmt.Errorf("invalid admin url: %w", err)
	}
	u := base.JoinPath(path)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	httpClient := &http.Client{
		Timeout:   opts.timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func newLeasesCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "leases [SERVICE]",
		Short: "Show the lease table, or one service's lease",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				var l lease.Lease
				if err := getJSON(ctx, opts, "/v1/leases/"+url.PathEscape(args[0]), nil, &l); err != nil {
					return err
				}
				return writeView(out, opts.output, "lease.tmpl", l)
			}

			var list adminhttp.LeaseList
			if err := getJSON(ctx, opts, "/v1/leases", nil, &list); err != nil {
				return err
			}
			return writeView(out, opts.output, "leases.tmpl", list)
		},
	}
}

func newEventsCommand(opts *globalOptions) *cobra.Command {
	var (
		service string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List journalled lease events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			query := url.Values{}
			if service != "" {
				query.Set("service", service)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			var list adminhttp.EventList
			if err := getJSON(ctx, opts, "/v1/events", query, &list); err != nil {
				return err
			}
			return writeView(cmd.OutOrStdout(), opts.output, "events.tmpl", list)
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "Only show events for this service")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of events (server default when 0)")
	return cmd
}
