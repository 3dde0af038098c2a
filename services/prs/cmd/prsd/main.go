package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"prsd/pkg/bus"
	"prsd/pkg/db"
	"prsd/pkg/telemetry"
	"prsd/services/prs/internal/adminhttp"
	"prsd/services/prs/internal/config"
	"prsd/services/prs/internal/events"
	"prsd/services/prs/internal/journal"
	"prsd/services/prs/internal/lease"
	"prsd/services/prs/internal/udp"
)

const serviceName = "prsd"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.New(os.Stderr, "", log.LstdFlags).Fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	var (
		overrides config.Overrides
		envFiles  []string
	)

	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Port reservation service: leases client ports over UDP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := config.LoadDotEnv(envFiles...); err != nil {
				return err
			}
			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := overrides.Apply(cmd.Flags(), &cfg); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}
			return run(ctx, cfg)
		},
	}

	overrides.Bind(cmd.Flags())
	cmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}()

	metrics := udp.NewMetrics(nil)

	sinks, journalReader, closeSinks, err := openSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	observers := []lease.Observer{metrics}
	if len(sinks) > 0 {
		dispatcher := events.NewDispatcher(cfg.Events.Buffer, logger, sinks...)
		dispatcher.Start(ctx)
		defer dispatcher.Close()
		observers = append(observers, dispatcher)
	}

	table, err := lease.NewTable(
		uint16(cfg.StartPort),
		uint16(cfg.EndPort),
		cfg.KeepAliveTimeout(),
		lease.WithObserver(lease.Observers(observers...)),
	)
	if err != nil {
		return fmt.Errorf("create lease table: %w", err)
	}
	logger.Printf("INFO leasing ports %d-%d, keep-alive timeout %s", cfg.StartPort, cfg.EndPort, cfg.KeepAliveTimeout())

	server, err := udp.NewServer(cfg.ListenAddr(), table, logger, udp.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("create udp server: %w", err)
	}

	var udpReady atomic.Bool
	errCh := make(chan error, 2)
	udpDone := make(chan struct{})

	go func() {
		defer close(udpDone)
		if err := server.Run(ctx, &udpReady); err != nil {
			errCh <- fmt.Errorf("udp: %w", err)
		}
	}()

	if cfg.Admin.Enabled {
		api, err := adminhttp.New(adminhttp.Config{
			Leases:         table,
			Journal:        journalReader,
			Ready:          &udpReady,
			AllowedOrigins: cfg.Admin.AllowedOrigins,
			RateLimit:      cfg.Admin.RateLimit,
		})
		if err != nil {
			return fmt.Errorf("create admin api: %w", err)
		}

		httpServer := &http.Server{
			Addr:              cfg.Admin.Addr,
			Handler:           middleware(api.Routes()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "%s: http shutdown error: %v\n", serviceName, err)
			}
		}()

		logger.Printf("INFO admin http listening on %s", httpServer.Addr)
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-udpDone:
		select {
		case err := <-errCh:
			return err
		default:
		}
		if table.Stopped() {
			logger.Printf("INFO shutting down after STOP request")
		}
		return nil
	case <-ctx.Done():
		<-udpDone
		return nil
	}
}

// openSinks connects the optional event destinations. The returned close
// function releases whatever was opened, in reverse order.
func openSinks(ctx context.Context, cfg config.Config, logger *log.Logger) ([]events.Sink, adminhttp.EventReader, func(), error) {
	var (
		sinks   []events.Sink
		reader  adminhttp.EventReader
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Events.NATSURL != "" {
		b, err := bus.New(cfg.Events.NATSURL, nats.Name(serviceName))
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		closers = append(closers, b.Close)

		sink := events.NewBusSink(b, cfg.Events.SubjectPrefix)
		if err := b.EnsureStream(cfg.Events.Stream, sink.Subjects()); err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("ensure stream %s: %w", cfg.Events.Stream, err)
		}
		sinks = append(sinks, sink)
		logger.Printf("INFO publishing lease events to %s", sink.Subjects())
	}

	if cfg.Events.DBDSN != "" {
		pool, err := db.Open(ctx, cfg.Events.DBDSN)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("open database: %w", err)
		}
		closers = append(closers, pool.Close)

		if err := db.Migrate(ctx, pool); err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("migrate database: %w", err)
		}

		orm, sqlDB, err := db.ORM(pool)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("open orm: %w", err)
		}
		closers = append(closers, func() { _ = sqlDB.Close() })

		store, err := journal.New(pool, orm, map[string]any{
			"start_port":      cfg.StartPort,
			"end_port":        cfg.EndPort,
			"timeout_seconds": cfg.KeepAliveSeconds,
		})
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		sinks = append(sinks, store)
		reader = store
		logger.Printf("INFO journalling lease events to postgres")
	}

	return sinks, reader, closeAll, nil
}
