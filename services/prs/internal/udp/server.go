package udp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"prsd/pkg/prsproto"
	"prsd/services/prs/internal/lease"
)

const tracerName = "prsd/services/prs/internal/udp"

// WithMetrics records request and transport metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) {
		if t != nil {
			s.tracer = t
		}
	}
}

func NewServer(addr string, table *lease.Table, logger *log.Logger, opts ...Option) (*Server, error) {
	if table == nil {
		return nil, errors.New("lease table is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		addr:   addr,
		table:  table,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run binds the service port and serves until STOP is handled, ctx is
// cancelled, or the socket fails.
func (s *Server) Run(ctx context.Context, ready *atomic.Bool) error {
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	defer conn.Close()

	if ready != nil {
		ready.Store(true)
		defer ready.Store(false)
	}
	s.logger.Printf("INFO prs listening on %s", conn.LocalAddr())
	return s.Serve(ctx, conn)
}

// Serve runs the receive loop on an already bound socket. Exactly one
// datagram is handled at a time. The caller owns conn, although it is
// closed early when ctx is cancelled to unblock the pending read.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	retry := newReceiveBackoff()
	buf := make([]byte, maxDatagram)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("receive: %w", err)
			}
			s.metrics.transportError("receive")
			wait := retry.NextBackOff()
			s.logger.Printf("WARN receive failed, retrying in %s: %v", wait, err)
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()

		s.handleDatagram(ctx, conn, peer, buf[:n])

		if s.table.Stopped() {
			s.logger.Printf("INFO stop requested by %s", peer)
			return nil
		}
	}
}

// newReceiveBackoff paces retries after socket read failures so a broken
// socket does not spin the loop.
func newReceiveBackoff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     receiveRetryMin,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         receiveRetryMax,
	}
	b.Reset()
	return b
}

func (s *Server) handleDatagram(ctx context.Context, conn net.PacketConn, peer net.Addr, data []byte) {
	start := time.Now()
	_, span := s.tracer.Start(ctx, "prs.handle", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	if peer != nil {
		span.SetAttributes(attribute.String("net.peer.addr", peer.String()))
	}

	var resp prsproto.Message
	req, err := prsproto.Decode(data)
	if err != nil {
		s.metrics.protocolError()
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		if peer == nil {
			s.logger.Printf("WARN dropping malformed datagram: %v", err)
			return
		}
		s.logger.Printf("WARN malformed datagram from %s: %v", peer, err)
		resp = prsproto.NewResponse("", 0, prsproto.UndefinedError)
	} else {
		resp = s.table.Handle(req)
		s.metrics.observeRequest(req.Type, resp.Status, time.Since(start))
		span.SetAttributes(
			attribute.String("prs.kind", req.Type.String()),
			attribute.String("prs.service", req.ServiceName),
			attribute.Int("prs.port", int(resp.Port)),
			attribute.String("prs.status", resp.Status.String()),
		)
		s.logger.Printf("DEBUG %s -> %s (%s)", req, resp, peer)
	}

	out, err := prsproto.Encode(resp)
	if err != nil {
		span.RecordError(err)
		s.logger.Printf("ERROR encode response %s: %v", resp, err)
		return
	}
	if _, err := conn.WriteTo(out, peer); err != nil {
		s.metrics.transportError("send")
		span.RecordError(err)
		s.logger.Printf("WARN send %s to %s: %v", resp, peer, err)
	}
}
