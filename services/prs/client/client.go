// Package client speaks the port reservation datagram protocol. It sends one
// request per call and waits for one reply; resending after a timeout is left
// to the caller. A reply that arrives after its call gave up is discarded
// rather than handed to the next call.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"prsd/pkg/prsproto"
)

const defaultTimeout = 3 * time.Second

var (
	ErrServiceInUse    = errors.New("service already holds a port")
	ErrAllPortsBusy    = errors.New("all ports are busy")
	ErrServiceNotFound = errors.New("service not found")
	ErrUndefined       = errors.New("undefined server error")
)

// StatusError is returned when the server answers with a non-SUCCESS status.
// It unwraps to one of the Err* sentinels.
type StatusError struct {
	Response prsproto.Message
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("prs: %s", e.Response)
}

func (e *StatusError) Unwrap() error {
	switch e.Response.Status {
	case prsproto.ServiceInUse:
		return ErrServiceInUse
	case prsproto.AllPortsBusy:
		return ErrAllPortsBusy
	case prsproto.ServiceNotFound:
		return ErrServiceNotFound
	default:
		return ErrUndefined
	}
}

// Client talks to one reservation server over its own UDP socket. Calls are
// serialised so each reply is matched to the request that caused it.
type Client struct {
	server  net.Addr
	timeout time.Duration

	mu   sync.Mutex
	conn net.PacketConn
}

type Option func(*Client)

// WithTimeout bounds how long a call waits for its reply when ctx has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New resolves addr (host:port) and opens a local socket.
func New(addr string, opts ...Option) (*Client, error) {
	server, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("open client socket: %w", err)
	}
	c := &Client{server: server, timeout: defaultTimeout, conn: conn}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.conn.Close()
}

// RequestPort asks for the lowest free port under name.
func (c *Client) RequestPort(ctx context.Context, name string) (uint16, error) {
	resp, err := c.call(ctx, prsproto.Message{Type: prsproto.RequestPort, ServiceName: name})
	if err != nil {
		return 0, err
	}
	return resp.Port, nil
}

// KeepAlive renews the lease name holds on port.
func (c *Client) KeepAlive(ctx context.Context, name string, port uint16) error {
	_, err := c.call(ctx, prsproto.Message{Type: prsproto.KeepAlive, ServiceName: name, Port: port})
	return err
}

// ClosePort releases the lease name holds on port.
func (c *Client) ClosePort(ctx context.Context, name string, port uint16) error {
	_, err := c.call(ctx, prsproto.Message{Type: prsproto.ClosePort, ServiceName: name, Port: port})
	return err
}

// LookupPort resolves the port currently leased to name.
func (c *Client) LookupPort(ctx context.Context, name string) (uint16, error) {
	resp, err := c.call(ctx, prsproto.Message{Type: prsproto.LookupPort, ServiceName: name})
	if err != nil {
		return 0, err
	}
	return resp.Port, nil
}

// Stop asks the server to shut down after replying.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.call(ctx, prsproto.Message{Type: prsproto.Stop})
	return err
}

func (c *Client) call(ctx context.Context, req prsproto.Message) (prsproto.Message, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return prsproto.Message{}, err
	}
	if resp.Status != prsproto.Success {
		return resp, &StatusError{Response: resp}
	}
	return resp, nil
}

// Do sends req and returns whatever RESPONSE comes back, without interpreting
// its status.
func (c *Client) Do(ctx context.Context, req prsproto.Message) (prsproto.Message, error) {
	data, err := prsproto.Encode(req)
	if err != nil {
		return prsproto.Message{}, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.drain()

	if err := c.conn.SetDeadline(deadline); err != nil {
		return prsproto.Message{}, fmt.Errorf("set deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := c.conn.WriteTo(data, c.server); err != nil {
		return prsproto.Message{}, fmt.Errorf("send %s: %w", req.Type, err)
	}

	buf := make([]byte, 512)
	for {
		n, from, err := c.conn.ReadFrom(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return prsproto.Message{}, ctxErr
			}
			return prsproto.Message{}, fmt.Errorf("await reply to %s: %w", req.Type, err)
		}
		if !sameAddr(from, c.server) {
			continue
		}
		resp, err := prsproto.Decode(buf[:n])
		if err != nil {
			return prsproto.Message{}, err
		}
		if resp.Type != prsproto.Response {
			return prsproto.Message{}, fmt.Errorf("expected RESPONSE, got %s", resp.Type)
		}
		if !answers(req, resp) {
			continue
		}
		return resp, nil
	}
}

// drainWindow is how long drain waits for a datagram that is already queued.
const drainWindow = time.Millisecond

// drain discards replies left over from earlier calls that gave up waiting.
// Caller holds c.mu.
func (c *Client) drain() {
	buf := make([]byte, 512)
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(drainWindow)); err != nil {
			return
		}
		if _, _, err := c.conn.ReadFrom(buf); err != nil {
			return
		}
	}
}

// answers reports whether resp can be the reply to req. The server echoes
// the request's service name, except for a datagram it could not decode,
// which it answers with an empty UNDEFINED_ERROR.
func answers(req, resp prsproto.Message) bool {
	if resp.ServiceName == req.ServiceName {
		return true
	}
	return resp.ServiceName == "" && resp.Port == 0 && resp.Status == prsproto.UndefinedError
}

func sameAddr(a, b net.Addr) bool {
	ua, ok1 := a.(*net.UDPAddr)
	ub, ok2 := b.(*net.UDPAddr)
	if !ok1 || !ok2 {
		return a.String() == b.String()
	}
	if ua.Port != ub.Port {
		return false
	}
	if ub.IP == nil || ub.IP.IsUnspecified() {
		return true
	}
	return ua.IP.Equal(ub.IP)
}
