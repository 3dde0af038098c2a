package client

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prsd/pkg/prsproto"
	"prsd/services/prs/internal/lease"
	"prsd/services/prs/internal/udp"
)

func startPRS(t *testing.T, start, end uint16) (string, <-chan error) {
	t.Helper()

	table, err := lease.NewTable(start, end, time.Minute)
	require.NoError(t, err)
	srv, err := udp.NewServer("", table, log.New(io.Discard, "", 0))
	require.NoError(t, err)

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, conn) }()
	t.Cleanup(func() {
		cancel()
		conn.Close()
	})
	return conn.LocalAddr().String(), done
}

func newClient(t *testing.T, addr string, opts ...Option) *Client {
	t.Helper()
	c, err := New(addr, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientLifecycle(t *testing.T) {
	addr, _ := startPRS(t, 40000, 40099)
	ctx := context.Background()
	svc := newClient(t, addr)
	browser := newClient(t, addr)

	port, err := svc.RequestPort(ctx, "FT Server")
	require.NoError(t, err)
	assert.Equal(t, uint16(40000), port)

	found, err := browser.LookupPort(ctx, "FT Server")
	require.NoError(t, err)
	assert.Equal(t, port, found)

	require.NoError(t, svc.KeepAlive(ctx, "FT Server", port))
	require.NoError(t, svc.ClosePort(ctx, "FT Server", port))

	_, err = browser.LookupPort(ctx, "FT Server")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestClientStatusErrors(t *testing.T) {
	addr, _ := startPRS(t, 40000, 40000)
	ctx := context.Background()
	c := newClient(t, addr)

	_, err := c.RequestPort(ctx, "A")
	require.NoError(t, err)

	_, err = c.RequestPort(ctx, "A")
	assert.ErrorIs(t, err, ErrServiceInUse)

	_, err = c.RequestPort(ctx, "B")
	assert.ErrorIs(t, err, ErrAllPortsBusy)

	err = c.KeepAlive(ctx, "B", 40000)
	assert.ErrorIs(t, err, ErrServiceNotFound)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "{RESPONSE, B, 40000, SERVICE_NOT_FOUND}", se.Response.String())
	assert.Equal(t, "prs: {RESPONSE, B, 40000, SERVICE_NOT_FOUND}", se.Error())

	resp, err := c.Do(ctx, prsproto.Message{Type: prsproto.Response, ServiceName: "A"})
	require.NoError(t, err)
	assert.Equal(t, prsproto.UndefinedError, resp.Status)
	assert.ErrorIs(t, (&StatusError{Response: resp}), ErrUndefined)
}

func TestClientStop(t *testing.T) {
	addr, done := startPRS(t, 40000, 40010)
	c := newClient(t, addr)

	require.NoError(t, c.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server still running after stop")
	}
}

func TestClientTimesOutWithoutReply(t *testing.T) {
	silent, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	c := newClient(t, silent.LocalAddr().String(), WithTimeout(100*time.Millisecond))
	_, err = c.RequestPort(context.Background(), "SVC1")
	require.Error(t, err)
	var ne net.Error
	require.True(t, errors.As(err, &ne))
	assert.True(t, ne.Timeout())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	c2 := newClient(t, silent.LocalAddr().String(), WithTimeout(5*time.Second))
	_, err = c2.LookupPort(ctx, "SVC1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientRejectsLongNames(t *testing.T) {
	addr, _ := startPRS(t, 40000, 40010)
	c := newClient(t, addr)

	_, err := c.RequestPort(context.Background(), strings.Repeat("n", prsproto.MaxServiceNameLen+1))
	assert.ErrorIs(t, err, prsproto.ErrNameTooLong)
}

func TestNewRejectsBadAddress(t *testing.T) {
	_, err := New("no-port-here")
	assert.Error(t, err)
}

// startSlowServer answers requests one at a time. REQUEST_PORT replies are
// held back for delay; every other kind is answered at once with
// SERVICE_NOT_FOUND.
func startSlowServer(t *testing.T, delay time.Duration) string {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			n, peer, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			req, err := prsproto.Decode(buf[:n])
			if err != nil {
				continue
			}
			resp := prsproto.NewResponse(req.ServiceName, req.Port, prsproto.ServiceNotFound)
			if req.Type == prsproto.RequestPort {
				time.Sleep(delay)
				resp = prsproto.NewResponse(req.ServiceName, 40000, prsproto.Success)
			}
			out, err := prsproto.Encode(resp)
			if err != nil {
				continue
			}
			_, _ = conn.WriteTo(out, peer)
		}
	}()
	return conn.LocalAddr().String()
}

func TestClientIgnoresLateReplyQueuedBeforeNextCall(t *testing.T) {
	addr := startSlowServer(t, 150*time.Millisecond)
	c := newClient(t, addr, WithTimeout(50*time.Millisecond))
	ctx := context.Background()

	_, err := c.RequestPort(ctx, "SVC1")
	var ne net.Error
	require.True(t, errors.As(err, &ne))
	require.True(t, ne.Timeout())

	// The SVC1 reply is sitting in the socket buffer by now.
	time.Sleep(200 * time.Millisecond)

	port, err := c.LookupPort(ctx, "OTHER")
	assert.ErrorIs(t, err, ErrServiceNotFound)
	assert.Equal(t, uint16(0), port)
}

func TestClientIgnoresLateReplyArrivingDuringNextCall(t *testing.T) {
	addr := startSlowServer(t, 150*time.Millisecond)
	c := newClient(t, addr, WithTimeout(50*time.Millisecond))

	_, err := c.RequestPort(context.Background(), "SVC1")
	require.Error(t, err)

	// The server is still sleeping on SVC1, so its reply lands first while
	// this call is waiting.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Do(ctx, prsproto.Message{Type: prsproto.LookupPort, ServiceName: "OTHER", Port: 7})
	require.NoError(t, err)
	assert.Equal(t, "{RESPONSE, OTHER, 7, SERVICE_NOT_FOUND}", resp.String())
}

func TestAnswersMatchesEchoedName(t *testing.T) {
	req := prsproto.Message{Type: prsproto.LookupPort, ServiceName: "FT Server"}

	assert.True(t, answers(req, prsproto.NewResponse("FT Server", 40000, prsproto.Success)))
	assert.True(t, answers(req, prsproto.NewResponse("", 0, prsproto.UndefinedError)))
	assert.False(t, answers(req, prsproto.NewResponse("SVC1", 40000, prsproto.Success)))
	assert.False(t, answers(req, prsproto.NewResponse("", 40000, prsproto.Success)))

	stop := prsproto.Message{Type: prsproto.Stop}
	assert.True(t, answers(stop, prsproto.NewResponse("", 0, prsproto.Success)))
}
