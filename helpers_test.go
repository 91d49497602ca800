package agora_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/RobertWHurst/agora"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

var errConnectionClosed = errors.New("connection closed")

// testConnection is an in-memory SocketConnection. Messages queued with
// clientSend are read by the server in order; clientClose and fail end the
// read loop after the queue drains.
type testConnection struct {
	incoming chan *agora.SocketMessage
	written  chan *agora.SocketMessage
	closed   chan struct{}

	mu          sync.Mutex
	readErr     error
	closeOnce   sync.Once
	closeCalled bool
	closeStatus agora.Status
	closeReason string
}

var _ agora.SocketConnection = &testConnection{}

func newTestConnection() *testConnection {
	return &testConnection{
		incoming: make(chan *agora.SocketMessage, 64),
		written:  make(chan *agora.SocketMessage, 64),
		closed:   make(chan struct{}),
	}
}

func (c *testConnection) Read(ctx context.Context) (*agora.SocketMessage, error) {
	select {
	case msg, ok := <-c.incoming:
		if !ok {
			c.mu.Lock()
			defer c.mu.Unlock()
			return nil, c.readErr
		}
		return msg, nil
	case <-c.closed:
		return nil, errConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *testConnection) Write(ctx context.Context, msg *agora.SocketMessage) error {
	select {
	case <-c.closed:
		return errConnectionClosed
	default:
	}
	c.written <- msg
	return nil
}

func (c *testConnection) Close(status agora.Status, reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCalled = true
		c.closeStatus = status
		c.closeReason = reason
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

func (c *testConnection) clientSend(data string) {
	c.incoming <- &agora.SocketMessage{Type: agora.MessageText, Data: []byte(data)}
}

func (c *testConnection) clientClose(status agora.Status, reason string) {
	c.mu.Lock()
	c.readErr = websocket.CloseError{Code: status, Reason: reason}
	c.mu.Unlock()
	close(c.incoming)
}

func (c *testConnection) fail(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	close(c.incoming)
}

func (c *testConnection) closedWith() (bool, agora.Status, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalled, c.closeStatus, c.closeReason
}

// readWritten returns the next message the server wrote to the connection.
func (c *testConnection) readWritten(t *testing.T) *agora.SocketMessage {
	t.Helper()
	select {
	case msg := <-c.written:
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a written message")
		return nil
	}
}

// requireNothingWritten asserts no message is written within a short window.
func (c *testConnection) requireNothingWritten(t *testing.T) {
	t.Helper()
	select {
	case msg := <-c.written:
		t.Fatalf("expected no message, got %q", string(msg.Data))
	case <-time.After(50 * time.Millisecond):
	}
}

// connect drives conn through server on its own goroutine. The returned
// channel closes once HandleConnection returns.
func connect(t *testing.T, server *agora.Server, rawURL string) (*testConnection, <-chan struct{}) {
	t.Helper()
	parsedURL, err := url.Parse(rawURL)
	require.NoError(t, err)

	conn := newTestConnection()
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.HandleConnection(&agora.ConnectionInfo{
			RemoteAddr: "127.0.0.1:1234",
			URL:        parsedURL,
		}, conn)
	}()
	return conn, done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for the connection to finish")
	}
}

// waitPool waits until the handler for path has n sockets.
func waitPool(t *testing.T, server *agora.Server, path string, n int) *agora.Handler {
	t.Helper()
	var handler *agora.Handler
	require.Eventually(t, func() bool {
		h, ok := server.Lookup(path)
		if !ok || h.Len() != n {
			return false
		}
		handler = h
		return true
	}, testTimeout, 5*time.Millisecond)
	return handler
}

// recordingFilter collects every error reported to it.
type recordingFilter struct {
	mu     sync.Mutex
	errors []error
}

func (f *recordingFilter) HandleError(err error, _ *agora.Socket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, err)
}

func (f *recordingFilter) all() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	errs := make([]error, len(f.errors))
	copy(errs, f.errors)
	return errs
}

func (f *recordingFilter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errors)
}

func newTestServer(t *testing.T, config agora.Config) *agora.Server {
	t.Helper()
	server, err := agora.NewServer(config)
	require.NoError(t, err)
	return server
}

func newLocalListener() (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustParseURL(rawURL string) *url.URL {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return parsedURL
}
