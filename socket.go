package agora

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
)

// ConnectionInfo contains information about a WebSocket connection taken from
// the upgrade request. Used by HandleConnection for custom connection
// implementations.
type ConnectionInfo struct {
	RemoteAddr string
	Headers    http.Header
	URL        *url.URL
}

// Path returns the raw request path, or an empty string if the URL is unset.
func (i *ConnectionInfo) Path() string {
	if i == nil || i.URL == nil {
		return ""
	}
	return i.URL.Path
}

// QueryParams returns the request query as a flat map. Only the first value of
// each key is kept.
func (i *ConnectionInfo) QueryParams() QueryParams {
	queryParams := QueryParams{}
	if i == nil || i.URL == nil {
		return queryParams
	}
	for key, values := range i.URL.Query() {
		if len(values) == 0 {
			queryParams[key] = ""
			continue
		}
		queryParams[key] = values[0]
	}
	return queryParams
}

// Socket is a handle to one client connection. A socket belongs to at most
// one Handler's pool at a time.
type Socket struct {
	id         string
	info       *ConnectionInfo
	connection SocketConnection

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	closeMu     sync.Mutex
	closed      bool
	closeStatus Status
	closeReason string
	closeSource CloseSource

	valuesMu         sync.Mutex
	associatedValues map[string]any
}

// NewSocket creates a socket over the given connection. Most applications
// never call this directly; the server creates sockets for accepted
// connections.
func NewSocket(info *ConnectionInfo, connection SocketConnection) *Socket {
	return newSocket(context.Background(), info, connection)
}

func newSocket(ctx context.Context, info *ConnectionInfo, connection SocketConnection) *Socket {
	if info == nil {
		info = &ConnectionInfo{}
	}
	socketCtx, cancel := context.WithCancel(ctx)
	return &Socket{
		id:               uuid.NewString(),
		info:             info,
		connection:       connection,
		ctx:              socketCtx,
		cancel:           cancel,
		closeStatus:      StatusNormalClosure,
		associatedValues: map[string]any{},
	}
}

// ID returns the unique identifier of the socket.
func (s *Socket) ID() string {
	return s.id
}

// Info returns the connection information captured at upgrade time.
func (s *Socket) Info() *ConnectionInfo {
	return s.info
}

// Context returns a context that is cancelled once the socket closes. Closing
// the socket is the only way to abort work in flight for it.
func (s *Socket) Context() context.Context {
	return s.ctx
}

// Done is closed once the socket closes.
func (s *Socket) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Set stores a value on the socket for the lifetime of the connection.
func (s *Socket) Set(key string, value any) {
	s.valuesMu.Lock()
	defer s.valuesMu.Unlock()
	s.associatedValues[key] = value
}

// Get retrieves a value previously stored with Set.
func (s *Socket) Get(key string) (any, bool) {
	s.valuesMu.Lock()
	defer s.valuesMu.Unlock()
	value, ok := s.associatedValues[key]
	return value, ok
}

// IsClosed reports whether the socket has been closed by either side.
func (s *Socket) IsClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

// CloseStatus returns the status, reason, and initiator of the close. The
// values are only meaningful once IsClosed reports true.
func (s *Socket) CloseStatus() (Status, string, CloseSource) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closeStatus, s.closeReason, s.closeSource
}

// Close closes the socket with one of the server close codes.
func (s *Socket) Close(code CloseCode) error {
	return s.CloseWithStatus(code.Status, code.Reason)
}

// CloseWithStatus closes the socket with an arbitrary status and reason.
// Closing an already closed socket is a no-op.
func (s *Socket) CloseWithStatus(status Status, reason string) error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeStatus = status
	s.closeReason = reason
	s.closeSource = ServerCloseSource
	s.closeMu.Unlock()

	var err error
	if s.connection != nil {
		err = s.connection.Close(status, reason)
	}
	s.cancel()
	return err
}

// markClosed records a close that was initiated by the client or caused by a
// transport failure. It returns false if the socket was already closed.
func (s *Socket) markClosed(status Status, reason string) bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.closeStatus = status
	s.closeReason = reason
	s.closeSource = ClientCloseSource
	s.cancel()
	return true
}

func (s *Socket) read() (*SocketMessage, error) {
	return s.connection.Read(s.ctx)
}

// write transmits a fully transformed outbound value. Strings become text
// frames and byte slices become binary frames.
func (s *Socket) write(ctx context.Context, value any) error {
	var msg *SocketMessage
	switch v := value.(type) {
	case string:
		msg = &SocketMessage{Type: MessageText, Data: []byte(v)}
	case []byte:
		msg = &SocketMessage{Type: MessageBinary, Data: v}
	case *SocketMessage:
		msg = v
	case SocketMessage:
		msg = &v
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedMessage, value)
	}

	if s.IsClosed() {
		return ErrSocketClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.connection.Write(ctx, msg)
}
