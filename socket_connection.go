package agora

import (
	"context"
	"unicode/utf8"

	"github.com/coder/websocket"
)

// MessageType distinguishes text frames from binary frames.
type MessageType = websocket.MessageType

const (
	MessageText   MessageType = websocket.MessageText
	MessageBinary MessageType = websocket.MessageBinary
)

// maxCloseReasonLen is the largest close reason a close frame can carry.
const maxCloseReasonLen = 123

// SocketMessage is a single frame read from or written to a connection.
type SocketMessage struct {
	Type MessageType
	Data []byte
}

// SocketConnection is the transport beneath a Socket. The server only needs
// to read frames, write frames, and close the connection, which lets
// frameworks with their own WebSocket implementation drive it through
// Server.HandleConnection.
//
// Close must be safe to call while another goroutine is blocked in Read, and
// must cause that Read to return an error.
type SocketConnection interface {
	Read(ctx context.Context) (*SocketMessage, error)
	Write(ctx context.Context, msg *SocketMessage) error
	Close(status Status, reason string) error
}

// WebSocketConnection is a SocketConnection implementation that wraps
// github.com/coder/websocket.Conn. This is the connection type used by the
// server when handling HTTP WebSocket upgrades.
type WebSocketConnection struct {
	webSocketConnection *websocket.Conn
}

var _ SocketConnection = &WebSocketConnection{}

// NewWebSocketConnection creates a WebSocketConnection from a
// github.com/coder/websocket.Conn.
func NewWebSocketConnection(websocketConnection *websocket.Conn) *WebSocketConnection {
	return &WebSocketConnection{
		webSocketConnection: websocketConnection,
	}
}

// Read reads the next message from the WebSocket connection. Blocks until a
// message arrives or an error occurs.
func (c *WebSocketConnection) Read(ctx context.Context) (*SocketMessage, error) {
	messageType, data, err := c.webSocketConnection.Read(ctx)
	if err != nil {
		return nil, err
	}

	return &SocketMessage{
		Type: messageType,
		Data: data,
	}, nil
}

// Write sends a message to the WebSocket connection.
func (c *WebSocketConnection) Write(ctx context.Context, msg *SocketMessage) error {
	return c.webSocketConnection.Write(ctx, msg.Type, msg.Data)
}

// Close closes the WebSocket connection with the given status code and
// reason. Reasons longer than a close frame allows are truncated on a UTF-8
// character boundary.
func (c *WebSocketConnection) Close(status Status, reason string) error {
	return c.webSocketConnection.Close(status, truncateCloseReason(reason))
}

func truncateCloseReason(reason string) string {
	if len(reason) <= maxCloseReasonLen {
		return reason
	}
	end := maxCloseReasonLen
	for end > 0 && !utf8.RuneStart(reason[end]) {
		end--
	}
	return reason[:end]
}
