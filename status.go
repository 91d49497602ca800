package agora

import "github.com/coder/websocket"

// Status represents a WebSocket close status code. Agora uses the private-use
// range (4000-4999) for its own close codes, and re-exports the RFC 6455 codes
// it reports for transport level closures.
type Status = websocket.StatusCode

// WebSocket close status codes
const (
	StatusNormalClosure   Status = websocket.StatusNormalClosure   // 1000
	StatusGoingAway       Status = websocket.StatusGoingAway       // 1001
	StatusNoStatusRcvd    Status = websocket.StatusNoStatusRcvd    // 1005
	StatusAbnormalClosure Status = websocket.StatusAbnormalClosure // 1006
	StatusInternalError   Status = websocket.StatusInternalError   // 1011
)

// Private-use close status codes sent by the server when it terminates a
// connection.
const (
	StatusOK                  Status = 4200
	StatusCreated             Status = 4201
	StatusUnauthorized        Status = 4401
	StatusAccessDenied        Status = 4403
	StatusNotFound            Status = 4404
	StatusInternalServerError Status = 4500
)

// CloseCode pairs a close status with the reason text sent alongside it.
type CloseCode struct {
	Status Status
	Reason string
}

// Close codes used when the server terminates a connection.
var (
	CloseOK                  = CloseCode{Status: StatusOK, Reason: "OK"}
	CloseCreated             = CloseCode{Status: StatusCreated, Reason: "Created"}
	CloseUnauthorized        = CloseCode{Status: StatusUnauthorized, Reason: "Unauthorized"}
	CloseAccessDenied        = CloseCode{Status: StatusAccessDenied, Reason: "Access Denied"}
	CloseNotFound            = CloseCode{Status: StatusNotFound, Reason: "Not Found"}
	CloseInternalServerError = CloseCode{Status: StatusInternalServerError, Reason: "Internal Server Error"}
)

// WithReason returns a copy of the close code carrying a different reason.
// An empty reason keeps the default.
func (c CloseCode) WithReason(reason string) CloseCode {
	if reason == "" {
		return c
	}
	return CloseCode{Status: c.Status, Reason: reason}
}

// CloseSource indicates whether a connection close was initiated by the client
// or the server.
type CloseSource int

const (
	ClientCloseSource CloseSource = iota
	ServerCloseSource
)
