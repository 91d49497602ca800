package agora

import (
	"log/slog"
)

// ErrorFilter is the last line of containment for failures that are not
// handled locally. Implementations should not panic; the server recovers if
// they do, but the failure is lost.
type ErrorFilter interface {
	HandleError(err error, socket *Socket)
}

// ErrorFilterFunc adapts an ordinary function into an ErrorFilter.
type ErrorFilterFunc func(err error, socket *Socket)

var _ ErrorFilter = ErrorFilterFunc(nil)

func (f ErrorFilterFunc) HandleError(err error, socket *Socket) {
	f(err, socket)
}

// LogErrorFilter is the default ErrorFilter. It logs every error it receives
// and keeps no state. A nil Logger logs through slog.Default().
type LogErrorFilter struct {
	Logger *slog.Logger
}

var _ ErrorFilter = LogErrorFilter{}

func (f LogErrorFilter) HandleError(err error, socket *Socket) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if socket != nil {
		logger.Error("websocket error", "error", err, "socket", socket.ID(), "path", socket.Info().Path())
		return
	}
	logger.Error("websocket error", "error", err)
}

// reportError hands err to filter, swallowing anything the filter panics
// with.
func reportError(filter ErrorFilter, err error, socket *Socket) {
	if err == nil || filter == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	filter.HandleError(err, socket)
}
