package agora

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// Standard errors returned or reported by the server and its handlers.
var (
	ErrRouteNotFound      = errors.New("no route matches the connection path")
	ErrAccessDenied       = errors.New("access denied")
	ErrHandlerDestroyed   = errors.New("handler has been destroyed")
	ErrSocketClosed       = errors.New("socket is closed")
	ErrSocketNotPooled    = errors.New("socket is not attached to the handler")
	ErrUnsupportedMessage = errors.New("unsupported outbound message type")
)

// CloseError terminates a connection with the given close code. Stages of the
// connection pipeline return it when the connection must be closed rather
// than reported to the error filter.
type CloseError struct {
	Code CloseCode
	Err  error
}

func (e *CloseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("close %d (%s): %s", e.Code.Status, e.Code.Reason, e.Err)
	}
	return fmt.Sprintf("close %d (%s)", e.Code.Status, e.Code.Reason)
}

func (e *CloseError) Unwrap() error {
	return e.Err
}

// PipeDirection identifies which chain a pipe belongs to.
type PipeDirection string

const (
	InboundPipe  PipeDirection = "inbound"
	OutboundPipe PipeDirection = "outbound"
)

// PipeError is returned when a step of a pipe chain fails. Step is the
// zero-based index of the failing pipe.
type PipeError struct {
	Direction PipeDirection
	Step      int
	Err       error
}

func (e *PipeError) Error() string {
	return fmt.Sprintf("%s pipe %d failed: %s", e.Direction, e.Step, e.Err)
}

func (e *PipeError) Unwrap() error {
	return e.Err
}

// HookError wraps a failure returned by, or recovered from, an application
// hook.
type HookError struct {
	Hook string
	Path string
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook failed on %q: %s", e.Hook, e.Path, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// PanicError carries a value recovered from a panic along with the stack at
// the point of recovery.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// execWithRecovery runs fn and converts a panic into a *PanicError.
func execWithRecovery(fn func() error) (err error) {
	defer func() {
		if maybeErr := recover(); maybeErr != nil {
			stack := string(debug.Stack())
			stackLines := strings.Split(stack, "\n")
			if len(stackLines) > 6 {
				stack = strings.Join(stackLines[6:], "\n")
			}
			err = &PanicError{Value: maybeErr, Stack: stack}
		}
	}()
	return fn()
}
