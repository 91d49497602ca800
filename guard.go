package agora

import (
	"context"
	"fmt"
)

// Guard decides whether a connection may proceed. Guards run before a socket
// is admitted by the server, and again before it joins a Handler's pool.
// Returning false, returning an error, or panicking all reject the
// connection. When an error is given its message becomes the close reason.
type Guard interface {
	CanActivate(ctx context.Context, socket *Socket, info *ConnectionInfo) (bool, error)
}

// GuardFunc is a function adapter that allows ordinary functions to be used
// as guards.
type GuardFunc func(ctx context.Context, socket *Socket, info *ConnectionInfo) (bool, error)

var _ Guard = GuardFunc(nil)

func (f GuardFunc) CanActivate(ctx context.Context, socket *Socket, info *ConnectionInfo) (bool, error) {
	return f(ctx, socket, info)
}

// MessageGuard decides whether an inbound message, after the inbound pipes
// have transformed it, may reach the Handler's OnMessage hook. Rejected
// messages go to OnMessageDenied instead.
type MessageGuard interface {
	CanActivateMessage(ctx context.Context, socket *Socket, message any) (bool, error)
}

// MessageGuardFunc is a function adapter that allows ordinary functions to be
// used as message guards.
type MessageGuardFunc func(ctx context.Context, socket *Socket, message any) (bool, error)

var _ MessageGuard = MessageGuardFunc(nil)

func (f MessageGuardFunc) CanActivateMessage(ctx context.Context, socket *Socket, message any) (bool, error) {
	return f(ctx, socket, message)
}

// runGuards evaluates guards strictly in order and stops at the first
// rejection. It returns nil when every guard passes, otherwise a *CloseError
// carrying the access denied code.
func runGuards(ctx context.Context, guards []Guard, socket *Socket, info *ConnectionInfo) error {
	for i, guard := range guards {
		var canActivate bool
		err := execWithRecovery(func() error {
			var guardErr error
			canActivate, guardErr = guard.CanActivate(ctx, socket, info)
			return guardErr
		})
		if err != nil {
			return &CloseError{
				Code: CloseAccessDenied.WithReason(err.Error()),
				Err:  fmt.Errorf("%w: guard %d: %w", ErrAccessDenied, i, err),
			}
		}
		if !canActivate {
			return &CloseError{
				Code: CloseAccessDenied,
				Err:  fmt.Errorf("%w: guard %d", ErrAccessDenied, i),
			}
		}
	}
	return nil
}

// runMessageGuards evaluates message guards in order. A guard error counts as
// a rejection and is returned for diagnostics only.
func runMessageGuards(ctx context.Context, guards []MessageGuard, socket *Socket, message any) (bool, error) {
	for i, guard := range guards {
		var canActivate bool
		err := execWithRecovery(func() error {
			var guardErr error
			canActivate, guardErr = guard.CanActivateMessage(ctx, socket, message)
			return guardErr
		})
		if err != nil {
			return false, fmt.Errorf("%w: message guard %d: %w", ErrAccessDenied, i, err)
		}
		if !canActivate {
			return false, nil
		}
	}
	return true, nil
}
