package agora

import "context"

// Pipe transforms a message on its way into or out of a Handler. Each pipe
// receives the output of the previous one. A pipe that returns an error or
// panics stops the chain: inbound messages are dropped, outbound sends are
// aborted and reported.
type Pipe interface {
	Transform(ctx context.Context, message any) (any, error)
}

// PipeFunc is a function adapter that allows ordinary functions to be used as
// pipes.
type PipeFunc func(ctx context.Context, message any) (any, error)

var _ Pipe = PipeFunc(nil)

func (f PipeFunc) Transform(ctx context.Context, message any) (any, error) {
	return f(ctx, message)
}

// runPipes runs message through pipes in order. Either every pipe runs, or the
// chain stops at the first failure and a *PipeError is returned.
func runPipes(ctx context.Context, direction PipeDirection, pipes []Pipe, message any) (any, error) {
	for i, pipe := range pipes {
		err := execWithRecovery(func() error {
			transformed, pipeErr := pipe.Transform(ctx, message)
			if pipeErr != nil {
				return pipeErr
			}
			message = transformed
			return nil
		})
		if err != nil {
			return nil, &PipeError{Direction: direction, Step: i, Err: err}
		}
	}
	return message, nil
}
