// Package agora routes long-lived WebSocket connections to stateful handlers
// shared by every connection on the same path.
//
// A Server maps each connection's path to a Handler. The first connection to
// a path creates the Handler from the first matching Route; later connections
// to the same path join its socket pool. When the last socket leaves, the
// Handler is destroyed and the next connection starts a fresh one.
//
// # Key Features
//
//   - Path routing with literal segments and named parameters
//   - One Handler per path, with Send and Broadcast over its socket pool
//   - Ordered guard chains on connection admission and per route
//   - Ordered inbound and outbound pipe chains for message transforms
//   - Failure containment: hooks, pipes and guards never affect other sockets
//   - A topic keyed Notifier for events that cross Handlers
//
// # Quick Start
//
//	server := agora.MustNewServer(agora.Config{
//	    Port: 3030,
//	    Routes: []*agora.Route{
//	        {
//	            Path:         "/rooms/:id",
//	            Handler:      newRoom,
//	            InboundPipes: []agora.Pipe{text.BytesToString()},
//	        },
//	    },
//	})
//
//	func newRoom(h *agora.Handler) agora.Hooks {
//	    return agora.Hooks{
//	        OnMessage: func(ctx context.Context, socket *agora.Socket, message any) error {
//	            return h.Broadcast(ctx, message)
//	        },
//	    }
//	}
//
//	server.ListenAndServe(ctx)
//
// # Close Codes
//
// The server closes connections it refuses with private-use codes: 4403
// when a guard denies access and 4404 when no route matches. A failing
// post-connect hook closes the socket with 4500.
//
// # Pipes
//
// Inbound messages enter the inbound pipes as []byte. A failing inbound pipe
// drops that one message silently. Outbound values must come out of the
// outbound pipes as a string (text frame) or []byte (binary frame); a failing
// outbound pipe aborts the send and is reported to the ErrorFilter.
package agora
