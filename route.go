package agora

import "sync"

// Route declares a path pattern and how to build the Handler for connections
// that resolve to it. Routes are matched in declaration order and the first
// match wins.
type Route struct {
	// Path is the route pattern, e.g. "", "/rooms/:id" or "lobby".
	Path string

	// Handler creates the hooks for each new Handler instance.
	Handler HandlerFactory

	// Guards run, in order, before a socket joins the Handler's pool.
	Guards []Guard

	// MessageGuards run, in order, on each inbound message after InboundPipes.
	MessageGuards []MessageGuard

	// InboundPipes transform messages received from clients.
	InboundPipes []Pipe

	// OutboundPipes transform messages sent with Send or Broadcast.
	OutboundPipes []Pipe

	patternOnce sync.Once
	pattern     *Pattern
	patternErr  error
}

// Pattern returns the compiled pattern of the route. The pattern is compiled
// once; an invalid Path yields the same error on every call.
func (r *Route) Pattern() (*Pattern, error) {
	r.patternOnce.Do(func() {
		r.pattern, r.patternErr = NewPattern(r.Path)
	})
	return r.pattern, r.patternErr
}

// MatchRoute resolves a normalized path against routes. It returns the first
// route, in declaration order, whose pattern matches along with the bound
// parameters. Routes with invalid patterns never match.
func MatchRoute(routes []*Route, path string) (*Route, Params, bool) {
	for _, route := range routes {
		if route == nil {
			continue
		}
		pattern, err := route.Pattern()
		if err != nil {
			continue
		}
		if params, ok := pattern.Match(path); ok {
			return route, params, true
		}
	}
	return nil, nil, false
}
