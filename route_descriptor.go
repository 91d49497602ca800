package agora

import (
	"encoding/json"
)

// RouteDescriptor describes a route declared on a Server. Descriptors are
// used for discovery by gateways and tooling. Access them via
// Server.RouteDescriptors().
type RouteDescriptor struct {
	Pattern *Pattern
}

type routeDescriptorJSON struct {
	Pattern string
	Params  []string `json:",omitempty"`
}

// MarshalJSON returns the JSON representation of the route descriptor. The
// parameter names are included for convenience and ignored when decoding.
func (r *RouteDescriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(routeDescriptorJSON{
		Pattern: r.Pattern.String(),
		Params:  r.Pattern.Keys(),
	})
}

// UnmarshalJSON parses the JSON representation of the route descriptor.
func (r *RouteDescriptor) UnmarshalJSON(data []byte) error {
	var fromJSON routeDescriptorJSON
	if err := json.Unmarshal(data, &fromJSON); err != nil {
		return err
	}

	pattern, err := NewPattern(fromJSON.Pattern)
	if err != nil {
		return err
	}
	r.Pattern = pattern

	return nil
}
