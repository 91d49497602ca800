// Package json provides pipes that decode inbound JSON messages and encode
// outbound values as JSON text.
//
//	route := &agora.Route{
//	    Path:          "/rooms/:id",
//	    Handler:       newRoom,
//	    InboundPipes:  []agora.Pipe{json.Decode()},
//	    OutboundPipes: []agora.Pipe{json.Encode()},
//	}
package json

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RobertWHurst/agora"
)

// M is a convenience alias for building JSON objects.
type M = map[string]any

// Decode parses a []byte or string message into a generic value (map, slice,
// string, float64, bool or nil).
func Decode() agora.PipeFunc {
	return func(_ context.Context, message any) (any, error) {
		data, err := rawBytes(message)
		if err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, err
		}
		return value, nil
	}
}

// DecodeInto parses a []byte or string message into a new T. The pipe yields
// a T value, not a pointer.
func DecodeInto[T any]() agora.PipeFunc {
	return func(_ context.Context, message any) (any, error) {
		data, err := rawBytes(message)
		if err != nil {
			return nil, err
		}
		var value T
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, err
		}
		return value, nil
	}
}

// Encode marshals any value into a JSON string, written as a text frame.
// json.RawMessage values are passed through unchanged.
func Encode() agora.PipeFunc {
	return func(_ context.Context, message any) (any, error) {
		if raw, ok := message.(json.RawMessage); ok {
			return string(raw), nil
		}
		data, err := json.Marshal(message)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
}

func rawBytes(message any) ([]byte, error) {
	switch v := message.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case json.RawMessage:
		return v, nil
	default:
		return nil, fmt.Errorf("expected []byte or string message, got %T", message)
	}
}
