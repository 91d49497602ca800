// Package msgpack provides pipes for MessagePack encoded messages. Inbound
// frames are decoded with Decode, outbound values are encoded into binary
// frames with Encode.
package msgpack

import (
	"context"
	"fmt"

	"github.com/RobertWHurst/agora"
	"github.com/vmihailenco/msgpack/v5"
)

// Decode parses a []byte message into a generic value. Maps decode as
// map[string]any.
func Decode() agora.PipeFunc {
	return func(_ context.Context, message any) (any, error) {
		data, ok := message.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte message, got %T", message)
		}
		var value any
		if err := msgpack.Unmarshal(data, &value); err != nil {
			return nil, err
		}
		return value, nil
	}
}

// DecodeInto parses a []byte message into a new T.
func DecodeInto[T any]() agora.PipeFunc {
	return func(_ context.Context, message any) (any, error) {
		data, ok := message.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte message, got %T", message)
		}
		var value T
		if err := msgpack.Unmarshal(data, &value); err != nil {
			return nil, err
		}
		return value, nil
	}
}

// Encode marshals any value into a MessagePack []byte, written as a binary
// frame.
func Encode() agora.PipeFunc {
	return func(_ context.Context, message any) (any, error) {
		return msgpack.Marshal(message)
	}
}
