// Package text provides pipes converting between raw frames and strings.
package text

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/RobertWHurst/agora"
)

// BytesToString converts a []byte message into a string. Messages that are
// already strings pass through. Invalid UTF-8 is rejected, which drops the
// message when used as an inbound pipe.
func BytesToString() agora.PipeFunc {
	return func(_ context.Context, message any) (any, error) {
		switch v := message.(type) {
		case string:
			return v, nil
		case []byte:
			if !utf8.Valid(v) {
				return nil, fmt.Errorf("message is not valid UTF-8")
			}
			return string(v), nil
		default:
			return nil, fmt.Errorf("expected []byte or string message, got %T", message)
		}
	}
}

// StringToBytes converts a string message into a []byte, so it is written as
// a binary frame.
func StringToBytes() agora.PipeFunc {
	return func(_ context.Context, message any) (any, error) {
		switch v := message.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		default:
			return nil, fmt.Errorf("expected string or []byte message, got %T", message)
		}
	}
}
