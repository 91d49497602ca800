// Package protobuf provides pipes for Protocol Buffers encoded messages.
//
// Decode needs to know which message type to produce:
//
//	InboundPipes: []agora.Pipe{protobuf.Decode(func() proto.Message {
//	    return &chatpb.Post{}
//	})},
//	OutboundPipes: []agora.Pipe{protobuf.Encode()},
package protobuf

import (
	"context"
	"errors"
	"fmt"

	"github.com/RobertWHurst/agora"
	"google.golang.org/protobuf/proto"
)

// Decode parses a []byte message into the proto.Message returned by
// newMessage.
func Decode(newMessage func() proto.Message) agora.PipeFunc {
	return func(_ context.Context, message any) (any, error) {
		data, ok := message.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte message, got %T", message)
		}
		protoMsg := newMessage()
		if err := proto.Unmarshal(data, protoMsg); err != nil {
			return nil, err
		}
		return protoMsg, nil
	}
}

// Encode marshals a proto.Message into a []byte, written as a binary frame.
func Encode() agora.PipeFunc {
	return func(_ context.Context, message any) (any, error) {
		protoMsg, ok := message.(proto.Message)
		if !ok {
			return nil, errors.New("value must implement proto.Message (generated protobuf struct)")
		}
		return proto.Marshal(protoMsg)
	}
}
