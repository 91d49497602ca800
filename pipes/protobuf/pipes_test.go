package protobuf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestEncodeThenDecode(t *testing.T) {
	encoded, err := Encode()(context.Background(), wrapperspb.String("hello"))
	require.NoError(t, err)
	require.IsType(t, []byte{}, encoded)

	decode := Decode(func() proto.Message { return &wrapperspb.StringValue{} })
	decoded, err := decode(context.Background(), encoded)
	require.NoError(t, err)

	value, ok := decoded.(*wrapperspb.StringValue)
	require.True(t, ok)
	assert.Equal(t, "hello", value.GetValue())
}

func TestEncodeRejectsNonProtoValues(t *testing.T) {
	_, err := Encode()(context.Background(), "plain string")
	assert.Error(t, err)
}

func TestDecodeRejectsInvalidInput(t *testing.T) {
	decode := Decode(func() proto.Message { return &wrapperspb.StringValue{} })

	_, err := decode(context.Background(), "not bytes")
	assert.Error(t, err)

	_, err = decode(context.Background(), []byte{0x0a, 0xff})
	assert.Error(t, err)
}
