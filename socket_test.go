package agora_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/RobertWHurst/agora"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionInfo(t *testing.T) {
	parsedURL, err := url.Parse("/rooms/1?token=abc&tag=a&tag=b")
	require.NoError(t, err)
	info := &agora.ConnectionInfo{URL: parsedURL}

	assert.Equal(t, "/rooms/1", info.Path())
	assert.Equal(t, agora.QueryParams{"token": "abc", "tag": "a"}, info.QueryParams())

	var missing *agora.ConnectionInfo
	assert.Equal(t, "", missing.Path())
	assert.Empty(t, missing.QueryParams())
}

func TestSocketValues(t *testing.T) {
	socket := agora.NewSocket(nil, newTestConnection())

	_, ok := socket.Get("user")
	assert.False(t, ok)

	socket.Set("user", "alice")
	value, ok := socket.Get("user")
	assert.True(t, ok)
	assert.Equal(t, "alice", value)

	other := agora.NewSocket(nil, newTestConnection())
	assert.NotEqual(t, socket.ID(), other.ID())
	assert.NotNil(t, socket.Info())
}

func TestSocketClose(t *testing.T) {
	conn := newTestConnection()
	socket := agora.NewSocket(nil, conn)
	assert.False(t, socket.IsClosed())

	require.NoError(t, socket.Close(agora.CloseUnauthorized))
	require.NoError(t, socket.Close(agora.CloseOK), "closing twice is a no-op")

	assert.True(t, socket.IsClosed())
	assert.Error(t, socket.Context().Err())
	<-socket.Done()

	status, reason, source := socket.CloseStatus()
	assert.Equal(t, agora.StatusUnauthorized, status)
	assert.Equal(t, "Unauthorized", reason)
	assert.Equal(t, agora.ServerCloseSource, source)

	_, connStatus, connReason := conn.closedWith()
	assert.Equal(t, agora.StatusUnauthorized, connStatus)
	assert.Equal(t, "Unauthorized", connReason)
}

func TestCloseCodes(t *testing.T) {
	tests := []struct {
		code   agora.CloseCode
		status int
		reason string
	}{
		{agora.CloseOK, 4200, "OK"},
		{agora.CloseCreated, 4201, "Created"},
		{agora.CloseUnauthorized, 4401, "Unauthorized"},
		{agora.CloseAccessDenied, 4403, "Access Denied"},
		{agora.CloseNotFound, 4404, "Not Found"},
		{agora.CloseInternalServerError, 4500, "Internal Server Error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, int(tt.code.Status))
		assert.Equal(t, tt.reason, tt.code.Reason)
	}

	custom := agora.CloseAccessDenied.WithReason("banned")
	assert.Equal(t, agora.StatusAccessDenied, custom.Status)
	assert.Equal(t, "banned", custom.Reason)
	assert.Equal(t, agora.CloseAccessDenied, agora.CloseAccessDenied.WithReason(""))
}

func TestWebSocketConnectionTruncatesCloseReason(t *testing.T) {
	tests := []struct {
		name       string
		reason     string
		wantReason string
	}{
		{
			name:       "short reason",
			reason:     "denied",
			wantReason: "denied",
		},
		{
			name:       "ascii reason",
			reason:     strings.Repeat("x", 200),
			wantReason: strings.Repeat("x", 123),
		},
		{
			name:       "multi-byte character across the limit",
			reason:     strings.Repeat("a", 122) + "é",
			wantReason: strings.Repeat("a", 122),
		},
		{
			name:       "multi-byte characters throughout",
			reason:     strings.Repeat("日", 50),
			wantReason: strings.Repeat("日", 41),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpServer := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
				conn, err := websocket.Accept(res, req, nil)
				if err != nil {
					return
				}
				connection := agora.NewWebSocketConnection(conn)
				_ = connection.Close(agora.StatusAccessDenied, tt.reason)
			}))
			defer httpServer.Close()

			ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
			defer cancel()

			conn, _, err := websocket.Dial(ctx, wsURL(httpServer, "/"), nil)
			require.NoError(t, err)
			defer conn.CloseNow()

			_, _, err = conn.Read(ctx)
			var closeErr websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			assert.Equal(t, agora.StatusAccessDenied, closeErr.Code)
			assert.Equal(t, tt.wantReason, closeErr.Reason)
			assert.True(t, utf8.ValidString(closeErr.Reason))
		})
	}
}

func TestWebSocketConnectionReadWrite(t *testing.T) {
	httpServer := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		conn, err := websocket.Accept(res, req, nil)
		if err != nil {
			return
		}
		connection := agora.NewWebSocketConnection(conn)
		msg, err := connection.Read(req.Context())
		if err != nil {
			return
		}
		_ = connection.Write(req.Context(), msg)
		_ = connection.Close(agora.StatusNormalClosure, "")
	}))
	defer httpServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(httpServer, "/"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, []byte{0xCA, 0xFE}))
	msgType, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageBinary, msgType)
	assert.Equal(t, []byte{0xCA, 0xFE}, data)
}
