package jsonrpc_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/utils"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The caller is responsible for closing the connection.
func testConnection(t *testing.T, ctx context.Context) *websocket.Conn {
	methods := []jsonrpc.Method{
		{
			Name:   "test_echo",
			Params: []jsonrpc.Parameter{{Name: "msg"}},
			Handler: func(msg string) (string, *jsonrpc.Error) {
				return msg, nil
			},
		},
		{
			Name: "test_push",
			Handler: func(ctx context.Context) (bool, *jsonrpc.Error) {
				conn, ok := jsonrpc.ConnFromContext(ctx)
				if !ok {
					return false, jsonrpc.Err(jsonrpc.MethodNotFound, nil)
				}
				go func() {
					_, _ = conn.Write([]byte(`{"jsonrpc":"2.0","method":"test_pushed","params":{}}`))
				}()
				return true, nil
			},
		},
	}
	rpc := jsonrpc.NewServer(1, utils.NewNopZapLogger())
	require.NoError(t, rpc.RegisterMethods(methods...))

	// Server
	srv := httptest.NewServer(jsonrpc.NewWebsocket(rpc, utils.NewNopZapLogger()))
	t.Cleanup(srv.Close)

	// Client
	conn, resp, err := websocket.Dial(ctx, srv.URL, nil) //nolint:bodyclose // websocket package closes resp.Body for us.
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	return conn
}

func TestHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	conn := testConnection(t, ctx)

	msg := `{"jsonrpc" : "2.0", "method" : "test_echo", "params" : [ "abc123" ], "id" : 1}`
	err := conn.Write(ctx, websocket.MessageText, []byte(msg))
	require.NoError(t, err)

	want := `{"jsonrpc":"2.0","result":"abc123","id":1}`
	_, got, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, string(got))

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
}

func TestHandlerWritesToConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	conn := testConnection(t, ctx)

	msg := `{"jsonrpc" : "2.0", "method" : "test_push", "id" : 1}`
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(msg)))

	got := map[string]bool{}
	for range 2 {
		_, raw, err := conn.Read(ctx)
		require.NoError(t, err)
		got[string(raw)] = true
	}
	assert.True(t, got[`{"jsonrpc":"2.0","result":true,"id":1}`])
	assert.True(t, got[`{"jsonrpc":"2.0","method":"test_pushed","params":{}}`])

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
}
