package jsonrpc_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHTTPServer(t *testing.T, listener jsonrpc.TransportListener) *httptest.Server {
	t.Helper()
	log := utils.NewNopZapLogger()
	rpc := jsonrpc.NewServer(1, log)
	require.NoError(t, rpc.RegisterMethods(jsonrpc.Method{
		Name:   "starknet_chainId",
		Params: []jsonrpc.Parameter{},
		Handler: func() (string, *jsonrpc.Error) {
			return "0x4b4154414e41", nil
		},
	}))

	srv := httptest.NewServer(jsonrpc.NewHTTP(rpc, log).WithListener(listener))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTP(t *testing.T) {
	listener := new(CountingEventListener)
	srv := newHTTPServer(t, listener)

	tests := map[string]struct {
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		"call": {
			method:     http.MethodPost,
			body:       `{"jsonrpc":"2.0","method":"starknet_chainId","id":1}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"jsonrpc":"2.0","result":"0x4b4154414e41","id":1}`,
		},
		"notification has no body": {
			method:     http.MethodPost,
			body:       `{"jsonrpc":"2.0","method":"starknet_chainId"}`,
			wantStatus: http.StatusOK,
		},
		"health probe on root": {
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
		"unknown path": {
			method:     http.MethodGet,
			path:       "/notfound",
			wantStatus: http.StatusNotFound,
		},
		"method not allowed": {
			method:     http.MethodPut,
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequestWithContext(context.Background(), test.method, srv.URL+test.path,
				strings.NewReader(test.body))
			require.NoError(t, err)
			resp, err := srv.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, test.wantStatus, resp.StatusCode)
			got, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, test.wantBody, string(got))
		})
	}

	// Only POSTs reach the server.
	assert.Len(t, listener.OnNewRequestLogs, 2)
}
