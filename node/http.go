package node

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/metrics"
	"github.com/NethermindEth/katana/rpc"
	"github.com/NethermindEth/katana/service"
	"github.com/NethermindEth/katana/utils"
	"github.com/rs/cors"
	"github.com/sourcegraph/conc"
)

type httpService struct {
	srv      *http.Server
	listener net.Listener
}

var _ service.Service = (*httpService)(nil)

func (h *httpService) Run(ctx context.Context) error {
	errCh := make(chan error)
	defer close(errCh)

	var wg conc.WaitGroup
	defer wg.Wait()
	wg.Go(func() {
		if err := h.srv.Serve(h.listener); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	})

	select {
	case <-ctx.Done():
		return h.srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

func newHTTPService(listener net.Listener, handler http.Handler) *httpService {
	return &httpService{
		srv: &http.Server{
			Addr:    listener.Addr().String(),
			Handler: handler,
			// ReadTimeout also sets ReadHeaderTimeout and IdleTimeout.
			ReadTimeout: 30 * time.Second,
		},
		listener: listener,
	}
}

// makeRPCOverHTTP serves JSON-RPC at the root and the feeder gateway under
// rpc.FeederGatewayPath. Any origin may call either.
func makeRPCOverHTTP(listener net.Listener, jsonrpcServer *jsonrpc.Server, gateway http.Handler,
	withMetrics bool, log utils.SimpleLogger,
) *httpService {
	httpHandler := jsonrpc.NewHTTP(jsonrpcServer, log)
	if withMetrics {
		httpHandler.WithListener(makeHTTPMetrics())
	}
	mux := http.NewServeMux()
	mux.Handle("/", httpHandler)
	mux.Handle(rpc.FeederGatewayPath, gateway)
	return newHTTPService(listener, cors.AllowAll().Handler(mux))
}

func makeRPCOverWebsocket(listener net.Listener, jsonrpcServer *jsonrpc.Server,
	withMetrics bool, log utils.SimpleLogger,
) *httpService {
	wsHandler := jsonrpc.NewWebsocket(jsonrpcServer, log).WithOriginPatterns("*")
	if withMetrics {
		wsHandler.WithListener(makeWSMetrics())
	}
	mux := http.NewServeMux()
	mux.Handle("/", wsHandler)
	return newHTTPService(listener, mux)
}

func makeMetrics(listener net.Listener) *httpService {
	mux := http.NewServeMux()
	mux.Handle(metrics.Path, metrics.Handler())
	return newHTTPService(listener, mux)
}
