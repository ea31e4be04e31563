package jsonrpc

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NethermindEth/katana/utils"
	"github.com/coder/websocket"
)

const closeReasonMaxBytes = 125

type Websocket struct {
	rpc        *Server
	log        utils.SimpleLogger
	connParams *WebsocketConnParams
	listener   TransportListener
	// originPatterns are passed to websocket.Accept; empty means same-origin only.
	originPatterns []string
}

func NewWebsocket(rpc *Server, log utils.SimpleLogger) *Websocket {
	return &Websocket{
		rpc:        rpc,
		log:        log,
		connParams: DefaultWebsocketConnParams(),
		listener:   &SelectiveListener{},
	}
}

// WithConnParams sanity checks and applies the provided params.
func (ws *Websocket) WithConnParams(p *WebsocketConnParams) *Websocket {
	ws.connParams = p
	return ws
}

// WithListener registers a TransportListener
func (ws *Websocket) WithListener(listener TransportListener) *Websocket {
	ws.listener = listener
	return ws
}

// WithOriginPatterns accepts cross-origin connections from hosts matching patterns.
func (ws *Websocket) WithOriginPatterns(patterns ...string) *Websocket {
	ws.originPatterns = patterns
	return ws
}

// ServeHTTP processes an HTTP request and upgrades it to a websocket connection.
// The connection's entire "lifetime" is spent in this function.
func (ws *Websocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: ws.originPatterns})
	if err != nil {
		ws.log.Errorw("Failed to upgrade connection", "err", err)
		return
	}
	ws.listener.OnConnection(true)
	defer ws.listener.OnConnection(false)

	// Subscriptions opened on this connection end with ctx.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	wsc := newWebsocketConn(ctx, conn, ws.connParams)

	for {
		var msg io.Reader
		_, msg, err = wsc.conn.Reader(wsc.ctx)
		if err != nil {
			break
		}
		ws.listener.OnNewRequest("any")
		if err = ws.rpc.HandleReadWriter(wsc.ctx, &readerConn{websocketConn: wsc, r: msg}); err != nil {
			break
		}
		// From websocket docs: "Read to EOF otherwise connection will hang."
		if _, err = io.Copy(io.Discard, msg); err != nil {
			break
		}
	}

	if status := websocket.CloseStatus(err); status != -1 {
		ws.log.Debugw("Client closed websocket connection", "status", status, "remote", r.RemoteAddr)
		return
	}

	ws.log.Warnw("Closing websocket connection", "remote", r.RemoteAddr, "err", err)
	errString := err.Error()
	if len(errString) > closeReasonMaxBytes {
		errString = errString[:closeReasonMaxBytes]
	}
	if err = wsc.conn.Close(websocket.StatusInternalError, errString); err != nil {
		// The connection may already be gone, for example after a timeout.
		errString = err.Error()
		if !strings.Contains(errString, "already wrote close") && !strings.Contains(errString, "WebSocket closed") {
			ws.log.Errorw("Failed to close websocket connection", "err", errString)
		}
	}
}

type WebsocketConnParams struct {
	// Maximum message size allowed.
	ReadLimit int64
	// Maximum time to write a message.
	WriteDuration time.Duration
}

func DefaultWebsocketConnParams() *WebsocketConnParams {
	return &WebsocketConnParams{
		ReadLimit:     32 * utils.Megabyte,
		WriteDuration: 5 * time.Second,
	}
}

type websocketConn struct {
	conn   *websocket.Conn
	ctx    context.Context
	params *WebsocketConnParams
}

var _ Conn = (*websocketConn)(nil)

func newWebsocketConn(ctx context.Context, conn *websocket.Conn, params *WebsocketConnParams) *websocketConn {
	conn.SetReadLimit(params.ReadLimit)
	return &websocketConn{
		conn:   conn,
		ctx:    ctx,
		params: params,
	}
}

// Write sends p as one text message and returns the number of bytes of p sent, not
// including the header. It is safe for concurrent use.
func (wsc *websocketConn) Write(p []byte) (int, error) {
	writeCtx, writeCancel := context.WithTimeout(wsc.ctx, wsc.params.WriteDuration)
	defer writeCancel()
	if err := wsc.conn.Write(writeCtx, websocket.MessageText, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (wsc *websocketConn) Equal(other Conn) bool {
	switch o := other.(type) {
	case *websocketConn:
		return wsc == o
	case *readerConn:
		return wsc == o.websocketConn
	}
	return false
}

// readerConn pairs the connection with the reader of the message being served.
type readerConn struct {
	*websocketConn
	r io.Reader
}

func (c *readerConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *readerConn) Equal(other Conn) bool {
	return c.websocketConn.Equal(other)
}
