package jsonrpc

import "time"

// TransportListener observes a transport: every message it reads off the wire and,
// for websockets, every connection it accepts or loses.
type TransportListener interface {
	OnNewRequest(method string)
	OnConnection(opened bool)
}

// EventListener observes the requests the server dispatches.
type EventListener interface {
	OnNewRequest(method string)
	OnRequestHandled(method string, took time.Duration)
	OnRequestFailed(method string, err *Error)
}

// SelectiveListener implements both listeners with optional callbacks.
type SelectiveListener struct {
	OnNewRequestCb     func(method string)
	OnConnectionCb     func(opened bool)
	OnRequestHandledCb func(method string, took time.Duration)
	OnRequestFailedCb  func(method string, err *Error)
}

var (
	_ EventListener     = (*SelectiveListener)(nil)
	_ TransportListener = (*SelectiveListener)(nil)
)

func (l *SelectiveListener) OnNewRequest(method string) {
	if l.OnNewRequestCb != nil {
		l.OnNewRequestCb(method)
	}
}

func (l *SelectiveListener) OnConnection(opened bool) {
	if l.OnConnectionCb != nil {
		l.OnConnectionCb(opened)
	}
}

func (l *SelectiveListener) OnRequestHandled(method string, took time.Duration) {
	if l.OnRequestHandledCb != nil {
		l.OnRequestHandledCb(method, took)
	}
}

func (l *SelectiveListener) OnRequestFailed(method string, err *Error) {
	if l.OnRequestFailedCb != nil {
		l.OnRequestFailedCb(method, err)
	}
}
