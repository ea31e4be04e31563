package jsonrpc_test

import (
	"sync"
	"time"

	"github.com/NethermindEth/katana/jsonrpc"
)

type handledCall struct {
	method string
	took   time.Duration
}

type failedCall struct {
	method string
	err    *jsonrpc.Error
}

// CountingEventListener records every event it sees.
type CountingEventListener struct {
	mu                    sync.Mutex
	OnNewRequestLogs      []string
	OnConnectionLogs      []bool
	OnRequestHandledCalls []handledCall
	OnRequestFailedCalls  []failedCall
}

func NewCountingEventListener() *CountingEventListener {
	return &CountingEventListener{OnNewRequestLogs: []string{}}
}

func (l *CountingEventListener) OnNewRequest(method string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.OnNewRequestLogs = append(l.OnNewRequestLogs, method)
}

func (l *CountingEventListener) OnConnection(opened bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.OnConnectionLogs = append(l.OnConnectionLogs, opened)
}

func (l *CountingEventListener) OnRequestHandled(method string, took time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.OnRequestHandledCalls = append(l.OnRequestHandledCalls, handledCall{method: method, took: took})
}

func (l *CountingEventListener) OnRequestFailed(method string, err *jsonrpc.Error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.OnRequestFailedCalls = append(l.OnRequestFailedCalls, failedCall{method: method, err: err})
}

func (l *CountingEventListener) connections() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool{}, l.OnConnectionLogs...)
}
