package blockchain

import "time"

type EventListener interface {
	OnRead(method string)
	OnStore(blockNumber uint64, took time.Duration)
}

type SelectiveListener struct {
	OnReadCb  func(method string)
	OnStoreCb func(blockNumber uint64, took time.Duration)
}

func (l *SelectiveListener) OnRead(method string) {
	if l.OnReadCb != nil {
		l.OnReadCb(method)
	}
}

func (l *SelectiveListener) OnStore(blockNumber uint64, took time.Duration) {
	if l.OnStoreCb != nil {
		l.OnStoreCb(blockNumber, took)
	}
}
