package builder

import (
	"time"

	"github.com/NethermindEth/katana/core"
)

type EventListener interface {
	OnBlockSealed(header *core.Header, took time.Duration)
	OnBlockAborted(number uint64)
	OnTransactionExecuted(reverted bool)
	OnTransactionDropped()
}

type SelectiveListener struct {
	OnBlockSealedCb         func(header *core.Header, took time.Duration)
	OnBlockAbortedCb        func(number uint64)
	OnTransactionExecutedCb func(reverted bool)
	OnTransactionDroppedCb  func()
}

func (l *SelectiveListener) OnBlockSealed(header *core.Header, took time.Duration) {
	if l.OnBlockSealedCb != nil {
		l.OnBlockSealedCb(header, took)
	}
}

func (l *SelectiveListener) OnBlockAborted(number uint64) {
	if l.OnBlockAbortedCb != nil {
		l.OnBlockAbortedCb(number)
	}
}

func (l *SelectiveListener) OnTransactionExecuted(reverted bool) {
	if l.OnTransactionExecutedCb != nil {
		l.OnTransactionExecutedCb(reverted)
	}
}

func (l *SelectiveListener) OnTransactionDropped() {
	if l.OnTransactionDroppedCb != nil {
		l.OnTransactionDroppedCb()
	}
}
