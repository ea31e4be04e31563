package mempool

import (
	"container/heap"

	"github.com/NethermindEth/katana/core/felt"
)

// account holds the transactions of one sender. ready always starts at nonce and has no
// gaps; anything past a gap waits in future.
type account struct {
	address felt.Felt
	// nonce is the next nonce the chain expects once every taken transaction is sealed.
	nonce uint64
	// inflight are taken into the open block and not sealed yet.
	inflight []*PendingTx
	ready    []*PendingTx
	future   map[uint64]*PendingTx
	// index is the position in the ready queue, -1 when the account has nothing ready.
	index int
}

func newAccount(address *felt.Felt, nonce uint64) *account {
	return &account{address: *address, nonce: nonce, future: make(map[uint64]*PendingTx), index: -1}
}

func (a *account) next() uint64 {
	return a.nonce + uint64(len(a.ready))
}

func (a *account) empty() bool {
	return len(a.inflight) == 0 && len(a.ready) == 0 && len(a.future) == 0
}

// readyQueue is a heap of accounts keyed by the priority of their first ready transaction,
// so a sender's transactions always leave in nonce order.
type readyQueue []*account

var _ heap.Interface = (*readyQueue)(nil)

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	return q[i].ready[0].Priority.Outranks(q[j].ready[0].Priority)
}

func (q readyQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *readyQueue) Push(x any) {
	a := x.(*account)
	a.index = len(*q)
	*q = append(*q, a)
}

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	a := old[n-1]
	old[n-1] = nil
	a.index = -1
	*q = old[:n-1]
	return a
}

// requeue restores the heap position of a after its ready list changed.
func (q *readyQueue) requeue(a *account) {
	switch {
	case len(a.ready) == 0 && a.index >= 0:
		heap.Remove(q, a.index)
	case len(a.ready) == 0:
	case a.index < 0:
		heap.Push(q, a)
	default:
		heap.Fix(q, a.index)
	}
}
