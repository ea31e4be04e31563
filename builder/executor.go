package builder

import (
	"github.com/NethermindEth/katana/core"
)

// Execute runs txn on a fork of the block's provisional state. On success the fork is
// merged and txn is appended to the block together with its receipt, reverted or not.
// On error the fork is dropped, which leaves the block as it was before txn.
func (b *Builder) Execute(bs *BlockState, txn core.Transaction) (*core.TransactionReceipt, error) {
	if bs.closed {
		return nil, ErrBlockClosed
	}

	fork := bs.State.Fork()
	res, err := b.executor.Execute(txn, fork, bs.Env)
	if err != nil {
		b.listener.OnTransactionDropped()
		return nil, err
	}
	if err = bs.State.Commit(fork); err != nil {
		return nil, err
	}

	bs.Transactions = append(bs.Transactions, txn)
	bs.Receipts = append(bs.Receipts, res.Receipt)
	bs.Traces = append(bs.Traces, res.Trace)
	if resources := res.Receipt.ExecutionResources; resources != nil {
		bs.Steps += resources.Steps
	}
	b.listener.OnTransactionExecuted(res.Receipt.Reverted)
	return res.Receipt, nil
}
