package mempool

import (
	"github.com/NethermindEth/katana/core"
)

// Priority ranks ready transactions. A higher Score wins; between equal scores the earlier
// arrival wins, and since arrival sequences are unique the order is total.
type Priority struct {
	Score uint64
	Seq   uint64
}

// Outranks reports whether p is taken before other.
func (p Priority) Outranks(other Priority) bool {
	if p.Score != other.Score {
		return p.Score > other.Score
	}
	return p.Seq < other.Seq
}

// Ordering assigns priorities to admitted transactions. seq is the strictly increasing
// arrival sequence of the transaction.
type Ordering interface {
	Priority(txn core.Transaction, seq uint64) Priority
}

// FCFS serves transactions in arrival order.
type FCFS struct{}

func (FCFS) Priority(_ core.Transaction, seq uint64) Priority {
	return Priority{Seq: seq}
}

// MaxFeeOrdering serves the transactions that offer the highest max fee first. Fees above
// 2^64-1 all score the same.
type MaxFeeOrdering struct{}

func (MaxFeeOrdering) Priority(txn core.Transaction, seq uint64) Priority {
	score := uint64(0)
	if fee := txn.FeeLimit(); fee != nil {
		if fee.IsUint64() {
			score = fee.Uint64()
		} else {
			score = ^uint64(0)
		}
	}
	return Priority{Score: score, Seq: seq}
}
