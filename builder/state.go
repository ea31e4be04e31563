package builder

import (
	"slices"
	"time"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
)

// BlockState is a block under construction: its environment, the provisional state
// its transactions ran on and what they produced so far.
type BlockState struct {
	Parent *core.Header
	Env    *core.BlockEnv
	// State layers the effects of the executed transactions over the parent state.
	State *state.Pending

	Transactions []core.Transaction
	Receipts     []*core.TransactionReceipt
	Traces       []*core.TransactionTrace
	Steps        uint64
	Opened       time.Time

	closer blockchain.StateCloser
	closed bool
}

func newBlockState(parent *core.Header, env *core.BlockEnv, base state.Reader,
	closer blockchain.StateCloser,
) *BlockState {
	return &BlockState{
		Parent: parent,
		Env:    env,
		State:  state.NewPending(base),
		Opened: time.Now(),
		closer: closer,
	}
}

func (bs *BlockState) Len() int {
	return len(bs.Transactions)
}

// SetTimestamp changes the timestamp the block is sealed with, never going below the
// parent's.
func (bs *BlockState) SetTimestamp(timestamp uint64) {
	bs.Env.Timestamp = max(timestamp, bs.Parent.Timestamp)
}

// SetStorage writes a storage value of a deployed contract directly into the
// provisional state. The write is sealed with the block.
func (bs *BlockState) SetStorage(addr, key, value *felt.Felt) error {
	deployed, err := state.IsDeployed(bs.State, addr)
	if err != nil {
		return err
	} else if !deployed {
		return state.ErrContractNotDeployed
	}
	bs.State.SetStorage(addr, key, value)
	return nil
}

// Block returns a copy of what the block holds so far. Its header carries no
// commitments or hash.
func (bs *BlockState) Block() *core.Block {
	header := bs.Env.Header(bs.Parent.Hash)
	header.TransactionCount = uint64(len(bs.Transactions))
	header.EventCount = core.EventCount(bs.Receipts)
	return &core.Block{
		Header:       header,
		Transactions: slices.Clone(bs.Transactions),
		Receipts:     slices.Clone(bs.Receipts),
	}
}

func (bs *BlockState) close() error {
	if bs.closed {
		return nil
	}
	bs.closed = true
	return bs.closer()
}
