package rpc

// Helpers contains the supporting functions used in more than one handler from a different groups, e.g. block, trace, etc.

import (
	"errors"
	"time"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/jsonrpc"
)

// pendingBlock returns the block the producer is assembling, nil if there is none.
func (h *Handler) pendingBlock() *core.Block {
	if h.producer == nil {
		return nil
	}
	return h.producer.PendingBlock()
}

func (h *Handler) blockByID(id *BlockID) (*core.Block, *jsonrpc.Error) {
	var block *core.Block
	var err error
	switch {
	case id.Latest:
		var height uint64
		if height, err = h.bcReader.Height(); err == nil {
			block, err = h.bcReader.BlockByNumber(height)
		}
	case id.Hash != nil:
		block, err = h.bcReader.BlockByHash(id.Hash)
	case id.Pending:
		if block = h.pendingBlock(); block == nil {
			return h.blockByID(&BlockID{Latest: true})
		}
	default:
		block, err = h.bcReader.BlockByNumber(id.Number)
	}

	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, ErrInternal.CloneWithData(err)
	}
	if block == nil {
		return nil, ErrInternal.CloneWithData("nil block with no error")
	}
	return block, nil
}

func (h *Handler) blockHeaderByID(id *BlockID) (*core.Header, *jsonrpc.Error) {
	var header *core.Header
	var err error
	switch {
	case id.Latest:
		header, err = h.bcReader.HeadHeader()
	case id.Hash != nil:
		header, err = h.bcReader.BlockHeaderByHash(id.Hash)
	case id.Pending:
		if pending := h.pendingBlock(); pending != nil {
			header = pending.Header
		} else {
			header, err = h.bcReader.HeadHeader()
		}
	default:
		header, err = h.bcReader.BlockHeaderByNumber(id.Number)
	}

	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, ErrInternal.CloneWithData(err)
	}
	if header == nil {
		return nil, ErrInternal.CloneWithData("nil header with no error")
	}
	return header, nil
}

// stateByBlockID opens the state as of the end of the block. The pending block reads the
// latest sealed state: its provisional writes are not visible outside the producer.
func (h *Handler) stateByBlockID(id *BlockID) (state.Reader, blockchain.StateCloser, *jsonrpc.Error) {
	var reader state.Reader
	var closer blockchain.StateCloser
	var err error
	switch {
	case id.Latest, id.Pending:
		reader, closer, err = h.bcReader.HeadState()
	case id.Hash != nil:
		var header *core.Header
		if header, err = h.bcReader.BlockHeaderByHash(id.Hash); err == nil {
			reader, closer, err = h.bcReader.StateAtBlockNumber(header.Number)
		}
	default:
		reader, closer, err = h.bcReader.StateAtBlockNumber(id.Number)
	}

	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil, ErrBlockNotFound
		}
		return nil, nil, ErrInternal.CloneWithData(err)
	}
	return reader, closer, nil
}

// blockEnv is the environment calls and estimates made against the block run in. For
// the pending block it is the environment of the next block.
func (h *Handler) blockEnv(id *BlockID) (*core.BlockEnv, *jsonrpc.Error) {
	if id.Pending {
		if pending := h.pendingBlock(); pending != nil {
			return h.spec.NewBlockEnv(pending.Number, pending.Timestamp, h.validateMaxSteps, h.callMaxSteps), nil
		}
		head, err := h.bcReader.HeadHeader()
		if err != nil {
			return nil, ErrInternal.CloneWithData(err)
		}
		timestamp := max(uint64(time.Now().Unix()), head.Timestamp)
		return h.spec.NewBlockEnv(head.Number+1, timestamp, h.validateMaxSteps, h.callMaxSteps), nil
	}

	header, rpcErr := h.blockHeaderByID(id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return h.spec.NewBlockEnv(header.Number, header.Timestamp, h.validateMaxSteps, h.callMaxSteps), nil
}

func (h *Handler) callAndLogErr(f func() error, msg string) {
	if err := f(); err != nil {
		h.log.Errorw(msg, "err", err)
	}
}

func nilToZero(f *felt.Felt) *felt.Felt {
	if f == nil {
		return &felt.Zero
	}
	return f
}
