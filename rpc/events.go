package rpc

import (
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/jsonrpc"
)

type EventsArg struct {
	EventFilter
	ResultPageRequest
}

type EventFilter struct {
	FromBlock *BlockID      `json:"from_block"`
	ToBlock   *BlockID      `json:"to_block"`
	Address   *felt.Felt    `json:"address"`
	Keys      [][]felt.Felt `json:"keys"`
}

type ResultPageRequest struct {
	ContinuationToken string `json:"continuation_token"`
	ChunkSize         uint64 `json:"chunk_size" validate:"min=1"`
}

type EmittedEvent struct {
	*Event
	BlockNumber     *uint64    `json:"block_number,omitempty"`
	BlockHash       *felt.Felt `json:"block_hash,omitempty"`
	TransactionHash *felt.Felt `json:"transaction_hash"`
}

type EventsChunk struct {
	Events            []EmittedEvent `json:"events"`
	ContinuationToken string         `json:"continuation_token,omitempty"`
}

// Events pages through the events of sealed blocks matching the filter. Blocks are skipped
// by their bloom filter before their receipts are read.
func (h *Handler) Events(args EventsArg) (*EventsChunk, *jsonrpc.Error) {
	if args.ChunkSize > maxEventChunkSize {
		return nil, ErrPageSizeTooBig
	}
	lenKeys := len(args.Keys)
	for _, keys := range args.Keys {
		lenKeys += len(keys)
	}
	if lenKeys > maxEventFilterKeys {
		return nil, ErrTooManyKeysInFilter
	}

	height, err := h.bcReader.Height()
	if err != nil {
		return nil, ErrInternal.CloneWithData(err)
	}

	filter, err := h.bcReader.EventFilter(args.EventFilter.Address, args.EventFilter.Keys)
	if err != nil {
		return nil, ErrInternal.CloneWithData(err)
	}
	filter = filter.WithLimit(uint64(h.filterLimit))
	defer h.callAndLogErr(filter.Close, "Error closing event filter in events")

	var cToken *blockchain.ContinuationToken
	if args.ContinuationToken != "" {
		cToken = new(blockchain.ContinuationToken)
		if err = cToken.FromString(args.ContinuationToken); err != nil {
			return nil, ErrInvalidContinuationToken
		}
	}

	if err = setEventFilterRange(filter, args.EventFilter.FromBlock, args.EventFilter.ToBlock, height); err != nil {
		return nil, ErrBlockNotFound
	}

	filteredEvents, cTokenValue, err := filter.Events(cToken, args.ChunkSize)
	if err != nil {
		return nil, ErrInternal.CloneWithData(err)
	}

	emittedEvents := make([]EmittedEvent, len(filteredEvents))
	for i, fEvent := range filteredEvents {
		blockNumber := fEvent.BlockNumber
		emittedEvents[i] = EmittedEvent{
			BlockNumber:     &blockNumber,
			BlockHash:       fEvent.BlockHash,
			TransactionHash: fEvent.TransactionHash,
			Event: &Event{
				From: fEvent.From,
				Keys: fEvent.Keys,
				Data: fEvent.Data,
			},
		}
	}

	cTokenStr := ""
	if !cTokenValue.IsEmpty() {
		cTokenStr = cTokenValue.String()
	}
	return &EventsChunk{Events: emittedEvents, ContinuationToken: cTokenStr}, nil
}

// setEventFilterRange clamps the range to the sealed chain. The pending block has no
// events of its own here.
func setEventFilterRange(filter *blockchain.EventFilter, from, to *BlockID, latestHeight uint64) error {
	set := func(filterRange blockchain.EventFilterRange, id *BlockID) error {
		if id == nil {
			return nil
		}

		switch {
		case id.Latest, id.Pending:
			return filter.SetRangeEndBlockByNumber(filterRange, latestHeight)
		case id.Hash != nil:
			return filter.SetRangeEndBlockByHash(filterRange, id.Hash)
		case filterRange == blockchain.EventFilterTo:
			return filter.SetRangeEndBlockByNumber(filterRange, min(id.Number, latestHeight))
		default:
			return filter.SetRangeEndBlockByNumber(filterRange, id.Number)
		}
	}

	if err := set(blockchain.EventFilterFrom, from); err != nil {
		return err
	}
	return set(blockchain.EventFilterTo, to)
}
