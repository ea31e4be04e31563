package blockchain

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/db"
)

var errChunkSizeReached = errors.New("chunk size reached")

var _ io.Closer = (*EventFilter)(nil)

// EventFilter scans the events of a block range on one read snapshot. Blocks whose bloom
// rules out the filter are skipped without reading their receipts.
type EventFilter struct {
	txn        db.Transaction
	fromBlock  uint64
	toBlock    uint64
	matcher    eventMatcher
	maxScanned uint64 // maximum number of scanned blocks in single call.
}

type EventFilterRange uint

const (
	EventFilterFrom EventFilterRange = iota
	EventFilterTo
)

// EventFilter opens a filter over the committed chain matching events emitted by address
// (any address if nil) whose keys match keys.
func (b *Blockchain) EventFilter(address *felt.Felt, keys [][]felt.Felt) (*EventFilter, error) {
	b.listener.OnRead("EventFilter")
	txn := b.database.NewTransaction(false)
	latest, err := ChainHeight(txn)
	if err != nil {
		return nil, errors.Join(err, txn.Discard())
	}
	return &EventFilter{
		txn:        txn,
		matcher:    newEventMatcher(address, keys),
		fromBlock:  0,
		toBlock:    latest,
		maxScanned: math.MaxUint64,
	}, nil
}

// WithLimit sets the limit for events scan
func (e *EventFilter) WithLimit(limit uint64) *EventFilter {
	e.maxScanned = limit
	return e
}

// SetRangeEndBlockByNumber sets an end of the block range by block number
func (e *EventFilter) SetRangeEndBlockByNumber(filterRange EventFilterRange, blockNumber uint64) error {
	switch filterRange {
	case EventFilterFrom:
		e.fromBlock = blockNumber
	case EventFilterTo:
		e.toBlock = blockNumber
	default:
		return errors.New("undefined range end")
	}
	return nil
}

// SetRangeEndBlockByHash sets an end of the block range by block hash
func (e *EventFilter) SetRangeEndBlockByHash(filterRange EventFilterRange, blockHash *felt.Felt) error {
	header, err := BlockHeaderByHash(e.txn, blockHash)
	if err != nil {
		return err
	}
	return e.SetRangeEndBlockByNumber(filterRange, header.Number)
}

// Close closes the underlying database transaction that provides the blockchain snapshot
func (e *EventFilter) Close() error {
	return e.txn.Discard()
}

type ContinuationToken struct {
	fromBlock       uint64
	processedEvents uint64
}

func (c *ContinuationToken) IsEmpty() bool {
	return c.fromBlock == 0 && c.processedEvents == 0
}

func (c *ContinuationToken) String() string {
	return fmt.Sprintf("%d-%d", c.fromBlock, c.processedEvents)
}

func (c *ContinuationToken) FromString(str string) error {
	_, err := fmt.Sscanf(str, "%d-%d", &c.fromBlock, &c.processedEvents)
	return err
}

type FilteredEvent struct {
	*core.Event
	BlockNumber      uint64
	BlockHash        *felt.Felt
	TransactionHash  *felt.Felt
	TransactionIndex uint
	EventIndex       uint
}

// Events returns up to chunkSize matching events starting at cToken, or at the start of
// the range when cToken is nil. The returned token is empty when the range is exhausted.
func (e *EventFilter) Events(cToken *ContinuationToken, chunkSize uint64) ([]FilteredEvent, ContinuationToken, error) {
	var matchedEvents []FilteredEvent

	latest, err := ChainHeight(e.txn)
	if err != nil {
		return nil, ContinuationToken{}, err
	}
	toBlock := min(e.toBlock, latest)

	var skippedEvents uint64
	startBlock := e.fromBlock
	// skip the blocks that we previously processed for this request
	if cToken != nil {
		skippedEvents = cToken.processedEvents
		startBlock = cToken.fromBlock
	}

	var scanned uint64
	for curBlock := startBlock; curBlock <= toBlock; curBlock++ {
		if scanned == e.maxScanned {
			return matchedEvents, ContinuationToken{fromBlock: curBlock}, nil
		}
		scanned++

		header, err := BlockHeaderByNumber(e.txn, curBlock)
		if err != nil {
			return nil, ContinuationToken{}, err
		}
		if !core.EventsBloomMayMatch(header.EventsBloom, e.matcher.address, e.matcher.keys) {
			skippedEvents = 0
			continue
		}

		receipts, err := ReceiptsByBlockNumber(e.txn, curBlock)
		if err != nil {
			return nil, ContinuationToken{}, err
		}

		var processedEvents uint64
		matchedEvents, processedEvents, err = e.matcher.appendBlockEvents(matchedEvents, header, receipts, skippedEvents, chunkSize)
		if err != nil {
			// Max events to scan exhausted mid block, continue from next unprocessed event
			if errors.Is(err, errChunkSizeReached) {
				return matchedEvents, ContinuationToken{fromBlock: curBlock, processedEvents: processedEvents}, nil
			}
			return nil, ContinuationToken{}, err
		}

		// Skipped events are processed, so we can reset the counter
		skippedEvents = 0
	}
	return matchedEvents, ContinuationToken{}, nil
}

type eventMatcher struct {
	address *felt.Felt
	keys    [][]felt.Felt
	keysMap []map[felt.Felt]struct{}
}

func newEventMatcher(address *felt.Felt, keys [][]felt.Felt) eventMatcher {
	keysMap := make([]map[felt.Felt]struct{}, len(keys))
	for index, accepted := range keys {
		kMap := make(map[felt.Felt]struct{}, len(accepted))
		for _, key := range accepted {
			kMap[key] = struct{}{}
		}
		keysMap[index] = kMap
	}
	return eventMatcher{address: address, keys: keys, keysMap: keysMap}
}

// matchesEventKeys applies the filter keys position by position: keys = [[V1, V2], [], [V3]]
// means (event.Keys[0] == V1 OR event.Keys[0] == V2) AND event.Keys[2] == V3.
func (m *eventMatcher) matchesEventKeys(eventKeys []*felt.Felt) bool {
	// short circuit if event doest have enough keys
	if len(eventKeys) < len(m.keysMap) {
		return false
	}
	for index, kMap := range m.keysMap {
		// empty filter keys means match all
		if len(kMap) == 0 {
			continue
		}
		if _, found := kMap[*eventKeys[index]]; !found {
			return false
		}
	}
	return true
}

func (m *eventMatcher) appendBlockEvents(matchedEventsSofar []FilteredEvent, header *core.Header,
	receipts []*core.TransactionReceipt, skippedEvents, chunkSize uint64,
) ([]FilteredEvent, uint64, error) {
	processedEvents := uint64(0)
	for txIndex, receipt := range receipts {
		for i, event := range receipt.Events {
			if processedEvents < skippedEvents {
				processedEvents++
				continue
			}
			if uint64(len(matchedEventsSofar)) == chunkSize {
				return matchedEventsSofar, processedEvents, errChunkSizeReached
			}
			processedEvents++

			if m.address != nil && !event.From.Equal(m.address) {
				continue
			}
			if !m.matchesEventKeys(event.Keys) {
				continue
			}
			matchedEventsSofar = append(matchedEventsSofar, FilteredEvent{
				Event:            event,
				BlockNumber:      header.Number,
				BlockHash:        header.Hash,
				TransactionHash:  receipt.TransactionHash,
				TransactionIndex: uint(txIndex),
				EventIndex:       uint(i),
			})
		}
	}
	return matchedEventsSofar, processedEvents, nil
}
