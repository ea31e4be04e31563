package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sourcegraph/conc"
)

type L1DAMode uint

const (
	Calldata L1DAMode = iota
	Blob
)

func (m L1DAMode) String() string {
	if m == Blob {
		return "BLOB"
	}
	return "CALLDATA"
}

type GasPrice struct {
	PriceInWei *felt.Felt `cbor:"1,keyasint" json:"price_in_wei"`
	PriceInFri *felt.Felt `cbor:"2,keyasint" json:"price_in_fri"`
}

type Header struct {
	// The hash of this block
	Hash *felt.Felt `cbor:"1,keyasint,omitempty"`
	// The hash of this block’s parent
	ParentHash *felt.Felt `cbor:"2,keyasint,omitempty"`
	// The number (height) of this block
	Number uint64 `cbor:"3,keyasint,omitempty"`
	// The time the sequencer opened this block
	Timestamp uint64 `cbor:"4,keyasint,omitempty"`
	// The address of the sequencer who created this block
	SequencerAddress *felt.Felt `cbor:"5,keyasint,omitempty"`
	L1GasPrice       GasPrice   `cbor:"6,keyasint"`
	L1DataGasPrice   GasPrice   `cbor:"7,keyasint"`
	L1DAMode         L1DAMode   `cbor:"8,keyasint,omitempty"`
	// The version of the Starknet protocol used when creating this block
	ProtocolVersion string `cbor:"9,keyasint,omitempty"`
	// The amount Transactions and Receipts stored in this block
	TransactionCount uint64 `cbor:"10,keyasint,omitempty"`
	// The amount of events stored in transaction receipts
	EventCount            uint64     `cbor:"11,keyasint,omitempty"`
	TransactionCommitment *felt.Felt `cbor:"12,keyasint,omitempty"`
	EventCommitment       *felt.Felt `cbor:"13,keyasint,omitempty"`
	ReceiptCommitment     *felt.Felt `cbor:"14,keyasint,omitempty"`
	StateDiffCommitment   *felt.Felt `cbor:"15,keyasint,omitempty"`
	StateDiffLength       uint64     `cbor:"16,keyasint,omitempty"`
	// The state commitment after this block
	StateRoot *felt.Felt `cbor:"17,keyasint,omitempty"`
	// Bloom filter on the events emitted this block
	EventsBloom *bloom.BloomFilter `cbor:"18,keyasint,omitempty"`
}

type Block struct {
	*Header
	Transactions []Transaction
	Receipts     []*TransactionReceipt
}

var starknetBlockHash0 = new(felt.Felt).SetBytes([]byte("STARKNET_BLOCK_HASH0"))

var (
	ErrReceiptsMismatch   = errors.New("transactions and receipts do not match")
	ErrBlockHashMismatch  = errors.New("block hash mismatch")
	ErrCommitmentMismatch = errors.New("block commitment mismatch")
)

// BlockCommitments are the header fields derived from a block's body and state diff.
type BlockCommitments struct {
	TransactionCommitment *felt.Felt
	EventCommitment       *felt.Felt
	ReceiptCommitment     *felt.Felt
	StateDiffCommitment   *felt.Felt
	StateDiffLength       uint64
}

// Commitments computes the four body commitments of b concurrently.
func Commitments(b *Block, stateDiff *StateDiff) (*BlockCommitments, error) {
	if len(b.Transactions) != len(b.Receipts) {
		return nil, fmt.Errorf("%w: %d transactions, %d receipts", ErrReceiptsMismatch, len(b.Transactions), len(b.Receipts))
	}
	for i, tx := range b.Transactions {
		if !tx.Hash().Equal(b.Receipts[i].TransactionHash) {
			return nil, fmt.Errorf("%w: transaction hash (%v) at index %d, receipt has %v",
				ErrReceiptsMismatch, tx.Hash(), i, b.Receipts[i].TransactionHash)
		}
	}

	var c BlockCommitments
	var tErr, eErr, rErr error

	wg := conc.NewWaitGroup()
	wg.Go(func() {
		c.TransactionCommitment, tErr = transactionCommitment(b.Transactions)
	})
	wg.Go(func() {
		c.EventCommitment, eErr = eventCommitment(b.Receipts)
	})
	wg.Go(func() {
		c.ReceiptCommitment, rErr = receiptCommitment(b.Receipts)
	})
	wg.Go(func() {
		c.StateDiffLength = stateDiff.Length()
		c.StateDiffCommitment = stateDiff.Hash()
	})
	wg.Wait()

	if err := errors.Join(tErr, eErr, rErr); err != nil {
		return nil, err
	}
	return &c, nil
}

// SetCommitments copies c into the header.
func (h *Header) SetCommitments(c *BlockCommitments) {
	h.TransactionCommitment = c.TransactionCommitment
	h.EventCommitment = c.EventCommitment
	h.ReceiptCommitment = c.ReceiptCommitment
	h.StateDiffCommitment = c.StateDiffCommitment
	h.StateDiffLength = c.StateDiffLength
}

// BlockHash hashes the header fields. The commitments and the state root must be set.
func BlockHash(h *Header) *felt.Felt {
	concatCounts := ConcatCounts(h.TransactionCount, h.EventCount, h.StateDiffLength, h.L1DAMode)
	return crypto.PedersenArray(
		starknetBlockHash0,
		new(felt.Felt).SetUint64(h.Number),    // block number
		h.StateRoot,                           // global state root
		orZero(h.SequencerAddress),            // sequencer address
		new(felt.Felt).SetUint64(h.Timestamp), // block timestamp
		&concatCounts,
		h.StateDiffCommitment,
		h.TransactionCommitment,
		h.EventCommitment,
		h.ReceiptCommitment,
		orZero(h.L1GasPrice.PriceInWei),
		orZero(h.L1GasPrice.PriceInFri),
		orZero(h.L1DataGasPrice.PriceInWei),
		orZero(h.L1DataGasPrice.PriceInFri),
		new(felt.Felt).SetBytes([]byte(h.ProtocolVersion)),
		&felt.Zero, // reserved: extra data
		h.ParentHash,
	)
}

// VerifyBlock recomputes the commitments and the hash of b and checks them against its header.
func VerifyBlock(b *Block, stateDiff *StateDiff) error {
	c, err := Commitments(b, stateDiff)
	if err != nil {
		return err
	}
	h := b.Header
	for _, pair := range [][2]*felt.Felt{
		{c.TransactionCommitment, h.TransactionCommitment},
		{c.EventCommitment, h.EventCommitment},
		{c.ReceiptCommitment, h.ReceiptCommitment},
		{c.StateDiffCommitment, h.StateDiffCommitment},
	} {
		if pair[1] == nil || !pair[0].Equal(pair[1]) {
			return fmt.Errorf("%w at block %d", ErrCommitmentMismatch, h.Number)
		}
	}
	if h.Hash == nil || !BlockHash(h).Equal(h.Hash) {
		return fmt.Errorf("%w at block %d", ErrBlockHashMismatch, h.Number)
	}
	return nil
}

func orZero(f *felt.Felt) *felt.Felt {
	if f == nil {
		return &felt.Zero
	}
	return f
}

func ConcatCounts(txCount, eventCount, stateDiffLen uint64, l1Mode L1DAMode) felt.Felt {
	var l1DAByte byte
	if l1Mode == Blob {
		l1DAByte = 0b10000000
	}

	var txCountBytes, eventCountBytes, stateDiffLenBytes [8]byte
	binary.BigEndian.PutUint64(txCountBytes[:], txCount)
	binary.BigEndian.PutUint64(eventCountBytes[:], eventCount)
	binary.BigEndian.PutUint64(stateDiffLenBytes[:], stateDiffLen)

	zeroPadding := make([]byte, 7) //nolint:mnd

	concatBytes := slices.Concat(
		txCountBytes[:],
		eventCountBytes[:],
		stateDiffLenBytes[:],
		[]byte{l1DAByte},
		zeroPadding,
	)
	return *new(felt.Felt).SetBytes(concatBytes)
}

// EventCount counts the events in receipts.
func EventCount(receipts []*TransactionReceipt) uint64 {
	var n uint64
	for _, r := range receipts {
		n += uint64(len(r.Events))
	}
	return n
}
