package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/jsonrpc"
)

type BlockStatus uint8

const (
	BlockPending BlockStatus = iota
	BlockAcceptedL2
)

func (s BlockStatus) MarshalText() ([]byte, error) {
	switch s {
	case BlockPending:
		return []byte("PENDING"), nil
	case BlockAcceptedL2:
		return []byte("ACCEPTED_ON_L2"), nil
	default:
		return nil, fmt.Errorf("unknown block status %d", s)
	}
}

type L1DAMode uint8

const (
	Calldata L1DAMode = iota
	Blob
)

func (m L1DAMode) MarshalText() ([]byte, error) {
	switch m {
	case Calldata:
		return []byte("CALLDATA"), nil
	case Blob:
		return []byte("BLOB"), nil
	default:
		return nil, fmt.Errorf("unknown L1DAMode value = %v", m)
	}
}

// BlockID selects a block: the latest, the pending one, or one by hash or number.
type BlockID struct {
	Pending bool
	Latest  bool
	Hash    *felt.Felt
	Number  uint64
}

func (b *BlockID) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"latest"`:
		b.Latest = true
		return nil
	case `"pending"`:
		b.Pending = true
		return nil
	}

	jsonObject := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &jsonObject); err != nil {
		return err
	}
	if hash, ok := jsonObject["block_hash"]; ok {
		b.Hash = new(felt.Felt)
		return json.Unmarshal(hash, b.Hash)
	}
	if number, ok := jsonObject["block_number"]; ok {
		return json.Unmarshal(number, &b.Number)
	}
	return errors.New("cannot unmarshal block id")
}

type BlockHashAndNumber struct {
	Hash   *felt.Felt `json:"block_hash"`
	Number uint64     `json:"block_number"`
}

type ResourcePrice struct {
	InFri *felt.Felt `json:"price_in_fri"`
	InWei *felt.Felt `json:"price_in_wei"`
}

// BlockHeader leaves the hash, number and root out for the pending block.
type BlockHeader struct {
	Hash             *felt.Felt     `json:"block_hash,omitempty"`
	ParentHash       *felt.Felt     `json:"parent_hash"`
	Number           *uint64        `json:"block_number,omitempty"`
	NewRoot          *felt.Felt     `json:"new_root,omitempty"`
	Timestamp        uint64         `json:"timestamp"`
	SequencerAddress *felt.Felt     `json:"sequencer_address,omitempty"`
	L1GasPrice       *ResourcePrice `json:"l1_gas_price"`
	L1DataGasPrice   *ResourcePrice `json:"l1_data_gas_price"`
	L1DAMode         L1DAMode       `json:"l1_da_mode"`
	StarknetVersion  string         `json:"starknet_version"`
}

type BlockWithTxHashes struct {
	Status BlockStatus `json:"status"`
	BlockHeader
	TxnHashes []*felt.Felt `json:"transactions"`
}

type BlockWithTxs struct {
	Status BlockStatus `json:"status"`
	BlockHeader
	Transactions []*Transaction `json:"transactions"`
}

type TransactionWithReceipt struct {
	Transaction *Transaction        `json:"transaction"`
	Receipt     *TransactionReceipt `json:"receipt"`
}

type BlockWithReceipts struct {
	Status BlockStatus `json:"status"`
	BlockHeader
	Transactions []TransactionWithReceipt `json:"transactions"`
}

func adaptBlockHeader(header *core.Header) BlockHeader {
	adapted := BlockHeader{
		Hash:             header.Hash,
		ParentHash:       header.ParentHash,
		Timestamp:        header.Timestamp,
		SequencerAddress: header.SequencerAddress,
		L1GasPrice:       adaptResourcePrice(header.L1GasPrice),
		L1DataGasPrice:   adaptResourcePrice(header.L1DataGasPrice),
		L1DAMode:         L1DAMode(header.L1DAMode),
		StarknetVersion:  header.ProtocolVersion,
	}
	if header.Hash != nil {
		number := header.Number
		adapted.Number = &number
		adapted.NewRoot = header.StateRoot
	}
	return adapted
}

func adaptResourcePrice(price core.GasPrice) *ResourcePrice {
	return &ResourcePrice{
		InFri: nilToZero(price.PriceInFri),
		InWei: nilToZero(price.PriceInWei),
	}
}

func blockStatus(block *core.Block) BlockStatus {
	if block.Hash == nil {
		return BlockPending
	}
	return BlockAcceptedL2
}

// BlockNumber returns the number of the latest sealed block.
func (h *Handler) BlockNumber() (uint64, *jsonrpc.Error) {
	num, err := h.bcReader.Height()
	if err != nil {
		return 0, ErrNoBlock
	}
	return num, nil
}

func (h *Handler) BlockHashAndNumber() (*BlockHashAndNumber, *jsonrpc.Error) {
	header, err := h.bcReader.HeadHeader()
	if err != nil {
		return nil, ErrNoBlock
	}
	return &BlockHashAndNumber{Number: header.Number, Hash: header.Hash}, nil
}

func (h *Handler) BlockWithTxHashes(id BlockID) (*BlockWithTxHashes, *jsonrpc.Error) {
	block, rpcErr := h.blockByID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	txnHashes := make([]*felt.Felt, len(block.Transactions))
	for index, txn := range block.Transactions {
		txnHashes[index] = txn.Hash()
	}
	return &BlockWithTxHashes{
		Status:      blockStatus(block),
		BlockHeader: adaptBlockHeader(block.Header),
		TxnHashes:   txnHashes,
	}, nil
}

func (h *Handler) BlockWithTxs(id BlockID) (*BlockWithTxs, *jsonrpc.Error) {
	block, rpcErr := h.blockByID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	txs := make([]*Transaction, len(block.Transactions))
	for index, txn := range block.Transactions {
		txs[index] = AdaptTransaction(txn)
	}
	return &BlockWithTxs{
		Status:       blockStatus(block),
		BlockHeader:  adaptBlockHeader(block.Header),
		Transactions: txs,
	}, nil
}

func (h *Handler) BlockWithReceipts(id BlockID) (*BlockWithReceipts, *jsonrpc.Error) {
	block, rpcErr := h.blockByID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	status := blockStatus(block)
	txs := make([]TransactionWithReceipt, len(block.Transactions))
	for index, txn := range block.Transactions {
		receipt := block.Receipts[index]
		txs[index] = TransactionWithReceipt{
			Transaction: AdaptTransaction(txn),
			// block hash and number are already in the header
			Receipt: AdaptReceipt(receipt, TxnAcceptedOnL2, nil, nil),
		}
	}
	return &BlockWithReceipts{
		Status:       status,
		BlockHeader:  adaptBlockHeader(block.Header),
		Transactions: txs,
	}, nil
}

// BlockTransactionCount returns the number of transactions in the block.
func (h *Handler) BlockTransactionCount(id BlockID) (uint64, *jsonrpc.Error) {
	block, rpcErr := h.blockByID(&id)
	if rpcErr != nil {
		return 0, rpcErr
	}
	return uint64(len(block.Transactions)), nil
}
