package core

import (
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/trie"
	"github.com/bits-and-blooms/bloom/v3"
)

type FeeUnit byte

const (
	WEI FeeUnit = iota
	STRK
)

func (u FeeUnit) String() string {
	if u == STRK {
		return "FRI"
	}
	return "WEI"
}

type GasConsumed struct {
	L1Gas     uint64 `cbor:"1,keyasint"`
	L1DataGas uint64 `cbor:"2,keyasint"`
}

// BuiltinInstanceCounter counts the builtin invocations of an execution.
type BuiltinInstanceCounter struct {
	Pedersen   uint64 `cbor:"1,keyasint" json:"pedersen_builtin_applications,omitempty"`
	RangeCheck uint64 `cbor:"2,keyasint" json:"range_check_builtin_applications,omitempty"`
	Ecdsa      uint64 `cbor:"3,keyasint" json:"ecdsa_builtin_applications,omitempty"`
	Keccak     uint64 `cbor:"4,keyasint" json:"keccak_builtin_applications,omitempty"`
}

type ExecutionResources struct {
	BuiltinInstanceCounter BuiltinInstanceCounter `cbor:"1,keyasint"`
	MemoryHoles            uint64                 `cbor:"2,keyasint"`
	Steps                  uint64                 `cbor:"3,keyasint"`
	TotalGasConsumed       GasConsumed            `cbor:"4,keyasint"`
}

// Add accumulates other into r.
func (r *ExecutionResources) Add(other *ExecutionResources) {
	r.Steps += other.Steps
	r.MemoryHoles += other.MemoryHoles
	r.BuiltinInstanceCounter.Pedersen += other.BuiltinInstanceCounter.Pedersen
	r.BuiltinInstanceCounter.RangeCheck += other.BuiltinInstanceCounter.RangeCheck
	r.BuiltinInstanceCounter.Ecdsa += other.BuiltinInstanceCounter.Ecdsa
	r.BuiltinInstanceCounter.Keccak += other.BuiltinInstanceCounter.Keccak
	r.TotalGasConsumed.L1Gas += other.TotalGasConsumed.L1Gas
	r.TotalGasConsumed.L1DataGas += other.TotalGasConsumed.L1DataGas
}

type TransactionReceipt struct {
	TransactionHash    *felt.Felt          `cbor:"1,keyasint"`
	Type               TransactionType     `cbor:"2,keyasint"`
	Fee                *felt.Felt          `cbor:"3,keyasint"`
	FeeUnit            FeeUnit             `cbor:"4,keyasint"`
	Events             []*Event            `cbor:"5,keyasint"`
	L2ToL1Message      []*L2ToL1Message    `cbor:"6,keyasint"`
	ExecutionResources *ExecutionResources `cbor:"7,keyasint"`
	Reverted           bool                `cbor:"8,keyasint"`
	RevertReason       string              `cbor:"9,keyasint,omitempty"`
	// ContractAddress is set on account deployments.
	ContractAddress *felt.Felt `cbor:"10,keyasint,omitempty"`
}

func (r *TransactionReceipt) ExecutionStatus() string {
	if r.Reverted {
		return "REVERTED"
	}
	return "SUCCEEDED"
}

func (r *TransactionReceipt) hash() (*felt.Felt, error) {
	revertReasonHash := &felt.Zero
	if r.Reverted {
		var err error
		if revertReasonHash, err = crypto.StarknetKeccak([]byte(r.RevertReason)); err != nil {
			return nil, err
		}
	}

	var gas GasConsumed
	if r.ExecutionResources != nil {
		gas = r.ExecutionResources.TotalGasConsumed
	}

	fee := r.Fee
	if fee == nil {
		fee = &felt.Zero
	}
	return crypto.PedersenArray(
		r.TransactionHash,
		fee,
		messagesSentHash(r.L2ToL1Message),
		revertReasonHash,
		&felt.Zero, // L2 gas consumed
		new(felt.Felt).SetUint64(gas.L1Gas),
		new(felt.Felt).SetUint64(gas.L1DataGas),
	), nil
}

func messagesSentHash(messages []*L2ToL1Message) *felt.Felt {
	chain := []*felt.Felt{
		new(felt.Felt).SetUint64(uint64(len(messages))),
	}
	for _, msg := range messages {
		payloadSize := new(felt.Felt).SetUint64(uint64(len(msg.Payload)))
		chain = append(chain, msg.From, msg.To, payloadSize)
		chain = append(chain, msg.Payload...)
	}
	return crypto.PedersenArray(chain...)
}

func receiptCommitment(receipts []*TransactionReceipt) (*felt.Felt, error) {
	var commitment *felt.Felt
	err := trie.RunOnTempTrie(commitmentTrieHeight, func(tr *trie.Trie) error {
		for i, receipt := range receipts {
			receiptHash, err := receipt.hash()
			if err != nil {
				return err
			}
			if err = tr.Put(new(felt.Felt).SetUint64(uint64(i)), receiptHash); err != nil {
				return err
			}
		}
		commitment = tr.Hash()
		return nil
	})
	return commitment, err
}

// eventCommitment is the root of a height 64 binary Merkle Patricia tree of the events
// emitted in a block, in emission order.
func eventCommitment(receipts []*TransactionReceipt) (*felt.Felt, error) {
	var commitment *felt.Felt
	err := trie.RunOnTempTrie(commitmentTrieHeight, func(tr *trie.Trie) error {
		eventCount := uint64(0)
		for _, receipt := range receipts {
			for _, event := range receipt.Events {
				eventHash := crypto.PedersenArray(
					event.From,
					crypto.PedersenArray(event.Keys...),
					crypto.PedersenArray(event.Data...),
				)
				if err := tr.Put(new(felt.Felt).SetUint64(eventCount), eventHash); err != nil {
					return err
				}
				eventCount++
			}
		}
		commitment = tr.Hash()
		return nil
	})
	return commitment, err
}

const (
	eventsBloomLength        = 8192
	eventsBloomHashFunctions = 6
)

// EventsBloom indexes the emitter addresses and keys of every event in receipts.
func EventsBloom(receipts []*TransactionReceipt) *bloom.BloomFilter {
	filter := bloom.New(eventsBloomLength, eventsBloomHashFunctions)

	for _, receipt := range receipts {
		for _, event := range receipt.Events {
			fromBytes := event.From.Bytes()
			filter.Add(fromBytes[:])

			for index, key := range event.Keys {
				keyBytes := key.Bytes()
				keyAndIndexBytes := make([]byte, 0, len(keyBytes)+1)
				keyAndIndexBytes = append(keyAndIndexBytes, keyBytes[:]...)
				keyAndIndexBytes = append(keyAndIndexBytes, byte(index))
				filter.Add(keyAndIndexBytes)
			}
		}
	}
	return filter
}

// EventsBloomMayMatch reports whether a block with the given bloom may contain an event from
// address (if set) carrying the given keys. keys[i] lists the accepted values at position i;
// an empty position matches anything.
func EventsBloomMayMatch(filter *bloom.BloomFilter, address *felt.Felt, keys [][]felt.Felt) bool {
	if filter == nil {
		return true
	}
	if address != nil {
		addrBytes := address.Bytes()
		if !filter.Test(addrBytes[:]) {
			return false
		}
	}
	for index, accepted := range keys {
		if len(accepted) == 0 {
			continue
		}
		found := false
		for i := range accepted {
			keyBytes := accepted[i].Bytes()
			if filter.Test(append(keyBytes[:], byte(index))) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
