package db

import (
	"encoding/binary"
	"errors"

	"github.com/NethermindEth/katana/core/felt"
)

// Metadata keys
var (
	SchemaVersionKey = Metadata.Key([]byte("schema-version"))
	ChainIDKey       = Metadata.Key([]byte("chain-id"))
)

func Uint64ToBytes(num uint64) [8]byte {
	var numBytes [8]byte
	binary.BigEndian.PutUint64(numBytes[:], num)
	return numBytes
}

// historyHeight orders history rows newest first so that a forward seek from a
// target block lands on the closest change at or below it.
func historyHeight(blockNum uint64) [8]byte {
	return Uint64ToBytes(^blockNum)
}

// HistoryHeight decodes the height suffix of a history key.
func HistoryHeight(suffix []byte) (uint64, error) {
	if len(suffix) != 8 {
		return 0, errors.New("history key suffix must be 8 bytes")
	}
	return ^binary.BigEndian.Uint64(suffix), nil
}

func ChainHeightKey() []byte {
	return ChainHeight.Key()
}

func BlockHeaderNumbersByHashKey(hash *felt.Felt) []byte {
	return BlockHeaderNumbersByHash.Key(hash.Marshal())
}

func BlockHeaderByNumberKey(blockNum uint64) []byte {
	b := Uint64ToBytes(blockNum)
	return BlockHeadersByNumber.Key(b[:])
}

func TxBlockNumIndexByHashKey(hash *felt.Felt) []byte {
	return TransactionBlockNumbersAndIndicesByHash.Key(hash.Marshal())
}

const BlockNumIndexKeySize = 16

type BlockNumIndexKey struct {
	Number uint64
	Index  uint64
}

func (b *BlockNumIndexKey) MarshalBinary() []byte {
	data := make([]byte, BlockNumIndexKeySize)
	binary.BigEndian.PutUint64(data[0:8], b.Number)
	binary.BigEndian.PutUint64(data[8:16], b.Index)
	return data
}

func (b *BlockNumIndexKey) UnmarshalBinary(data []byte) error {
	if len(data) < BlockNumIndexKeySize {
		return errors.New("data is too short to unmarshal block number and index")
	}
	b.Number = binary.BigEndian.Uint64(data[0:8])
	b.Index = binary.BigEndian.Uint64(data[8:16])
	return nil
}

func TxByBlockNumIndexKey(num, index uint64) []byte {
	key := &BlockNumIndexKey{Number: num, Index: index}
	return TransactionsByBlockNumberAndIndex.Key(key.MarshalBinary())
}

// TxsByBlockNumPrefix is the prefix shared by every transaction of a block.
func TxsByBlockNumPrefix(num uint64) []byte {
	b := Uint64ToBytes(num)
	return TransactionsByBlockNumberAndIndex.Key(b[:])
}

func ReceiptByBlockNumIndexKey(num, index uint64) []byte {
	key := &BlockNumIndexKey{Number: num, Index: index}
	return ReceiptsByBlockNumberAndIndex.Key(key.MarshalBinary())
}

func ReceiptsByBlockNumPrefix(num uint64) []byte {
	b := Uint64ToBytes(num)
	return ReceiptsByBlockNumberAndIndex.Key(b[:])
}

func TraceByBlockNumIndexKey(num, index uint64) []byte {
	key := &BlockNumIndexKey{Number: num, Index: index}
	return TracesByBlockNumberAndIndex.Key(key.MarshalBinary())
}

func StateDiffByBlockNumKey(num uint64) []byte {
	b := Uint64ToBytes(num)
	return StateDiffsByBlockNumber.Key(b[:])
}

func ClassKey(classHash *felt.Felt) []byte {
	return Class.Key(classHash.Marshal())
}

func ClassCompiledHashKey(classHash *felt.Felt) []byte {
	return ClassCompiledHash.Key(classHash.Marshal())
}

func ContractClassHashKey(addr *felt.Felt) []byte {
	return ContractClassHash.Key(addr.Marshal())
}

func ContractNonceKey(addr *felt.Felt) []byte {
	return ContractNonce.Key(addr.Marshal())
}

func ContractStorageKey(addr, key *felt.Felt) []byte {
	return ContractStorage.Key(addr.Marshal(), key.Marshal())
}

func ContractStorageRootKey(addr *felt.Felt) []byte {
	return ContractStorageRoot.Key(addr.Marshal())
}

// ContractClassHashHistoryPrefix is the seek prefix of an address' class hash history.
func ContractClassHashHistoryPrefix(addr *felt.Felt) []byte {
	return ContractClassHashHistory.Key(addr.Marshal())
}

func ContractClassHashHistoryKey(addr *felt.Felt, blockNum uint64) []byte {
	b := historyHeight(blockNum)
	return ContractClassHashHistory.Key(addr.Marshal(), b[:])
}

func ContractNonceHistoryPrefix(addr *felt.Felt) []byte {
	return ContractNonceHistory.Key(addr.Marshal())
}

func ContractNonceHistoryKey(addr *felt.Felt, blockNum uint64) []byte {
	b := historyHeight(blockNum)
	return ContractNonceHistory.Key(addr.Marshal(), b[:])
}

func ContractStorageHistoryPrefix(addr, key *felt.Felt) []byte {
	return ContractStorageHistory.Key(addr.Marshal(), key.Marshal())
}

func ContractStorageHistoryKey(addr, key *felt.Felt, blockNum uint64) []byte {
	b := historyHeight(blockNum)
	return ContractStorageHistory.Key(addr.Marshal(), key.Marshal(), b[:])
}

func ContractStorageRootHistoryPrefix(addr *felt.Felt) []byte {
	return ContractStorageRootHistory.Key(addr.Marshal())
}

func ContractStorageRootHistoryKey(addr *felt.Felt, blockNum uint64) []byte {
	b := historyHeight(blockNum)
	return ContractStorageRootHistory.Key(addr.Marshal(), b[:])
}

func StageCheckpointKey(stageID string) []byte {
	return StageCheckpoints.Key([]byte(stageID))
}

// TrieNodeKey addresses a node by the trie it belongs to and its hash.
func TrieNodeKey(trieID []byte, hash *felt.Felt) []byte {
	return TrieNodes.Key(trieID, hash.Marshal())
}

func TrieRootKey(trieID []byte, blockNum uint64) []byte {
	b := Uint64ToBytes(blockNum)
	return TrieRoots.Key(trieID, b[:])
}

// TrieLatestRootKey holds the root of a trie after the latest sealed block.
func TrieLatestRootKey(trieID []byte) []byte {
	return TrieRoots.Key(trieID)
}

func SyncClassKey(classHash *felt.Felt) []byte {
	return SyncClasses.Key(classHash.Marshal())
}
