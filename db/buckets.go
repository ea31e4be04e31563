package db

import (
	"slices"
	"strconv"
)

type Bucket byte

// Pebble does not support buckets to differentiate between groups of
// keys like Bolt or MDBX does. We use a global prefix list as a poor
// man's bucket alternative.
const (
	Metadata                                Bucket = iota // schema version and chain id
	ChainHeight                                           // latest sealed block number
	BlockHeaderNumbersByHash                              // block hash -> block number
	BlockHeadersByNumber                                  // block number -> header
	TransactionBlockNumbersAndIndicesByHash               // tx hash -> (block number, index)
	TransactionsByBlockNumberAndIndex                     // (block number, index) -> tx
	ReceiptsByBlockNumberAndIndex                         // (block number, index) -> receipt
	TracesByBlockNumberAndIndex                           // (block number, index) -> execution trace
	StateDiffsByBlockNumber                               // block number -> state diff
	Class                                                 // class hash -> class definition
	ClassCompiledHash                                     // class hash -> compiled class hash
	ContractClassHash                                     // address -> latest class hash
	ContractNonce                                         // address -> latest nonce
	ContractStorage                                       // (address, key) -> latest value
	ContractStorageRoot                                   // address -> latest storage root
	ContractClassHashHistory                              // (address, ^block) -> class hash set at block
	ContractNonceHistory                                  // (address, ^block) -> nonce set at block
	ContractStorageHistory                                // (address, key, ^block) -> value set at block
	ContractStorageRootHistory                            // (address, ^block) -> storage root at block
	TrieNodes                                             // (trie id, node hash) -> encoded node
	TrieRoots                                             // (trie id, block number) -> root hash
	StageCheckpoints                                      // stage id -> highest processed block
	SyncClasses                                           // class hash -> definition downloaded ahead of the head
	numBuckets
)

var bucketNames = [...]string{
	"Metadata",
	"ChainHeight",
	"BlockHeaderNumbersByHash",
	"BlockHeadersByNumber",
	"TransactionBlockNumbersAndIndicesByHash",
	"TransactionsByBlockNumberAndIndex",
	"ReceiptsByBlockNumberAndIndex",
	"TracesByBlockNumberAndIndex",
	"StateDiffsByBlockNumber",
	"Class",
	"ClassCompiledHash",
	"ContractClassHash",
	"ContractNonce",
	"ContractStorage",
	"ContractStorageRoot",
	"ContractClassHashHistory",
	"ContractNonceHistory",
	"ContractStorageHistory",
	"ContractStorageRootHistory",
	"TrieNodes",
	"TrieRoots",
	"StageCheckpoints",
	"SyncClasses",
}

// Key flattens a prefix and series of byte arrays into a single []byte.
func (b Bucket) Key(key ...[]byte) []byte {
	return append([]byte{byte(b)}, slices.Concat(key...)...)
}

func (b Bucket) String() string {
	if int(b) < len(bucketNames) {
		return bucketNames[b]
	}
	return "Bucket(" + strconv.Itoa(int(b)) + ")"
}

// BucketValues returns all buckets in prefix order.
func BucketValues() []Bucket {
	buckets := make([]Bucket, numBuckets)
	for i := range buckets {
		buckets[i] = Bucket(i)
	}
	return buckets
}

// BucketString looks a bucket up by name.
func BucketString(name string) (Bucket, bool) {
	for i, n := range bucketNames {
		if n == name {
			return Bucket(i), true
		}
	}
	return 0, false
}
