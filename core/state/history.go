package state

import (
	"bytes"
	"errors"
	"maps"
	"slices"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/trie"
	"github.com/NethermindEth/katana/db"
)

var _ Reader = (*Snapshot)(nil)

// Snapshot answers state queries as they were at the end of a sealed block. It resolves
// every value through the change index, so it stays correct while later blocks are added.
type Snapshot struct {
	txn         db.Transaction
	blockNumber uint64
	cache       *trie.NodeCache
}

func NewSnapshot(txn db.Transaction, blockNumber uint64, cache *trie.NodeCache) *Snapshot {
	return &Snapshot{
		txn:         txn,
		blockNumber: blockNumber,
		cache:       cache,
	}
}

func (s *Snapshot) BlockNumber() uint64 {
	return s.blockNumber
}

func (s *Snapshot) ContractClassHash(addr *felt.Felt) (felt.Felt, error) {
	classHash, found, err := valueAt(s.txn, db.ContractClassHashHistoryPrefix(addr), s.blockNumber)
	if err != nil {
		return felt.Felt{}, err
	}
	if !found {
		return felt.Felt{}, ErrContractNotDeployed
	}
	return classHash, nil
}

func (s *Snapshot) ContractNonce(addr *felt.Felt) (felt.Felt, error) {
	nonce, found, err := valueAt(s.txn, db.ContractNonceHistoryPrefix(addr), s.blockNumber)
	if err != nil {
		return felt.Felt{}, err
	}
	if !found {
		return felt.Felt{}, ErrContractNotDeployed
	}
	return nonce, nil
}

func (s *Snapshot) ContractStorage(addr, key *felt.Felt) (felt.Felt, error) {
	value, _, err := valueAt(s.txn, db.ContractStorageHistoryPrefix(addr, key), s.blockNumber)
	return value, err
}

func (s *Snapshot) Class(classHash *felt.Felt) (*core.DeclaredClass, error) {
	class, err := getClass(s.txn, classHash)
	if err != nil {
		return nil, err
	}
	if class.At > s.blockNumber {
		return nil, core.ErrClassNotFound
	}
	return class, nil
}

func (s *Snapshot) CompiledClassHash(classHash *felt.Felt) (felt.Felt, error) {
	class, err := s.Class(classHash)
	if err != nil {
		return felt.Felt{}, err
	}
	return *class.CompiledClassHash, nil
}

// Root returns the state root committed by the block.
func (s *Snapshot) Root() (*felt.Felt, error) {
	contractsRoot, err := s.trieRoot(trie.ContractsID())
	if err != nil {
		return nil, err
	}
	classesRoot, err := s.trieRoot(trie.ClassesID())
	if err != nil {
		return nil, err
	}
	return core.StateRoot(&contractsRoot, &classesRoot), nil
}

func (s *Snapshot) trieRoot(id trie.ID) (felt.Felt, error) {
	root, found, err := getFelt(s.txn, db.TrieRootKey(id.Key(), s.blockNumber))
	if err != nil {
		return felt.Felt{}, err
	}
	if !found {
		return felt.Felt{}, db.Corrupt(db.TrieRoots, db.TrieRootKey(id.Key(), s.blockNumber),
			errors.New("no trie root recorded for sealed block"))
	}
	return root, nil
}

// ContractsTrie opens the contracts trie as committed by the block. The trie must not be
// committed back.
func (s *Snapshot) ContractsTrie() (*trie.Trie, error) {
	root, err := s.trieRoot(trie.ContractsID())
	if err != nil {
		return nil, err
	}
	return trie.New(trie.NewTxnStore(s.txn, trie.ContractsID(), s.cache), ContractTrieHeight, &root)
}

func (s *Snapshot) ClassesTrie() (*trie.Trie, error) {
	root, err := s.trieRoot(trie.ClassesID())
	if err != nil {
		return nil, err
	}
	return trie.New(trie.NewTxnStore(s.txn, trie.ClassesID(), s.cache), ClassTrieHeight, &root)
}

func (s *Snapshot) StorageTrie(addr *felt.Felt) (*trie.Trie, error) {
	root, _, err := valueAt(s.txn, db.ContractStorageRootHistoryPrefix(addr), s.blockNumber)
	if err != nil {
		return nil, err
	}
	return trie.New(trie.NewTxnStore(s.txn, trie.StorageID(addr), s.cache), StorageTrieHeight, &root)
}

// StorageRoot returns the root of the contract's storage trie at the block.
func (s *Snapshot) StorageRoot(addr *felt.Felt) (felt.Felt, error) {
	root, _, err := valueAt(s.txn, db.ContractStorageRootHistoryPrefix(addr), s.blockNumber)
	return root, err
}

// valueAt finds the newest change under prefix made at or before blockNum. History keys
// carry the inverted block number, so a forward seek from ^blockNum lands on it.
func valueAt(txn db.Transaction, prefix []byte, blockNum uint64) (felt.Felt, bool, error) {
	it, err := txn.NewIterator(prefix)
	if err != nil {
		return felt.Felt{}, false, err
	}
	defer it.Close()

	height := db.Uint64ToBytes(^blockNum)
	seekKey := append(append(make([]byte, 0, len(prefix)+len(height)), prefix...), height[:]...)
	if !it.Seek(seekKey) {
		return felt.Felt{}, false, nil
	}

	key := it.Key()
	if !bytes.HasPrefix(key, prefix) || len(key) != len(prefix)+len(height) {
		return felt.Felt{}, false, nil
	}
	val, err := it.Value()
	if err != nil {
		return felt.Felt{}, false, err
	}

	var f felt.Felt
	if err = f.SetBytesCanonical(val); err != nil {
		return felt.Felt{}, false, db.Corrupt(db.Bucket(key[0]), key, err)
	}
	return f, true, nil
}

func sortedKeys[V any](m map[felt.Felt]V) []felt.Felt {
	keys := slices.Collect(maps.Keys(m))
	slices.SortFunc(keys, func(a, b felt.Felt) int {
		return a.Cmp(&b)
	})
	return keys
}
