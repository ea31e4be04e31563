// Package state keeps the contract state of the chain: the values after the latest block,
// a per-block change index to answer queries as of any earlier block, and the commitment
// tries the state root is derived from.
package state

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/trie"
	"github.com/NethermindEth/katana/db"
)

const (
	ContractTrieHeight = trie.MaxPathLen
	ClassTrieHeight    = trie.MaxPathLen
	StorageTrieHeight  = trie.MaxPathLen
)

//go:generate mockgen -destination=../../mocks/mock_state.go -package=mocks -mock_names=Reader=MockStateReader github.com/NethermindEth/katana/core/state Reader
type Reader interface {
	ContractClassHash(addr *felt.Felt) (felt.Felt, error)
	ContractNonce(addr *felt.Felt) (felt.Felt, error)
	ContractStorage(addr, key *felt.Felt) (felt.Felt, error)
	Class(classHash *felt.Felt) (*core.DeclaredClass, error)
	CompiledClassHash(classHash *felt.Felt) (felt.Felt, error)
}

var _ Reader = (*State)(nil)

// State reads and advances the latest state inside a database transaction.
type State struct {
	txn   db.Transaction
	cache *trie.NodeCache
}

func New(txn db.Transaction, cache *trie.NodeCache) *State {
	return &State{txn: txn, cache: cache}
}

func (s *State) ContractClassHash(addr *felt.Felt) (felt.Felt, error) {
	classHash, found, err := getFelt(s.txn, db.ContractClassHashKey(addr))
	if err != nil {
		return felt.Felt{}, err
	}
	if !found {
		return felt.Felt{}, ErrContractNotDeployed
	}
	return classHash, nil
}

func (s *State) ContractNonce(addr *felt.Felt) (felt.Felt, error) {
	nonce, found, err := getFelt(s.txn, db.ContractNonceKey(addr))
	if err != nil {
		return felt.Felt{}, err
	}
	if !found {
		return felt.Felt{}, ErrContractNotDeployed
	}
	return nonce, nil
}

// ContractStorage returns zero for unset slots.
func (s *State) ContractStorage(addr, key *felt.Felt) (felt.Felt, error) {
	value, _, err := getFelt(s.txn, db.ContractStorageKey(addr, key))
	return value, err
}

func (s *State) Class(classHash *felt.Felt) (*core.DeclaredClass, error) {
	return getClass(s.txn, classHash)
}

func (s *State) CompiledClassHash(classHash *felt.Felt) (felt.Felt, error) {
	compiled, found, err := getFelt(s.txn, db.ClassCompiledHashKey(classHash))
	if err != nil {
		return felt.Felt{}, err
	}
	if !found {
		return felt.Felt{}, core.ErrClassNotFound
	}
	return compiled, nil
}

// Root returns the state root after the latest block.
func (s *State) Root() (*felt.Felt, error) {
	contractsRoot, err := s.latestRoot(trie.ContractsID())
	if err != nil {
		return nil, err
	}
	classesRoot, err := s.latestRoot(trie.ClassesID())
	if err != nil {
		return nil, err
	}
	return core.StateRoot(&contractsRoot, &classesRoot), nil
}

func (s *State) latestRoot(id trie.ID) (felt.Felt, error) {
	root, _, err := getFelt(s.txn, db.TrieLatestRootKey(id.Key()))
	return root, err
}

func (s *State) storageRoot(addr *felt.Felt) (felt.Felt, error) {
	root, _, err := getFelt(s.txn, db.ContractStorageRootKey(addr))
	return root, err
}

// ContractsTrie opens the contracts trie at the latest root.
func (s *State) ContractsTrie() (*trie.Trie, error) {
	return s.openLatest(trie.ContractsID(), ContractTrieHeight)
}

func (s *State) ClassesTrie() (*trie.Trie, error) {
	return s.openLatest(trie.ClassesID(), ClassTrieHeight)
}

func (s *State) StorageTrie(addr *felt.Felt) (*trie.Trie, error) {
	root, err := s.storageRoot(addr)
	if err != nil {
		return nil, err
	}
	return trie.New(trie.NewTxnStore(s.txn, trie.StorageID(addr), s.cache), StorageTrieHeight, &root)
}

func (s *State) openLatest(id trie.ID, height uint8) (*trie.Trie, error) {
	root, err := s.latestRoot(id)
	if err != nil {
		return nil, err
	}
	return trie.New(trie.NewTxnStore(s.txn, id, s.cache), height, &root)
}

// Update applies the state diff of block blockNum, records every change in the history
// index, advances the commitment tries and returns the new state root. classes must hold
// the definition of every class the diff declares.
func (s *State) Update(blockNum uint64, diff *core.StateDiff, classes map[felt.Felt]*core.Class) (*felt.Felt, error) {
	if err := s.declareClasses(blockNum, diff.DeclaredClasses, classes); err != nil {
		return nil, err
	}

	for addr, classHash := range diff.DeployedContracts {
		if err := s.deployContract(blockNum, &addr, classHash); err != nil {
			return nil, err
		}
	}
	for addr, classHash := range diff.ReplacedClasses {
		if _, err := s.ContractClassHash(&addr); err != nil {
			return nil, fmt.Errorf("replace class of %s: %w", addr.String(), err)
		}
		if err := s.setWithHistory(db.ContractClassHashKey(&addr), db.ContractClassHashHistoryKey(&addr, blockNum), classHash); err != nil {
			return nil, err
		}
	}
	for addr, nonce := range diff.Nonces {
		if _, err := s.ContractNonce(&addr); err != nil {
			return nil, fmt.Errorf("update nonce of %s: %w", addr.String(), err)
		}
		if err := s.setWithHistory(db.ContractNonceKey(&addr), db.ContractNonceHistoryKey(&addr, blockNum), nonce); err != nil {
			return nil, err
		}
	}

	if err := s.updateClassesTrie(blockNum, diff.DeclaredClasses); err != nil {
		return nil, err
	}
	if err := s.updateContractsTrie(blockNum, diff); err != nil {
		return nil, err
	}
	return s.Root()
}

func (s *State) declareClasses(blockNum uint64, declared map[felt.Felt]*felt.Felt, classes map[felt.Felt]*core.Class) error {
	for classHash, compiledClassHash := range declared {
		class, ok := classes[classHash]
		if !ok {
			return fmt.Errorf("%w: definition of declared class %s", core.ErrClassNotFound, classHash.String())
		}
		exists, err := s.txn.Has(db.ClassKey(&classHash))
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrClassAlreadyDeclared, classHash.String())
		}

		blob, err := core.MarshalClass(&core.DeclaredClass{At: blockNum, Class: class, CompiledClassHash: compiledClassHash})
		if err != nil {
			return err
		}
		if err = s.txn.Set(db.ClassKey(&classHash), blob); err != nil {
			return err
		}
		if err = s.txn.Set(db.ClassCompiledHashKey(&classHash), compiledClassHash.Marshal()); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) deployContract(blockNum uint64, addr, classHash *felt.Felt) error {
	exists, err := s.txn.Has(db.ContractClassHashKey(addr))
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrContractAlreadyDeployed, addr.String())
	}
	if err = s.setWithHistory(db.ContractClassHashKey(addr), db.ContractClassHashHistoryKey(addr, blockNum), classHash); err != nil {
		return err
	}
	return s.setWithHistory(db.ContractNonceKey(addr), db.ContractNonceHistoryKey(addr, blockNum), &felt.Zero)
}

func (s *State) updateClassesTrie(blockNum uint64, declared map[felt.Felt]*felt.Felt) error {
	classes, err := s.ClassesTrie()
	if err != nil {
		return err
	}
	for _, classHash := range sortedKeys(declared) {
		if err = classes.Put(&classHash, core.ClassLeafHash(declared[classHash])); err != nil {
			return err
		}
	}
	return s.commitTrie(classes, trie.ClassesID(), blockNum)
}

func (s *State) updateContractsTrie(blockNum uint64, diff *core.StateDiff) error {
	contracts, err := s.ContractsTrie()
	if err != nil {
		return err
	}

	for _, addr := range diff.TouchedAddresses() {
		storageRoot, err := s.updateStorageTrie(blockNum, &addr, diff.StorageDiffs[addr])
		if err != nil {
			return err
		}
		classHash, err := s.ContractClassHash(&addr)
		if err != nil {
			return fmt.Errorf("update storage of %s: %w", addr.String(), err)
		}
		nonce, err := s.ContractNonce(&addr)
		if err != nil {
			return err
		}
		if err = contracts.Put(&addr, core.ContractLeafHash(&classHash, storageRoot, &nonce)); err != nil {
			return err
		}
	}
	return s.commitTrie(contracts, trie.ContractsID(), blockNum)
}

func (s *State) updateStorageTrie(blockNum uint64, addr *felt.Felt, storage map[felt.Felt]*felt.Felt) (*felt.Felt, error) {
	storageTrie, err := s.StorageTrie(addr)
	if err != nil {
		return nil, err
	}
	if len(storage) == 0 {
		return storageTrie.Hash(), nil
	}

	for _, key := range sortedKeys(storage) {
		value := storage[key]
		if err = s.setWithHistory(db.ContractStorageKey(addr, &key), db.ContractStorageHistoryKey(addr, &key, blockNum), value); err != nil {
			return nil, err
		}
		if err = storageTrie.Put(&key, value); err != nil {
			return nil, err
		}
	}

	root, err := storageTrie.Commit()
	if err != nil {
		return nil, err
	}
	if err = s.setWithHistory(db.ContractStorageRootKey(addr), db.ContractStorageRootHistoryKey(addr, blockNum), root); err != nil {
		return nil, err
	}
	return root, nil
}

func (s *State) commitTrie(t *trie.Trie, id trie.ID, blockNum uint64) error {
	root, err := t.Commit()
	if err != nil {
		return err
	}
	if err = s.txn.Set(db.TrieRootKey(id.Key(), blockNum), root.Marshal()); err != nil {
		return err
	}
	return s.txn.Set(db.TrieLatestRootKey(id.Key()), root.Marshal())
}

// setWithHistory writes the latest value and records it as the value set at the history
// key's block. Zero values remove the latest row but are kept in the history.
func (s *State) setWithHistory(key, historyKey []byte, value *felt.Felt) error {
	if err := s.txn.Set(historyKey, value.Marshal()); err != nil {
		return err
	}
	if value.IsZero() && key[0] == byte(db.ContractStorage) {
		return s.txn.Delete(key)
	}
	return s.txn.Set(key, value.Marshal())
}

// Revert undoes the state diff of block blockNum, which must be the latest block. Trie
// nodes are content addressed and left in place; the roots of blockNum-1 become latest.
func (s *State) Revert(blockNum uint64, diff *core.StateDiff) error {
	if blockNum == 0 {
		return errors.New("cannot revert the genesis block")
	}
	prev := blockNum - 1

	for addr, storage := range diff.StorageDiffs {
		for key := range storage {
			if err := s.revertValue(db.ContractStorageKey(&addr, &key), db.ContractStorageHistoryPrefix(&addr, &key), blockNum); err != nil {
				return err
			}
		}
		if err := s.revertValue(db.ContractStorageRootKey(&addr), db.ContractStorageRootHistoryPrefix(&addr), blockNum); err != nil {
			return err
		}
	}
	for addr := range diff.Nonces {
		if err := s.revertValue(db.ContractNonceKey(&addr), db.ContractNonceHistoryPrefix(&addr), blockNum); err != nil {
			return err
		}
	}
	for addr := range diff.ReplacedClasses {
		if err := s.revertValue(db.ContractClassHashKey(&addr), db.ContractClassHashHistoryPrefix(&addr), blockNum); err != nil {
			return err
		}
	}
	for addr := range diff.DeployedContracts {
		if err := s.revertValue(db.ContractClassHashKey(&addr), db.ContractClassHashHistoryPrefix(&addr), blockNum); err != nil {
			return err
		}
		if err := s.revertValue(db.ContractNonceKey(&addr), db.ContractNonceHistoryPrefix(&addr), blockNum); err != nil {
			return err
		}
	}
	for classHash := range diff.DeclaredClasses {
		if err := s.txn.Delete(db.ClassKey(&classHash)); err != nil {
			return err
		}
		if err := s.txn.Delete(db.ClassCompiledHashKey(&classHash)); err != nil {
			return err
		}
	}

	for _, id := range []trie.ID{trie.ContractsID(), trie.ClassesID()} {
		root, _, err := getFelt(s.txn, db.TrieRootKey(id.Key(), prev))
		if err != nil {
			return err
		}
		if err = s.txn.Set(db.TrieLatestRootKey(id.Key()), root.Marshal()); err != nil {
			return err
		}
		if err = s.txn.Delete(db.TrieRootKey(id.Key(), blockNum)); err != nil {
			return err
		}
	}
	return nil
}

// revertValue removes the change recorded at blockNum and restores the latest row to the
// value before it.
func (s *State) revertValue(key, historyPrefix []byte, blockNum uint64) error {
	height := db.Uint64ToBytes(^blockNum)
	if err := s.txn.Delete(append(append([]byte{}, historyPrefix...), height[:]...)); err != nil {
		return err
	}

	prev, found, err := valueAt(s.txn, historyPrefix, blockNum-1)
	if err != nil {
		return err
	}
	if !found || (prev.IsZero() && key[0] == byte(db.ContractStorage)) {
		return s.txn.Delete(key)
	}
	return s.txn.Set(key, prev.Marshal())
}

func getFelt(txn db.Transaction, key []byte) (felt.Felt, bool, error) {
	var f felt.Felt
	err := txn.Get(key, func(val []byte) error {
		if err := f.SetBytesCanonical(val); err != nil {
			return db.Corrupt(db.Bucket(key[0]), key, err)
		}
		return nil
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return felt.Felt{}, false, nil
	}
	return f, err == nil, err
}

func getClass(txn db.Transaction, classHash *felt.Felt) (*core.DeclaredClass, error) {
	var class *core.DeclaredClass
	key := db.ClassKey(classHash)
	err := txn.Get(key, func(val []byte) error {
		var err error
		if class, err = core.UnmarshalClass(val); err != nil {
			return db.Corrupt(db.Class, key, err)
		}
		return nil
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, core.ErrClassNotFound
	}
	return class, err
}
