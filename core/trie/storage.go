package trie

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/db"
)

// NodeStore reads and writes encoded nodes of a single trie.
type NodeStore interface {
	Node(hash *felt.Felt) ([]byte, error)
	Put(hash *felt.Felt, blob []byte) error
}

var (
	_ NodeStore = (*TxnStore)(nil)
	_ NodeStore = (*memStore)(nil)
)

// TxnStore keeps the nodes of one trie inside a database transaction, in front of an
// optional clean cache shared between transactions.
type TxnStore struct {
	txn    db.Transaction
	prefix []byte
	cache  *NodeCache
}

func NewTxnStore(txn db.Transaction, id ID, cache *NodeCache) *TxnStore {
	return &TxnStore{
		txn:    txn,
		prefix: id.Key(),
		cache:  cache,
	}
}

func (s *TxnStore) Node(hash *felt.Felt) ([]byte, error) {
	key := db.TrieNodeKey(s.prefix, hash)
	if blob, ok := s.cache.Get(key); ok {
		return blob, nil
	}

	var blob []byte
	err := s.txn.Get(key, func(val []byte) error {
		blob = make([]byte, len(val))
		copy(blob, val)
		return nil
	})
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, db.Corrupt(db.TrieNodes, key, fmt.Errorf("missing trie node %s", hash))
		}
		return nil, err
	}
	nodeReads.Inc()
	s.cache.Set(key, blob)
	return blob, nil
}

func (s *TxnStore) Put(hash *felt.Felt, blob []byte) error {
	key := db.TrieNodeKey(s.prefix, hash)
	if err := s.txn.Set(key, blob); err != nil {
		return err
	}
	nodeWrites.Inc()
	s.cache.Set(key, blob)
	return nil
}

// memStore backs temporary tries.
type memStore map[felt.Felt][]byte

func newMemStore() memStore {
	return make(memStore)
}

func (s memStore) Node(hash *felt.Felt) ([]byte, error) {
	blob, ok := s[*hash]
	if !ok {
		return nil, fmt.Errorf("missing trie node %s", hash)
	}
	return blob, nil
}

func (s memStore) Put(hash *felt.Felt, blob []byte) error {
	s[*hash] = blob
	return nil
}
