package blockchain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/core/trie"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/feed"
	"github.com/NethermindEth/katana/utils"
)

type ErrIncompatibleBlock struct {
	reason string
}

func (e ErrIncompatibleBlock) Error() string {
	return fmt.Sprintf("incompatible block: %v", e.reason)
}

// Reader is the read side of the chain. Readers never see a block that is not fully
// committed, and every call runs on its own snapshot.
//
//go:generate mockgen -destination=../mocks/mock_blockchain.go -package=mocks github.com/NethermindEth/katana/blockchain Reader
type Reader interface {
	ChainID() *felt.Felt
	Height() (uint64, error)
	HeadHeader() (*core.Header, error)
	BlockByNumber(number uint64) (*core.Block, error)
	BlockByHash(hash *felt.Felt) (*core.Block, error)
	BlockHeaderByNumber(number uint64) (*core.Header, error)
	BlockHeaderByHash(hash *felt.Felt) (*core.Header, error)
	TransactionByHash(hash *felt.Felt) (core.Transaction, error)
	TransactionByBlockNumberAndIndex(number, index uint64) (core.Transaction, error)
	Receipt(hash *felt.Felt) (*core.TransactionReceipt, *felt.Felt, uint64, error)
	TransactionTrace(hash *felt.Felt) (*core.TransactionTrace, error)
	StateUpdateByNumber(number uint64) (*core.StateDiff, error)
	HeadState() (state.Reader, StateCloser, error)
	StateAtBlockNumber(number uint64) (*state.Snapshot, StateCloser, error)
	EventFilter(address *felt.Felt, keys [][]felt.Felt) (*EventFilter, error)
	SubscribeNewHeads() *feed.Subscription[*core.Block]
}

// StateCloser releases the snapshot a state reader runs on.
type StateCloser = func() error

var _ Reader = (*Blockchain)(nil)

// Blockchain owns every durable piece of the chain: blocks, receipts, traces, state and
// tries. At most one writer runs at a time; the head handle is swapped only after the
// write that produced it is committed.
type Blockchain struct {
	chainID  *felt.Felt
	database db.DB
	cache    *trie.NodeCache
	head     atomic.Pointer[core.Header]
	newHeads *feed.Feed[*core.Block]
	listener EventListener
	log      utils.SimpleLogger
}

func New(database db.DB, chainID *felt.Felt, cache *trie.NodeCache, log utils.SimpleLogger) *Blockchain {
	return &Blockchain{
		chainID:  chainID,
		database: database,
		cache:    cache,
		newHeads: feed.New[*core.Block](),
		listener: &SelectiveListener{},
		log:      log,
	}
}

func (b *Blockchain) WithListener(listener EventListener) *Blockchain {
	b.listener = listener
	return b
}

func (b *Blockchain) ChainID() *felt.Felt {
	return b.chainID
}

// Init checks that the database belongs to this chain and loads the head. When the
// database holds no block and spec is not nil, the genesis block of spec is sealed.
func (b *Blockchain) Init(spec *core.ChainSpec) error {
	if err := b.database.Update(func(txn db.Transaction) error {
		return VerifyMetadata(txn, b.chainID)
	}); err != nil {
		return err
	}

	head, err := b.loadHead()
	if err == nil {
		b.head.Store(head)
		return nil
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return err
	}

	if spec == nil {
		return nil
	}
	genesis := &core.Block{Header: new(core.Header)}
	if spec.Genesis != nil {
		*genesis.Header = *spec.Genesis
	}
	if err = b.Store(genesis, spec.GenesisState, spec.GenesisClasses, nil); err != nil {
		return fmt.Errorf("seal genesis: %w", err)
	}
	b.log.Infow("Sealed genesis block", "hash", genesis.Hash, "stateRoot", genesis.StateRoot)
	return nil
}

func (b *Blockchain) loadHead() (head *core.Header, err error) {
	err = b.database.View(func(txn db.Transaction) error {
		height, err := ChainHeight(txn)
		if err != nil {
			return err
		}
		head, err = BlockHeaderByNumber(txn, height)
		return err
	})
	return head, err
}

// Height returns the latest block height. db.ErrKeyNotFound is returned for an empty chain.
func (b *Blockchain) Height() (uint64, error) {
	b.listener.OnRead("Height")
	head := b.head.Load()
	if head == nil {
		return 0, db.ErrKeyNotFound
	}
	return head.Number, nil
}

func (b *Blockchain) HeadHeader() (*core.Header, error) {
	b.listener.OnRead("HeadHeader")
	head := b.head.Load()
	if head == nil {
		return nil, db.ErrKeyNotFound
	}
	return head, nil
}

func (b *Blockchain) Head() (*core.Block, error) {
	head, err := b.HeadHeader()
	if err != nil {
		return nil, err
	}
	return b.BlockByNumber(head.Number)
}

// view runs fn on a read snapshot together with the height that snapshot sees.
func (b *Blockchain) view(fn func(txn db.Transaction, height uint64) error) error {
	return b.database.View(func(txn db.Transaction) error {
		height, err := ChainHeight(txn)
		if err != nil {
			return err
		}
		return fn(txn, height)
	})
}

func (b *Blockchain) BlockByNumber(number uint64) (block *core.Block, err error) {
	b.listener.OnRead("BlockByNumber")
	err = b.view(func(txn db.Transaction, height uint64) error {
		if number > height {
			return db.ErrKeyNotFound
		}
		block, err = BlockByNumber(txn, number)
		return err
	})
	return block, err
}

func (b *Blockchain) BlockByHash(hash *felt.Felt) (block *core.Block, err error) {
	b.listener.OnRead("BlockByHash")
	err = b.view(func(txn db.Transaction, height uint64) error {
		number, err := blockNumberByHash(txn, hash)
		if err != nil {
			return err
		}
		if number > height {
			return db.ErrKeyNotFound
		}
		block, err = BlockByNumber(txn, number)
		return err
	})
	return block, err
}

func (b *Blockchain) BlockHeaderByNumber(number uint64) (header *core.Header, err error) {
	b.listener.OnRead("BlockHeaderByNumber")
	err = b.view(func(txn db.Transaction, height uint64) error {
		if number > height {
			return db.ErrKeyNotFound
		}
		header, err = BlockHeaderByNumber(txn, number)
		return err
	})
	return header, err
}

func (b *Blockchain) BlockHeaderByHash(hash *felt.Felt) (header *core.Header, err error) {
	b.listener.OnRead("BlockHeaderByHash")
	err = b.view(func(txn db.Transaction, height uint64) error {
		header, err = BlockHeaderByHash(txn, hash)
		if err == nil && header.Number > height {
			return db.ErrKeyNotFound
		}
		return err
	})
	return header, err
}

// locate finds a committed transaction.
func locate(txn db.Transaction, hash *felt.Felt, height uint64) (db.BlockNumIndexKey, error) {
	loc, err := TransactionLocation(txn, hash)
	if err != nil {
		return loc, err
	}
	if loc.Number > height {
		return loc, db.ErrKeyNotFound
	}
	return loc, nil
}

func (b *Blockchain) TransactionByHash(hash *felt.Felt) (tx core.Transaction, err error) {
	b.listener.OnRead("TransactionByHash")
	err = b.view(func(txn db.Transaction, height uint64) error {
		loc, err := locate(txn, hash, height)
		if err != nil {
			return err
		}
		tx, err = TransactionByBlockNumberAndIndex(txn, loc.Number, loc.Index)
		return err
	})
	return tx, err
}

func (b *Blockchain) TransactionByBlockNumberAndIndex(number, index uint64) (tx core.Transaction, err error) {
	b.listener.OnRead("TransactionByBlockNumberAndIndex")
	err = b.view(func(txn db.Transaction, height uint64) error {
		if number > height {
			return db.ErrKeyNotFound
		}
		tx, err = TransactionByBlockNumberAndIndex(txn, number, index)
		return err
	})
	return tx, err
}

// Receipt returns the receipt of a transaction together with the hash and number of the
// block that includes it.
func (b *Blockchain) Receipt(hash *felt.Felt) (receipt *core.TransactionReceipt, blockHash *felt.Felt, blockNumber uint64, err error) {
	b.listener.OnRead("Receipt")
	err = b.view(func(txn db.Transaction, height uint64) error {
		loc, err := locate(txn, hash, height)
		if err != nil {
			return err
		}
		header, err := BlockHeaderByNumber(txn, loc.Number)
		if err != nil {
			return err
		}
		receipt, err = ReceiptByBlockNumberAndIndex(txn, loc.Number, loc.Index)
		if err != nil {
			return err
		}
		blockHash, blockNumber = header.Hash, header.Number
		return nil
	})
	return receipt, blockHash, blockNumber, err
}

func (b *Blockchain) TransactionTrace(hash *felt.Felt) (trace *core.TransactionTrace, err error) {
	b.listener.OnRead("TransactionTrace")
	err = b.view(func(txn db.Transaction, height uint64) error {
		loc, err := locate(txn, hash, height)
		if err != nil {
			return err
		}
		trace, err = TraceByBlockNumberAndIndex(txn, loc.Number, loc.Index)
		return err
	})
	return trace, err
}

func (b *Blockchain) StateUpdateByNumber(number uint64) (diff *core.StateDiff, err error) {
	b.listener.OnRead("StateUpdateByNumber")
	err = b.view(func(txn db.Transaction, height uint64) error {
		if number > height {
			return db.ErrKeyNotFound
		}
		diff, err = StateDiffByBlockNumber(txn, number)
		return err
	})
	return diff, err
}

// HeadState returns a reader over the latest state. The caller must call the closer.
func (b *Blockchain) HeadState() (state.Reader, StateCloser, error) {
	b.listener.OnRead("HeadState")
	txn := b.database.NewTransaction(false)
	if _, err := ChainHeight(txn); err != nil {
		return nil, nil, utils.RunAndWrapOnError(txn.Discard, err)
	}
	return state.New(txn, b.cache), txn.Discard, nil
}

// StateAtBlockNumber returns the state as it was at the end of block number.
func (b *Blockchain) StateAtBlockNumber(number uint64) (*state.Snapshot, StateCloser, error) {
	b.listener.OnRead("StateAtBlockNumber")
	txn := b.database.NewTransaction(false)
	height, err := ChainHeight(txn)
	if err != nil {
		return nil, nil, utils.RunAndWrapOnError(txn.Discard, err)
	}
	if number > height {
		return nil, nil, utils.RunAndWrapOnError(txn.Discard, db.ErrKeyNotFound)
	}
	return state.NewSnapshot(txn, number, b.cache), txn.Discard, nil
}

func (b *Blockchain) StateAtBlockHash(hash *felt.Felt) (*state.Snapshot, StateCloser, error) {
	header, err := b.BlockHeaderByHash(hash)
	if err != nil {
		return nil, nil, err
	}
	return b.StateAtBlockNumber(header.Number)
}

// SubscribeNewHeads streams every block committed from now on. Subscribers that fall
// behind are closed.
func (b *Blockchain) SubscribeNewHeads() *feed.Subscription[*core.Block] {
	return b.newHeads.SubscribeCloseOnLag(newHeadsBuffer)
}

const newHeadsBuffer = 64

// Store applies block on top of the head in a single database transaction. A block
// without a hash is sealed: its state root, commitments, bloom and hash are computed from
// the state it produces. A block with a hash is verified against the state it produces.
// classes holds the definitions of the classes the diff declares; traces may be nil.
func (b *Blockchain) Store(block *core.Block, diff *core.StateDiff, classes map[felt.Felt]*core.Class,
	traces []*core.TransactionTrace,
) error {
	start := time.Now()
	if diff == nil {
		diff = core.EmptyStateDiff()
	}

	header := *block.Header
	sealed := &core.Block{Header: &header, Transactions: block.Transactions, Receipts: block.Receipts}
	err := b.database.Update(func(txn db.Transaction) error {
		if err := verifyParent(txn, &header); err != nil {
			return err
		}
		root, err := state.New(txn, b.cache).Update(header.Number, diff, classes)
		if err != nil {
			return err
		}

		if header.Hash == nil {
			if err = seal(sealed, diff, root); err != nil {
				return err
			}
		} else if err = verifyImported(sealed, diff, root); err != nil {
			return err
		}

		if err = StoreBlockBody(txn, sealed, diff, traces); err != nil {
			return err
		}
		return setChainHeight(txn, header.Number)
	})
	if err != nil {
		return err
	}

	block.Header = &header
	b.head.Store(&header)
	b.newHeads.Send(block)
	b.listener.OnStore(header.Number, time.Since(start))
	return nil
}

func verifyParent(txn db.Transaction, header *core.Header) error {
	height, err := ChainHeight(txn)
	if errors.Is(err, db.ErrKeyNotFound) {
		if header.Number != 0 {
			return ErrIncompatibleBlock{fmt.Sprintf("first block must be the genesis, got %d", header.Number)}
		}
		if header.ParentHash != nil && !header.ParentHash.IsZero() {
			return ErrIncompatibleBlock{"genesis block must not have a parent"}
		}
		header.ParentHash = &felt.Zero
		return nil
	} else if err != nil {
		return err
	}

	head, err := BlockHeaderByNumber(txn, height)
	if err != nil {
		return err
	}
	return verifyLink(head, header)
}

// verifyLink checks that header extends parent.
func verifyLink(parent, header *core.Header) error {
	if header.Number != parent.Number+1 {
		return ErrIncompatibleBlock{fmt.Sprintf("block number %d does not follow %d", header.Number, parent.Number)}
	}
	if header.ParentHash == nil {
		header.ParentHash = parent.Hash
	} else if !header.ParentHash.Equal(parent.Hash) {
		return ErrIncompatibleBlock{fmt.Sprintf("block's parent hash %v does not match head block hash %v",
			header.ParentHash, parent.Hash)}
	}
	if header.Timestamp < parent.Timestamp {
		return ErrIncompatibleBlock{fmt.Sprintf("block timestamp %d is before its parent's %d", header.Timestamp, parent.Timestamp)}
	}
	return nil
}

// seal fills in the header fields that depend on the body and the post-state.
func seal(block *core.Block, diff *core.StateDiff, root *felt.Felt) error {
	commitments, err := core.Commitments(block, diff)
	if err != nil {
		return err
	}
	block.SetCommitments(commitments)
	block.StateRoot = root
	block.TransactionCount = uint64(len(block.Transactions))
	block.EventCount = core.EventCount(block.Receipts)
	block.EventsBloom = core.EventsBloom(block.Receipts)
	block.Hash = core.BlockHash(block.Header)
	return nil
}

func verifyImported(block *core.Block, diff *core.StateDiff, root *felt.Felt) error {
	if block.StateRoot == nil || !block.StateRoot.Equal(root) {
		return ErrIncompatibleBlock{fmt.Sprintf("state root %v of block %d does not match the computed %v",
			block.StateRoot, block.Number, root)}
	}
	if err := core.VerifyBlock(block, diff); err != nil {
		return err
	}
	if block.EventsBloom == nil {
		block.EventsBloom = core.EventsBloom(block.Receipts)
	}
	return nil
}

// CommitStored applies the state of the blocks stored ahead of the head, up to and
// including to, and makes them the new head. Their bodies must have been stored with
// StoreBlockBody and the definitions of the classes they declare with StoreSyncClass.
// extra runs in the same transaction, after the last block is applied.
func (b *Blockchain) CommitStored(to uint64, extra func(txn db.Transaction) error) error {
	start := time.Now()
	var applied []*core.Block
	err := b.database.Update(func(txn db.Transaction) error {
		next := uint64(0)
		if height, err := ChainHeight(txn); err == nil {
			next = height + 1
		} else if !errors.Is(err, db.ErrKeyNotFound) {
			return err
		}

		for number := next; number <= to; number++ {
			block, err := applyStored(txn, b.cache, number)
			if err != nil {
				return fmt.Errorf("apply block %d: %w", number, err)
			}
			applied = append(applied, block)
		}
		if len(applied) > 0 {
			if err := setChainHeight(txn, to); err != nil {
				return err
			}
		}
		if extra != nil {
			return extra(txn)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, block := range applied {
		b.head.Store(block.Header)
		b.newHeads.Send(block)
		b.listener.OnStore(block.Number, time.Since(start))
	}
	return nil
}

func applyStored(txn db.Transaction, cache *trie.NodeCache, number uint64) (*core.Block, error) {
	block, err := BlockByNumber(txn, number)
	if err != nil {
		return nil, err
	}
	diff, err := StateDiffByBlockNumber(txn, number)
	if err != nil {
		return nil, err
	}

	classes := make(map[felt.Felt]*core.Class, len(diff.DeclaredClasses))
	for classHash := range diff.DeclaredClasses {
		class, err := SyncClass(txn, &classHash)
		if err != nil {
			return nil, err
		}
		classes[classHash] = class
	}

	root, err := state.New(txn, cache).Update(number, diff, classes)
	if err != nil {
		return nil, err
	}
	if block.StateRoot == nil || !block.StateRoot.Equal(root) {
		return nil, ErrIncompatibleBlock{fmt.Sprintf("state root %v does not match the computed %v", block.StateRoot, root)}
	}

	for classHash := range classes {
		if err = txn.Delete(db.SyncClassKey(&classHash)); err != nil {
			return nil, err
		}
	}
	return block, nil
}

// RevertHead removes the head block and restores the state before it. Stage checkpoints
// past the new head are lowered to it.
func (b *Blockchain) RevertHead() error {
	var newHead *core.Header
	err := b.database.Update(func(txn db.Transaction) error {
		height, err := ChainHeight(txn)
		if err != nil {
			return err
		}
		if height == 0 {
			return errors.New("cannot revert the genesis block")
		}
		block, err := BlockByNumber(txn, height)
		if err != nil {
			return err
		}
		diff, err := StateDiffByBlockNumber(txn, height)
		if err != nil {
			return err
		}

		if err = state.New(txn, b.cache).Revert(height, diff); err != nil {
			return err
		}
		if err = deleteBlockBody(txn, block); err != nil {
			return err
		}
		if err = lowerCheckpoints(txn, height-1); err != nil {
			return err
		}
		if newHead, err = BlockHeaderByNumber(txn, height-1); err != nil {
			return err
		}
		return setChainHeight(txn, height-1)
	})
	if err != nil {
		return err
	}
	b.head.Store(newHead)
	b.log.Infow("Reverted head", "number", newHead.Number+1, "newHead", newHead.Hash)
	return nil
}

func lowerCheckpoints(txn db.Transaction, number uint64) error {
	type checkpoint struct {
		key    []byte
		number uint64
	}
	var checkpoints []checkpoint
	err := iteratePrefix(txn, db.StageCheckpoints.Key(), func(key, val []byte) error {
		if len(val) != 8 {
			return db.Corrupt(db.StageCheckpoints, key, fmt.Errorf("checkpoint has %d bytes", len(val)))
		}
		checkpoints = append(checkpoints, checkpoint{key: append([]byte{}, key...), number: binary.BigEndian.Uint64(val)})
		return nil
	})
	if err != nil {
		return err
	}
	for _, cp := range checkpoints {
		if cp.number > number {
			lowered := db.Uint64ToBytes(number)
			if err = txn.Set(cp.key, lowered[:]); err != nil {
				return err
			}
		}
	}
	return nil
}
