package blockchain_test

import (
	"errors"
	"testing"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/db/pebble"
	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	chainID      = new(felt.Felt).SetBytes([]byte("KATANA"))
	genericClass = core.NewClass(core.GenericClass, "[]", "set", "get")
	sender       = new(felt.Felt).SetUint64(0xacc)
	emitter      = new(felt.Felt).SetUint64(0xe1)
	eventKey     = new(felt.Felt).SetUint64(0xbeef)
)

func testSpec(t *testing.T) *core.ChainSpec {
	t.Helper()
	classHash, err := genericClass.Hash()
	require.NoError(t, err)
	compiled, err := genericClass.CompiledClassHash()
	require.NoError(t, err)

	diff := core.EmptyStateDiff()
	diff.DeclaredClasses[*classHash] = compiled
	diff.DeployedContracts[*sender] = classHash
	diff.DeployedContracts[*emitter] = classHash

	return &core.ChainSpec{
		ChainID:         chainID,
		FeeTokenAddress: new(felt.Felt).SetUint64(0xfee),
		ProtocolVersion: core.CurrentProtocolVersion,
		Genesis: &core.Header{
			Timestamp:       100,
			ProtocolVersion: core.CurrentProtocolVersion.String(),
		},
		GenesisState:   diff,
		GenesisClasses: map[felt.Felt]*core.Class{*classHash: genericClass},
	}
}

func newChain(t *testing.T) (*blockchain.Blockchain, db.DB) {
	t.Helper()
	testDB := pebble.NewMemTest(t)
	chain := blockchain.New(testDB, chainID, nil, utils.NewNopZapLogger())
	require.NoError(t, chain.Init(testSpec(t)))
	return chain, testDB
}

// nextBlock builds an unsealed block on top of the head with one invoke from sender that
// emits an event and writes slot to value.
func nextBlock(t *testing.T, chain *blockchain.Blockchain, nonce, slot, value uint64) (*core.Block, *core.StateDiff) {
	t.Helper()
	head, err := chain.HeadHeader()
	require.NoError(t, err)

	tx := &core.InvokeTransaction{
		SenderAddress: sender,
		CallData:      []*felt.Felt{new(felt.Felt).SetUint64(slot)},
		MaxFee:        new(felt.Felt).SetUint64(1000),
		Nonce:         new(felt.Felt).SetUint64(nonce),
		Version:       new(felt.Felt).SetUint64(1),
	}
	tx.TransactionHash, err = core.TransactionHash(tx, chainID)
	require.NoError(t, err)

	receipt := &core.TransactionReceipt{
		TransactionHash: tx.TransactionHash,
		Type:            core.TxInvoke,
		Fee:             new(felt.Felt).SetUint64(10),
		Events: []*core.Event{{
			From: emitter,
			Keys: []*felt.Felt{eventKey},
			Data: []*felt.Felt{new(felt.Felt).SetUint64(value)},
		}},
		ExecutionResources: &core.ExecutionResources{Steps: 100},
	}

	diff := core.EmptyStateDiff()
	diff.Nonces[*sender] = new(felt.Felt).SetUint64(nonce + 1)
	diff.StorageDiffs[*emitter] = map[felt.Felt]*felt.Felt{
		*new(felt.Felt).SetUint64(slot): new(felt.Felt).SetUint64(value),
	}

	return &core.Block{
		Header: &core.Header{
			ParentHash:      head.Hash,
			Number:          head.Number + 1,
			Timestamp:       head.Timestamp + 1,
			ProtocolVersion: core.CurrentProtocolVersion.String(),
		},
		Transactions: []core.Transaction{tx},
		Receipts:     []*core.TransactionReceipt{receipt},
	}, diff
}

func TestInit(t *testing.T) {
	chain, testDB := newChain(t)

	head, err := chain.HeadHeader()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), head.Number)
	assert.Equal(t, &felt.Zero, head.ParentHash)
	assert.Equal(t, core.BlockHash(head), head.Hash)

	t.Run("reopening keeps the head", func(t *testing.T) {
		reopened := blockchain.New(testDB, chainID, nil, utils.NewNopZapLogger())
		require.NoError(t, reopened.Init(testSpec(t)))
		again, err := reopened.HeadHeader()
		require.NoError(t, err)
		assert.Equal(t, head.Hash, again.Hash)
	})

	t.Run("other chain id is refused", func(t *testing.T) {
		other := blockchain.New(testDB, new(felt.Felt).SetBytes([]byte("SN_MAIN")), nil, utils.NewNopZapLogger())
		assert.ErrorIs(t, other.Init(nil), blockchain.ErrChainIDMismatch)
	})

	t.Run("other schema version is refused", func(t *testing.T) {
		schemaDB := pebble.NewMemTest(t)
		require.NoError(t, schemaDB.Update(func(txn db.Transaction) error {
			version := db.Uint64ToBytes(blockchain.SchemaVersion + 1)
			return txn.Set(db.SchemaVersionKey, version[:])
		}))
		other := blockchain.New(schemaDB, chainID, nil, utils.NewNopZapLogger())
		assert.ErrorIs(t, other.Init(nil), blockchain.ErrSchemaMismatch)
	})

	t.Run("empty chain without genesis", func(t *testing.T) {
		empty := blockchain.New(pebble.NewMemTest(t), chainID, nil, utils.NewNopZapLogger())
		require.NoError(t, empty.Init(nil))
		_, err := empty.Height()
		assert.ErrorIs(t, err, db.ErrKeyNotFound)
		_, _, err = empty.HeadState()
		assert.ErrorIs(t, err, db.ErrKeyNotFound)
	})
}

func TestStore(t *testing.T) {
	chain, _ := newChain(t)
	genesis, err := chain.HeadHeader()
	require.NoError(t, err)

	newHeads := chain.SubscribeNewHeads()
	t.Cleanup(newHeads.Unsubscribe)

	block, diff := nextBlock(t, chain, 0, 1, 42)
	require.NoError(t, chain.Store(block, diff, nil, []*core.TransactionTrace{{Type: core.TxInvoke}}))

	assert.Equal(t, block, <-newHeads.Recv())
	require.NotNil(t, block.Hash)
	assert.Equal(t, genesis.Hash, block.ParentHash)
	assert.Equal(t, uint64(1), block.TransactionCount)
	assert.Equal(t, uint64(1), block.EventCount)
	require.NoError(t, core.VerifyBlock(block, diff))

	height, err := chain.Height()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), height)

	t.Run("reads", func(t *testing.T) {
		got, err := chain.BlockByNumber(1)
		require.NoError(t, err)
		assert.Equal(t, block.Hash, got.Hash)
		require.Len(t, got.Transactions, 1)
		assert.Equal(t, block.Transactions[0].Hash(), got.Transactions[0].Hash())

		got, err = chain.BlockByHash(block.Hash)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), got.Number)

		txHash := block.Transactions[0].Hash()
		tx, err := chain.TransactionByHash(txHash)
		require.NoError(t, err)
		assert.Equal(t, txHash, tx.Hash())

		receipt, blockHash, blockNumber, err := chain.Receipt(txHash)
		require.NoError(t, err)
		assert.Equal(t, txHash, receipt.TransactionHash)
		assert.Equal(t, block.Hash, blockHash)
		assert.Equal(t, uint64(1), blockNumber)

		trace, err := chain.TransactionTrace(txHash)
		require.NoError(t, err)
		assert.Equal(t, core.TxInvoke, trace.Type)

		stored, err := chain.StateUpdateByNumber(1)
		require.NoError(t, err)
		assert.Equal(t, diff.Hash(), stored.Hash())

		_, err = chain.BlockByNumber(2)
		assert.ErrorIs(t, err, db.ErrKeyNotFound)
		_, err = chain.TransactionByHash(new(felt.Felt).SetUint64(1))
		assert.ErrorIs(t, err, db.ErrKeyNotFound)
	})

	t.Run("state", func(t *testing.T) {
		head, closer, err := chain.HeadState()
		require.NoError(t, err)
		value, err := head.ContractStorage(emitter, new(felt.Felt).SetUint64(1))
		require.NoError(t, err)
		assert.Equal(t, uint64(42), value.Uint64())
		require.NoError(t, closer())

		snap, closer, err := chain.StateAtBlockNumber(0)
		require.NoError(t, err)
		value, err = snap.ContractStorage(emitter, new(felt.Felt).SetUint64(1))
		require.NoError(t, err)
		assert.True(t, value.IsZero())
		root, err := snap.Root()
		require.NoError(t, err)
		assert.Equal(t, genesis.StateRoot, root)
		require.NoError(t, closer())

		_, _, err = chain.StateAtBlockNumber(5)
		assert.ErrorIs(t, err, db.ErrKeyNotFound)
	})

	t.Run("incompatible blocks", func(t *testing.T) {
		var incompatible blockchain.ErrIncompatibleBlock

		stale, staleDiff := nextBlock(t, chain, 1, 2, 1)
		stale.Number = 1
		assert.True(t, errors.As(chain.Store(stale, staleDiff, nil, nil), &incompatible))

		orphan, orphanDiff := nextBlock(t, chain, 1, 2, 1)
		orphan.ParentHash = new(felt.Felt).SetUint64(0xdead)
		assert.True(t, errors.As(chain.Store(orphan, orphanDiff, nil, nil), &incompatible))

		early, earlyDiff := nextBlock(t, chain, 1, 2, 1)
		early.Timestamp = 1
		assert.True(t, errors.As(chain.Store(early, earlyDiff, nil, nil), &incompatible))

		height, err := chain.Height()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), height)
	})
}

func TestImportVerifiesSealedBlocks(t *testing.T) {
	producer, _ := newChain(t)
	block, diff := nextBlock(t, producer, 0, 1, 42)
	require.NoError(t, producer.Store(block, diff, nil, nil))

	t.Run("sealed block imports", func(t *testing.T) {
		follower, _ := newChain(t)
		imported := &core.Block{Header: new(core.Header), Transactions: block.Transactions, Receipts: block.Receipts}
		*imported.Header = *block.Header
		require.NoError(t, follower.Store(imported, diff, nil, nil))
		head, err := follower.HeadHeader()
		require.NoError(t, err)
		assert.Equal(t, block.Hash, head.Hash)
	})

	t.Run("wrong state root is refused", func(t *testing.T) {
		follower, _ := newChain(t)
		imported := &core.Block{Header: new(core.Header), Transactions: block.Transactions, Receipts: block.Receipts}
		*imported.Header = *block.Header
		imported.StateRoot = new(felt.Felt).SetUint64(1)
		var incompatible blockchain.ErrIncompatibleBlock
		assert.True(t, errors.As(follower.Store(imported, diff, nil, nil), &incompatible))
	})

	t.Run("wrong hash is refused", func(t *testing.T) {
		follower, _ := newChain(t)
		imported := &core.Block{Header: new(core.Header), Transactions: block.Transactions, Receipts: block.Receipts}
		*imported.Header = *block.Header
		imported.Hash = new(felt.Felt).SetUint64(1)
		assert.ErrorIs(t, follower.Store(imported, diff, nil, nil), core.ErrBlockHashMismatch)
	})
}

func TestReadViewIsolation(t *testing.T) {
	chain, _ := newChain(t)
	block, diff := nextBlock(t, chain, 0, 1, 42)
	require.NoError(t, chain.Store(block, diff, nil, nil))

	view, closer, err := chain.StateAtBlockNumber(1)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, closer()) })
	latest, latestCloser, err := chain.HeadState()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, latestCloser()) })

	next, nextDiff := nextBlock(t, chain, 1, 1, 43)
	require.NoError(t, chain.Store(next, nextDiff, nil, nil))

	for _, r := range []state.Reader{view, latest} {
		value, err := r.ContractStorage(emitter, new(felt.Felt).SetUint64(1))
		require.NoError(t, err)
		assert.Equal(t, uint64(42), value.Uint64())
	}

	fresh, freshCloser, err := chain.HeadState()
	require.NoError(t, err)
	value, err := fresh.ContractStorage(emitter, new(felt.Felt).SetUint64(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(43), value.Uint64())
	require.NoError(t, freshCloser())
}

func TestRevertHead(t *testing.T) {
	chain, testDB := newChain(t)
	genesis, err := chain.HeadHeader()
	require.NoError(t, err)

	block, diff := nextBlock(t, chain, 0, 1, 42)
	require.NoError(t, chain.Store(block, diff, nil, nil))
	require.NoError(t, testDB.Update(func(txn db.Transaction) error {
		return blockchain.SetStageCheckpoint(txn, "Blocks", 1)
	}))

	require.NoError(t, chain.RevertHead())

	head, err := chain.HeadHeader()
	require.NoError(t, err)
	assert.Equal(t, genesis.Hash, head.Hash)
	_, err = chain.BlockByHash(block.Hash)
	assert.ErrorIs(t, err, db.ErrKeyNotFound)
	_, err = chain.TransactionByHash(block.Transactions[0].Hash())
	assert.ErrorIs(t, err, db.ErrKeyNotFound)

	require.NoError(t, testDB.View(func(txn db.Transaction) error {
		cp, found, err := blockchain.StageCheckpoint(txn, "Blocks")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, uint64(0), cp)
		return nil
	}))

	t.Run("the reverted block can be stored again", func(t *testing.T) {
		again, againDiff := nextBlock(t, chain, 0, 1, 42)
		require.NoError(t, chain.Store(again, againDiff, nil, nil))
		assert.Equal(t, block.Hash, again.Hash)
	})

	t.Run("genesis stays", func(t *testing.T) {
		require.NoError(t, chain.RevertHead())
		assert.Error(t, chain.RevertHead())
	})
}

func TestCommitStored(t *testing.T) {
	producer, _ := newChain(t)
	var blocks []*core.Block
	var diffs []*core.StateDiff
	for i := range uint64(3) {
		block, diff := nextBlock(t, producer, i, i, i+10)
		require.NoError(t, producer.Store(block, diff, nil, nil))
		blocks = append(blocks, block)
		diffs = append(diffs, diff)
	}

	follower, testDB := newChain(t)
	require.NoError(t, testDB.Update(func(txn db.Transaction) error {
		for i, block := range blocks {
			if err := blockchain.StoreBlockBody(txn, block, diffs[i], nil); err != nil {
				return err
			}
		}
		return nil
	}))

	// stored bodies stay invisible until their state is applied
	_, err := follower.BlockByNumber(1)
	assert.ErrorIs(t, err, db.ErrKeyNotFound)

	require.NoError(t, follower.CommitStored(2, func(txn db.Transaction) error {
		return blockchain.SetStageCheckpoint(txn, "Commitments", 2)
	}))
	height, err := follower.Height()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), height)
	_, err = follower.BlockByNumber(3)
	assert.ErrorIs(t, err, db.ErrKeyNotFound)

	require.NoError(t, follower.CommitStored(3, nil))
	head, err := follower.HeadHeader()
	require.NoError(t, err)
	assert.Equal(t, blocks[2].Hash, head.Hash)

	t.Run("state root mismatch stops the commit", func(t *testing.T) {
		block, diff := nextBlock(t, producer, 3, 1, 1)
		require.NoError(t, producer.Store(block, diff, nil, nil))
		diff.StorageDiffs[*emitter][*new(felt.Felt).SetUint64(1)] = new(felt.Felt).SetUint64(2)

		require.NoError(t, testDB.Update(func(txn db.Transaction) error {
			return blockchain.StoreBlockBody(txn, block, diff, nil)
		}))
		var incompatible blockchain.ErrIncompatibleBlock
		assert.True(t, errors.As(follower.CommitStored(4, nil), &incompatible))

		height, err := follower.Height()
		require.NoError(t, err)
		assert.Equal(t, uint64(3), height)
	})
}

func TestEventFilter(t *testing.T) {
	chain, _ := newChain(t)
	for i := range uint64(4) {
		block, diff := nextBlock(t, chain, i, i, i)
		require.NoError(t, chain.Store(block, diff, nil, nil))
	}

	t.Run("all events in chunks", func(t *testing.T) {
		filter, err := chain.EventFilter(emitter, [][]felt.Felt{{*eventKey}})
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, filter.Close()) })

		events, token, err := filter.Events(nil, 3)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.False(t, token.IsEmpty())
		assert.Equal(t, uint64(1), events[0].BlockNumber)

		var parsed blockchain.ContinuationToken
		require.NoError(t, parsed.FromString(token.String()))
		events, token, err = filter.Events(&parsed, 3)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, uint64(4), events[0].BlockNumber)
		assert.True(t, token.IsEmpty())
	})

	t.Run("range", func(t *testing.T) {
		filter, err := chain.EventFilter(nil, nil)
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, filter.Close()) })
		require.NoError(t, filter.SetRangeEndBlockByNumber(blockchain.EventFilterFrom, 2))
		require.NoError(t, filter.SetRangeEndBlockByNumber(blockchain.EventFilterTo, 3))

		events, token, err := filter.Events(nil, 10)
		require.NoError(t, err)
		assert.Len(t, events, 2)
		assert.True(t, token.IsEmpty())
	})

	t.Run("bloom rules out other emitters", func(t *testing.T) {
		filter, err := chain.EventFilter(new(felt.Felt).SetUint64(0x404), nil)
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, filter.Close()) })

		events, _, err := filter.Events(nil, 10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("key mismatch", func(t *testing.T) {
		filter, err := chain.EventFilter(nil, [][]felt.Felt{{*new(felt.Felt).SetUint64(1)}})
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, filter.Close()) })

		events, _, err := filter.Events(nil, 10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("scan limit", func(t *testing.T) {
		filter, err := chain.EventFilter(nil, nil)
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, filter.Close()) })

		events, token, err := filter.WithLimit(2).Events(nil, 10)
		require.NoError(t, err)
		assert.Len(t, events, 1) // genesis has no events
		assert.Equal(t, "2-0", token.String())
	})
}
