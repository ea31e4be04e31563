package blockchain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/encoder"
)

// ChainHeight returns the number of the latest sealed block.
func ChainHeight(txn db.Transaction) (uint64, error) {
	var height uint64
	err := txn.Get(db.ChainHeightKey(), func(val []byte) error {
		if len(val) != 8 {
			return db.Corrupt(db.ChainHeight, db.ChainHeightKey(), fmt.Errorf("height has %d bytes", len(val)))
		}
		height = binary.BigEndian.Uint64(val)
		return nil
	})
	return height, err
}

func setChainHeight(txn db.Transaction, height uint64) error {
	b := db.Uint64ToBytes(height)
	return txn.Set(db.ChainHeightKey(), b[:])
}

func getValue(txn db.Transaction, bucket db.Bucket, key []byte, v any) error {
	return txn.Get(key, func(val []byte) error {
		if err := encoder.Unmarshal(val, v); err != nil {
			return db.Corrupt(bucket, key, err)
		}
		return nil
	})
}

func setValue(txn db.Transaction, key []byte, v any) error {
	blob, err := encoder.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, blob)
}

// BlockHeaderByNumber reads a stored header. Headers of blocks stored ahead of the head
// by the sync pipeline are returned too; callers that serve reads check the height.
func BlockHeaderByNumber(txn db.Transaction, number uint64) (*core.Header, error) {
	header := new(core.Header)
	if err := getValue(txn, db.BlockHeadersByNumber, db.BlockHeaderByNumberKey(number), header); err != nil {
		return nil, err
	}
	return header, nil
}

func blockNumberByHash(txn db.Transaction, hash *felt.Felt) (uint64, error) {
	var number uint64
	key := db.BlockHeaderNumbersByHashKey(hash)
	err := txn.Get(key, func(val []byte) error {
		if len(val) != 8 {
			return db.Corrupt(db.BlockHeaderNumbersByHash, key, fmt.Errorf("number has %d bytes", len(val)))
		}
		number = binary.BigEndian.Uint64(val)
		return nil
	})
	return number, err
}

func BlockHeaderByHash(txn db.Transaction, hash *felt.Felt) (*core.Header, error) {
	number, err := blockNumberByHash(txn, hash)
	if err != nil {
		return nil, err
	}
	return BlockHeaderByNumber(txn, number)
}

// TransactionsByBlockNumber returns the body of block number in order.
func TransactionsByBlockNumber(txn db.Transaction, number uint64) ([]core.Transaction, error) {
	var txs []core.Transaction
	err := iteratePrefix(txn, db.TxsByBlockNumPrefix(number), func(key, val []byte) error {
		tx, err := core.UnmarshalTransaction(val)
		if err != nil {
			return db.Corrupt(db.TransactionsByBlockNumberAndIndex, key, err)
		}
		txs = append(txs, tx)
		return nil
	})
	return txs, err
}

func ReceiptsByBlockNumber(txn db.Transaction, number uint64) ([]*core.TransactionReceipt, error) {
	var receipts []*core.TransactionReceipt
	err := iteratePrefix(txn, db.ReceiptsByBlockNumPrefix(number), func(key, val []byte) error {
		receipt := new(core.TransactionReceipt)
		if err := encoder.Unmarshal(val, receipt); err != nil {
			return db.Corrupt(db.ReceiptsByBlockNumberAndIndex, key, err)
		}
		receipts = append(receipts, receipt)
		return nil
	})
	return receipts, err
}

func iteratePrefix(txn db.Transaction, prefix []byte, fn func(key, val []byte) error) (err error) {
	it, err := txn.NewIterator(prefix)
	if err != nil {
		return err
	}
	defer db.CloseAndWrapOnError(it.Close, &err)

	for it.Next() {
		val, err := it.Value()
		if err != nil {
			return err
		}
		if err = fn(it.Key(), val); err != nil {
			return err
		}
	}
	return nil
}

// BlockByNumber assembles a block from its header, body and receipts.
func BlockByNumber(txn db.Transaction, number uint64) (*core.Block, error) {
	header, err := BlockHeaderByNumber(txn, number)
	if err != nil {
		return nil, err
	}
	txs, err := TransactionsByBlockNumber(txn, number)
	if err != nil {
		return nil, err
	}
	receipts, err := ReceiptsByBlockNumber(txn, number)
	if err != nil {
		return nil, err
	}
	if uint64(len(txs)) != header.TransactionCount || len(receipts) != len(txs) {
		return nil, db.Corrupt(db.BlockHeadersByNumber, db.BlockHeaderByNumberKey(number),
			fmt.Errorf("header counts %d transactions, body has %d and %d receipts", header.TransactionCount, len(txs), len(receipts)))
	}
	return &core.Block{
		Header:       header,
		Transactions: txs,
		Receipts:     receipts,
	}, nil
}

// TransactionLocation returns the block number and index of a stored transaction.
func TransactionLocation(txn db.Transaction, hash *felt.Felt) (db.BlockNumIndexKey, error) {
	var loc db.BlockNumIndexKey
	key := db.TxBlockNumIndexByHashKey(hash)
	err := txn.Get(key, func(val []byte) error {
		if err := loc.UnmarshalBinary(val); err != nil {
			return db.Corrupt(db.TransactionBlockNumbersAndIndicesByHash, key, err)
		}
		return nil
	})
	return loc, err
}

func TransactionByBlockNumberAndIndex(txn db.Transaction, number, index uint64) (core.Transaction, error) {
	var tx core.Transaction
	key := db.TxByBlockNumIndexKey(number, index)
	err := txn.Get(key, func(val []byte) error {
		var err error
		if tx, err = core.UnmarshalTransaction(val); err != nil {
			return db.Corrupt(db.TransactionsByBlockNumberAndIndex, key, err)
		}
		return nil
	})
	return tx, err
}

func ReceiptByBlockNumberAndIndex(txn db.Transaction, number, index uint64) (*core.TransactionReceipt, error) {
	receipt := new(core.TransactionReceipt)
	if err := getValue(txn, db.ReceiptsByBlockNumberAndIndex, db.ReceiptByBlockNumIndexKey(number, index), receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

func TraceByBlockNumberAndIndex(txn db.Transaction, number, index uint64) (*core.TransactionTrace, error) {
	trace := new(core.TransactionTrace)
	if err := getValue(txn, db.TracesByBlockNumberAndIndex, db.TraceByBlockNumIndexKey(number, index), trace); err != nil {
		return nil, err
	}
	return trace, nil
}

// StateDiffByBlockNumber returns the state diff block number applied.
func StateDiffByBlockNumber(txn db.Transaction, number uint64) (*core.StateDiff, error) {
	diff := new(core.StateDiff)
	if err := getValue(txn, db.StateDiffsByBlockNumber, db.StateDiffByBlockNumKey(number), diff); err != nil {
		return nil, err
	}
	diff.Merge(core.EmptyStateDiff())
	return diff, nil
}

// StoreBlockBody writes the header, transactions, receipts, traces and state diff of block.
// It does not touch the state or the chain height. traces may be nil.
func StoreBlockBody(txn db.Transaction, block *core.Block, diff *core.StateDiff, traces []*core.TransactionTrace) error {
	if len(block.Transactions) != len(block.Receipts) {
		return fmt.Errorf("%w: %d transactions, %d receipts", core.ErrReceiptsMismatch, len(block.Transactions), len(block.Receipts))
	}
	if traces != nil && len(traces) != len(block.Transactions) {
		return fmt.Errorf("%d traces for %d transactions", len(traces), len(block.Transactions))
	}

	number := db.Uint64ToBytes(block.Number)
	if err := txn.Set(db.BlockHeaderNumbersByHashKey(block.Hash), number[:]); err != nil {
		return err
	}
	if err := setValue(txn, db.BlockHeaderByNumberKey(block.Number), block.Header); err != nil {
		return err
	}

	for i, tx := range block.Transactions {
		index := uint64(i)
		blob, err := core.MarshalTransaction(tx)
		if err != nil {
			return err
		}
		if err = txn.Set(db.TxByBlockNumIndexKey(block.Number, index), blob); err != nil {
			return err
		}
		loc := db.BlockNumIndexKey{Number: block.Number, Index: index}
		if err = txn.Set(db.TxBlockNumIndexByHashKey(tx.Hash()), loc.MarshalBinary()); err != nil {
			return err
		}
		if err = setValue(txn, db.ReceiptByBlockNumIndexKey(block.Number, index), block.Receipts[i]); err != nil {
			return err
		}
		if traces != nil {
			if err = setValue(txn, db.TraceByBlockNumIndexKey(block.Number, index), traces[i]); err != nil {
				return err
			}
		}
	}
	return setValue(txn, db.StateDiffByBlockNumKey(block.Number), diff)
}

// deleteBlockBody removes everything StoreBlockBody wrote for block.
func deleteBlockBody(txn db.Transaction, block *core.Block) error {
	if err := txn.Delete(db.BlockHeaderNumbersByHashKey(block.Hash)); err != nil {
		return err
	}
	if err := txn.Delete(db.BlockHeaderByNumberKey(block.Number)); err != nil {
		return err
	}
	for i, tx := range block.Transactions {
		index := uint64(i)
		for _, key := range [][]byte{
			db.TxByBlockNumIndexKey(block.Number, index),
			db.TxBlockNumIndexByHashKey(tx.Hash()),
			db.ReceiptByBlockNumIndexKey(block.Number, index),
			db.TraceByBlockNumIndexKey(block.Number, index),
		} {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
	}
	return txn.Delete(db.StateDiffByBlockNumKey(block.Number))
}

// StageCheckpoint returns the highest block the stage has processed. found is false for a
// stage that never completed a window.
func StageCheckpoint(txn db.Transaction, stageID string) (number uint64, found bool, err error) {
	key := db.StageCheckpointKey(stageID)
	err = txn.Get(key, func(val []byte) error {
		if len(val) != 8 {
			return db.Corrupt(db.StageCheckpoints, key, fmt.Errorf("checkpoint has %d bytes", len(val)))
		}
		number = binary.BigEndian.Uint64(val)
		return nil
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, false, nil
	}
	return number, err == nil, err
}

func SetStageCheckpoint(txn db.Transaction, stageID string, number uint64) error {
	b := db.Uint64ToBytes(number)
	return txn.Set(db.StageCheckpointKey(stageID), b[:])
}

// StoreSyncClass keeps a class definition downloaded for a block that is not applied yet.
func StoreSyncClass(txn db.Transaction, classHash *felt.Felt, class *core.Class) error {
	return setValue(txn, db.SyncClassKey(classHash), class)
}

// HasSyncClass reports whether a definition for classHash was downloaded.
func HasSyncClass(txn db.Transaction, classHash *felt.Felt) (bool, error) {
	return txn.Has(db.SyncClassKey(classHash))
}

// SyncClass returns a definition stored with StoreSyncClass.
func SyncClass(txn db.Transaction, classHash *felt.Felt) (*core.Class, error) {
	class := new(core.Class)
	err := getValue(txn, db.SyncClasses, db.SyncClassKey(classHash), class)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s was not downloaded", core.ErrClassNotFound, classHash.String())
	}
	return class, err
}

// StoreTraces writes the execution traces of a stored block, replacing any written before.
func StoreTraces(txn db.Transaction, number uint64, traces []*core.TransactionTrace) error {
	for i, trace := range traces {
		if err := setValue(txn, db.TraceByBlockNumIndexKey(number, uint64(i)), trace); err != nil {
			return err
		}
	}
	return nil
}
