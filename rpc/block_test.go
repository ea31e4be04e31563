package rpc_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/mocks"
	"github.com/NethermindEth/katana/rpc"
	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestBlockIDUnmarshal(t *testing.T) {
	tests := map[string]struct {
		json string
		want rpc.BlockID
		err  bool
	}{
		"latest":  {json: `"latest"`, want: rpc.BlockID{Latest: true}},
		"pending": {json: `"pending"`, want: rpc.BlockID{Pending: true}},
		"number":  {json: `{"block_number": 7}`, want: rpc.BlockID{Number: 7}},
		"hash":    {json: `{"block_hash": "0x12"}`, want: rpc.BlockID{Hash: new(felt.Felt).SetUint64(0x12)}},
		"unknown": {json: `"earliest"`, err: true},
		"empty":   {json: `{}`, err: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var id rpc.BlockID
			err := json.Unmarshal([]byte(test.json), &id)
			if test.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, id)
		})
	}
}

func TestBlockNumber(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	t.Cleanup(mockCtrl.Finish)

	mockReader := mocks.NewMockReader(mockCtrl)
	handler := rpc.New(mockReader, nil, nil, "", utils.NewNopZapLogger())

	t.Run("empty blockchain", func(t *testing.T) {
		mockReader.EXPECT().Height().Return(uint64(0), errors.New("empty blockchain"))

		num, rpcErr := handler.BlockNumber()
		assert.Equal(t, uint64(0), num)
		assert.Equal(t, rpc.ErrNoBlock, rpcErr)
	})

	t.Run("blockchain height is 21", func(t *testing.T) {
		mockReader.EXPECT().Height().Return(uint64(21), nil)

		num, rpcErr := handler.BlockNumber()
		require.Nil(t, rpcErr)
		assert.Equal(t, uint64(21), num)
	})
}

func TestBlockHashAndNumber(t *testing.T) {
	tc := newTestChain(t)
	handler := tc.handler()

	got, rpcErr := handler.BlockHashAndNumber()
	require.Nil(t, rpcErr)
	assert.Equal(t, &rpc.BlockHashAndNumber{Hash: tc.block.Hash, Number: 1}, got)
}

func TestBlockWithTxHashes(t *testing.T) {
	tc := newTestChain(t)
	handler := tc.handler()
	want := []*felt.Felt{tc.transfer.TransactionHash, tc.declare.TransactionHash}

	for name, id := range map[string]rpc.BlockID{
		"latest":  {Latest: true},
		"number":  blockNumber(1),
		"hash":    {Hash: tc.block.Hash},
		"pending": {Pending: true},
	} {
		t.Run(name, func(t *testing.T) {
			block, rpcErr := handler.BlockWithTxHashes(id)
			require.Nil(t, rpcErr)
			assert.Equal(t, rpc.BlockAcceptedL2, block.Status)
			assert.Equal(t, want, block.TxnHashes)
			assert.Equal(t, tc.block.Hash, block.Hash)
			require.NotNil(t, block.Number)
			assert.Equal(t, uint64(1), *block.Number)
			assert.Equal(t, tc.block.StateRoot, block.NewRoot)
		})
	}

	t.Run("unknown block", func(t *testing.T) {
		_, rpcErr := handler.BlockWithTxHashes(blockNumber(2))
		assert.Equal(t, rpc.ErrBlockNotFound, rpcErr)

		_, rpcErr = handler.BlockWithTxHashes(rpc.BlockID{Hash: new(felt.Felt).SetUint64(0xdead)})
		assert.Equal(t, rpc.ErrBlockNotFound, rpcErr)
	})
}

func TestBlockWithTxsAndReceipts(t *testing.T) {
	tc := newTestChain(t)
	handler := tc.handler()

	withTxs, rpcErr := handler.BlockWithTxs(blockNumber(1))
	require.Nil(t, rpcErr)
	require.Len(t, withTxs.Transactions, 2)
	assert.Equal(t, rpc.TxnInvoke, withTxs.Transactions[0].Type)
	assert.Equal(t, tc.transfer.TransactionHash, withTxs.Transactions[0].Hash)
	assert.Equal(t, rpc.TxnDeclare, withTxs.Transactions[1].Type)
	assert.Equal(t, tc.declare.ClassHash, withTxs.Transactions[1].ClassHash)

	withReceipts, rpcErr := handler.BlockWithReceipts(blockNumber(1))
	require.Nil(t, rpcErr)
	require.Len(t, withReceipts.Transactions, 2)
	for i, txn := range withReceipts.Transactions {
		assert.Equal(t, tc.block.Transactions[i].Hash(), txn.Transaction.Hash)
		assert.Equal(t, tc.block.Transactions[i].Hash(), txn.Receipt.Hash)
		assert.Equal(t, rpc.TxnSuccess, txn.Receipt.ExecutionStatus)
		assert.Equal(t, rpc.TxnAcceptedOnL2, txn.Receipt.FinalityStatus)
		assert.Nil(t, txn.Receipt.BlockHash)
		assert.Nil(t, txn.Receipt.BlockNumber)
	}
	assert.NotEmpty(t, withReceipts.Transactions[0].Receipt.Events)

	count, rpcErr := handler.BlockTransactionCount(blockNumber(1))
	require.Nil(t, rpcErr)
	assert.Equal(t, uint64(2), count)

	count, rpcErr = handler.BlockTransactionCount(blockNumber(0))
	require.Nil(t, rpcErr)
	assert.Equal(t, uint64(0), count)
}

func TestPendingBlock(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	t.Cleanup(mockCtrl.Finish)

	tc := newTestChain(t)
	mockProducer := mocks.NewMockProducer(mockCtrl)
	handler := tc.handler().WithProducer(mockProducer)

	pending := &core.Block{
		Header: &core.Header{
			ParentHash: tc.block.Hash,
			Number:     2,
			Timestamp:  2000,
		},
		Transactions: []core.Transaction{tc.transfer},
		Receipts:     tc.block.Receipts[:1],
	}
	mockProducer.EXPECT().PendingBlock().Return(pending).AnyTimes()

	block, rpcErr := handler.BlockWithTxHashes(rpc.BlockID{Pending: true})
	require.Nil(t, rpcErr)
	assert.Equal(t, rpc.BlockPending, block.Status)
	assert.Nil(t, block.Hash)
	assert.Nil(t, block.Number)
	assert.Nil(t, block.NewRoot)
	assert.Equal(t, tc.block.Hash, block.ParentHash)
	assert.Equal(t, []*felt.Felt{tc.transfer.TransactionHash}, block.TxnHashes)

	raw, err := json.Marshal(block)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":"PENDING"`)
	assert.NotContains(t, string(raw), `"block_hash"`)
}

func TestBlockByIDStorageError(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	t.Cleanup(mockCtrl.Finish)

	mockReader := mocks.NewMockReader(mockCtrl)
	handler := rpc.New(mockReader, nil, nil, "", utils.NewNopZapLogger())

	mockReader.EXPECT().BlockByNumber(uint64(3)).Return(nil, db.ErrKeyNotFound)
	_, rpcErr := handler.BlockWithTxs(blockNumber(3))
	assert.Equal(t, rpc.ErrBlockNotFound, rpcErr)

	mockReader.EXPECT().BlockByNumber(uint64(4)).Return(nil, errors.New("disk on fire"))
	_, rpcErr = handler.BlockWithTxs(blockNumber(4))
	require.NotNil(t, rpcErr)
	assert.Equal(t, rpc.ErrInternal.Code, rpcErr.Code)
}
