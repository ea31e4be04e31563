package rpc_test

import (
	"encoding/json"
	"testing"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/mocks"
	"github.com/NethermindEth/katana/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestTraceTransaction(t *testing.T) {
	tc := newTestChain(t)
	handler := tc.handler()

	trace, rpcErr := handler.TraceTransaction(*tc.transfer.TransactionHash)
	require.Nil(t, rpcErr)
	assert.Equal(t, rpc.TxnInvoke, trace.Type)
	require.NotNil(t, trace.ValidateInvocation)
	require.NotNil(t, trace.ExecuteInvocation)
	require.NotNil(t, trace.ExecuteInvocation.FunctionInvocation)
	assert.Empty(t, trace.ExecuteInvocation.RevertReason)
	assert.Equal(t, tc.accounts[0].Address, trace.ExecuteInvocation.ContractAddress)
	require.NotEmpty(t, trace.ExecuteInvocation.Calls)
	assert.Equal(t, tc.spec.FeeTokenAddress, trace.ExecuteInvocation.Calls[0].ContractAddress)

	for i, event := range trace.ExecuteInvocation.Calls[0].Events {
		assert.Equal(t, uint64(i), event.Order)
	}

	raw, err := json.Marshal(trace)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"call_type":"CALL"`)
	assert.Contains(t, string(raw), `"entry_point_type":"EXTERNAL"`)

	declareTrace, rpcErr := handler.TraceTransaction(*tc.declare.TransactionHash)
	require.Nil(t, rpcErr)
	assert.Equal(t, rpc.TxnDeclare, declareTrace.Type)
	assert.Nil(t, declareTrace.ExecuteInvocation)

	_, rpcErr = handler.TraceTransaction(*new(felt.Felt).SetUint64(0xdead))
	assert.Equal(t, rpc.ErrTxnHashNotFound, rpcErr)
}

func TestTraceTransactionOnPending(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	t.Cleanup(mockCtrl.Finish)

	tc := newTestChain(t)
	mockProducer := mocks.NewMockProducer(mockCtrl)
	handler := tc.handler().WithProducer(mockProducer)

	invoke := *tc.transfer
	invoke.TransactionHash = new(felt.Felt).SetUint64(0x77)
	mockProducer.EXPECT().PendingBlock().Return(&core.Block{
		Header:       &core.Header{Number: 2},
		Transactions: []core.Transaction{&invoke},
		Receipts:     tc.block.Receipts[:1],
	})

	_, rpcErr := handler.TraceTransaction(*invoke.TransactionHash)
	assert.Equal(t, rpc.ErrCallOnPending, rpcErr)
}

func TestAdaptRevertedTrace(t *testing.T) {
	trace := rpc.AdaptTransactionTrace(&core.TransactionTrace{
		Type:         core.TxInvoke,
		RevertReason: "assertion failed",
	})
	require.NotNil(t, trace.ExecuteInvocation)
	assert.Equal(t, "assertion failed", trace.ExecuteInvocation.RevertReason)
	assert.Nil(t, trace.ExecuteInvocation.FunctionInvocation)
}
