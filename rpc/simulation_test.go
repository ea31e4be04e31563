package rpc_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/mocks"
	"github.com/NethermindEth/katana/rpc"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestCall(t *testing.T) {
	tc := newTestChain(t)
	handler := tc.handler()
	balanceOf := rpc.FunctionCall{
		ContractAddress:    *tc.spec.FeeTokenAddress,
		EntryPointSelector: *crypto.Selector("balance_of"),
		Calldata:           []felt.Felt{*bob},
	}

	result, rpcErr := handler.Call(balanceOf, rpc.BlockID{Latest: true})
	require.Nil(t, rpcErr)
	assert.Equal(t, []*felt.Felt{new(felt.Felt).SetUint64(5), &felt.Zero}, result)

	result, rpcErr = handler.Call(balanceOf, blockNumber(0))
	require.Nil(t, rpcErr)
	assert.Equal(t, []*felt.Felt{&felt.Zero, &felt.Zero}, result)

	t.Run("undeployed contract", func(t *testing.T) {
		call := balanceOf
		call.ContractAddress = *bob
		_, rpcErr := handler.Call(call, rpc.BlockID{Latest: true})
		assert.Equal(t, rpc.ErrContractNotFound, rpcErr)
	})

	t.Run("missing entry point", func(t *testing.T) {
		call := balanceOf
		call.EntryPointSelector = *crypto.Selector("mint")
		_, rpcErr := handler.Call(call, rpc.BlockID{Latest: true})
		assert.Equal(t, rpc.ErrEntrypointNotFound, rpcErr)
	})
}

func TestCallReverted(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	t.Cleanup(mockCtrl.Finish)

	tc := newTestChain(t)
	mockExecutor := mocks.NewMockExecutor(mockCtrl)
	log := utils.NewNopZapLogger()
	handler := rpc.New(tc.chain, tc.spec, mockExecutor, "", log)

	call := rpc.FunctionCall{
		ContractAddress:    *tc.spec.FeeTokenAddress,
		EntryPointSelector: *crypto.Selector("transfer"),
	}

	mockExecutor.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &vm.RevertError{Reason: "u256_sub Overflow"})
	_, rpcErr := handler.Call(call, rpc.BlockID{Latest: true})
	assert.Equal(t, rpc.ErrContractError.CloneWithData(rpc.ContractErrorData{RevertError: "u256_sub Overflow"}), rpcErr)

	mockExecutor.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("out of steps"))
	_, rpcErr = handler.Call(call, rpc.BlockID{Latest: true})
	assert.Equal(t, rpc.ErrUnexpectedError.CloneWithData("out of steps"), rpcErr)

	t.Run("pending runs in the next block", func(t *testing.T) {
		mockExecutor.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ *vm.CallInfo, _ state.Reader, env *core.BlockEnv) ([]*felt.Felt, error) {
				assert.Equal(t, uint64(2), env.Number)
				return nil, nil
			})
		_, rpcErr := handler.Call(call, rpc.BlockID{Pending: true})
		require.Nil(t, rpcErr)
	})
}

func TestEstimateFee(t *testing.T) {
	tc := newTestChain(t)
	handler := tc.handler()

	account := &tc.accounts[1]
	first := &core.InvokeTransaction{
		SenderAddress: account.Address,
		CallData:      transferCalldata(tc.spec.FeeTokenAddress, bob, 1),
		MaxFee:        maxFee,
		Nonce:         &felt.Zero,
		Version:       new(felt.Felt).SetUint64(1),
	}
	sign(t, account, first)
	second := &core.InvokeTransaction{
		SenderAddress: account.Address,
		CallData:      transferCalldata(tc.spec.FeeTokenAddress, bob, 2),
		MaxFee:        maxFee,
		Nonce:         new(felt.Felt).SetUint64(1),
		Version:       new(felt.Felt).SetUint64(1),
	}
	sign(t, account, second)

	estimates, rpcErr := handler.EstimateFee([]rpc.BroadcastedTransaction{broadcasted(first), broadcasted(second)},
		rpc.BlockID{Latest: true})
	require.Nil(t, rpcErr)
	require.Len(t, estimates, 2)
	for _, estimate := range estimates {
		assert.False(t, estimate.OverallFee.IsZero())
		assert.False(t, estimate.L1GasConsumed.IsZero())
		assert.Equal(t, tc.spec.GasPrices.PriceInWei, estimate.L1GasPrice)
		require.NotNil(t, estimate.Unit)
		assert.Equal(t, rpc.WEI, *estimate.Unit)
	}

	raw, err := json.Marshal(estimates[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"unit":"WEI"`)

	t.Run("failing transaction reports its index", func(t *testing.T) {
		failing := &core.InvokeTransaction{
			SenderAddress: account.Address,
			CallData: []*felt.Felt{
				new(felt.Felt).SetUint64(1), tc.spec.FeeTokenAddress, crypto.Selector("missing"), &felt.Zero,
			},
			MaxFee:  maxFee,
			Nonce:   new(felt.Felt).SetUint64(1),
			Version: new(felt.Felt).SetUint64(1),
		}
		sign(t, account, failing)

		_, rpcErr := handler.EstimateFee([]rpc.BroadcastedTransaction{broadcasted(first), broadcasted(failing)},
			rpc.BlockID{Latest: true})
		require.NotNil(t, rpcErr)
		assert.Equal(t, rpc.ErrTransactionExecutionError.Code, rpcErr.Code)
		data, ok := rpcErr.Data.(rpc.ExecutionErrorData)
		require.True(t, ok)
		assert.Equal(t, uint64(1), data.TransactionIndex)
	})

	t.Run("unknown block", func(t *testing.T) {
		_, rpcErr := handler.EstimateFee([]rpc.BroadcastedTransaction{broadcasted(first)}, blockNumber(8))
		assert.Equal(t, rpc.ErrBlockNotFound, rpcErr)
	})
}
