package rpc

import (
	"errors"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/jinzhu/copier"
)

type FunctionCall struct {
	ContractAddress    felt.Felt   `json:"contract_address"`
	EntryPointSelector felt.Felt   `json:"entry_point_selector"`
	Calldata           []felt.Felt `json:"calldata"`
}

type ContractErrorData struct {
	RevertError string `json:"revert_error"`
}

type FeeEstimate struct {
	L1GasConsumed     *felt.Felt `json:"gas_consumed"`
	L1GasPrice        *felt.Felt `json:"gas_price"`
	L1DataGasConsumed *felt.Felt `json:"data_gas_consumed"`
	L1DataGasPrice    *felt.Felt `json:"data_gas_price"`
	OverallFee        *felt.Felt `json:"overall_fee"`
	Unit              *FeeUnit   `json:"unit,omitempty"`
}

// feeEstimateCopyOption widens the consumed gas amounts into felts.
var feeEstimateCopyOption = copier.Option{
	Converters: []copier.TypeConverter{
		{
			SrcType: uint64(0),
			DstType: &felt.Felt{},
			Fn: func(src any) (any, error) {
				return new(felt.Felt).SetUint64(src.(uint64)), nil
			},
		},
		{
			SrcType: core.FeeUnit(0),
			DstType: new(FeeUnit),
			Fn: func(src any) (any, error) {
				unit := WEI
				if src.(core.FeeUnit) == core.STRK {
					unit = FRI
				}
				return &unit, nil
			},
		},
	},
}

func adaptFeeEstimates(estimates []vm.FeeEstimate) ([]FeeEstimate, error) {
	adapted := make([]FeeEstimate, len(estimates))
	for i := range estimates {
		if err := copier.CopyWithOption(&adapted[i], &estimates[i], feeEstimateCopyOption); err != nil {
			return nil, err
		}
	}
	return adapted, nil
}

// Call runs a read-only invocation against the state at the block.
func (h *Handler) Call(funcCall FunctionCall, id BlockID) ([]*felt.Felt, *jsonrpc.Error) {
	stateReader, closer, rpcErr := h.stateByBlockID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.callAndLogErr(closer, "Error closing state reader in call")

	classHash, err := stateReader.ContractClassHash(&funcCall.ContractAddress)
	if err != nil {
		if errors.Is(err, state.ErrContractNotDeployed) {
			return nil, ErrContractNotFound
		}
		return nil, ErrInternal.CloneWithData(err)
	}
	declared, err := stateReader.Class(&classHash)
	if err != nil {
		return nil, ErrInternal.CloneWithData(err)
	}
	if _, ok := declared.Class.EntryPoint(&funcCall.EntryPointSelector); !ok {
		return nil, ErrEntrypointNotFound
	}

	env, rpcErr := h.blockEnv(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	calldata := make([]*felt.Felt, len(funcCall.Calldata))
	for i := range funcCall.Calldata {
		calldata[i] = &funcCall.Calldata[i]
	}
	res, err := h.executor.Call(&vm.CallInfo{
		ContractAddress: &funcCall.ContractAddress,
		Selector:        &funcCall.EntryPointSelector,
		Calldata:        calldata,
	}, stateReader, env)
	if err != nil {
		var revertErr *vm.RevertError
		if errors.As(err, &revertErr) {
			return nil, ErrContractError.CloneWithData(ContractErrorData{RevertError: revertErr.Reason})
		}
		if errors.Is(err, utils.ErrResourceBusy) {
			return nil, ErrInternal.CloneWithData(throttledExecutorErr)
		}
		return nil, ErrUnexpectedError.CloneWithData(err)
	}
	return res, nil
}

// EstimateFee executes the transactions one after another on the state at the block
// without checking balances.
func (h *Handler) EstimateFee(broadcastedTxns []BroadcastedTransaction, id BlockID) ([]FeeEstimate, *jsonrpc.Error) {
	txns := make([]core.Transaction, len(broadcastedTxns))
	for i := range broadcastedTxns {
		txn, err := adaptBroadcastedTransaction(&broadcastedTxns[i], h.bcReader.ChainID())
		if err != nil {
			return nil, ErrMalformedTransaction.CloneWithData(err)
		}
		txns[i] = txn
	}

	stateReader, closer, rpcErr := h.stateByBlockID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.callAndLogErr(closer, "Error closing state reader in estimateFee")

	env, rpcErr := h.blockEnv(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	estimates, err := h.executor.EstimateFee(txns, stateReader, env)
	if err != nil {
		return nil, adaptExecutionError(err)
	}
	adapted, err := adaptFeeEstimates(estimates)
	if err != nil {
		return nil, ErrInternal.CloneWithData(err)
	}
	return adapted, nil
}
