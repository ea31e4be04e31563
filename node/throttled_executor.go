package node

import (
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
)

var _ vm.Executor = (*ThrottledExecutor)(nil)

// ThrottledExecutor bounds how many RPC calls run the executor at once. Block
// production and the pool use the executor directly.
type ThrottledExecutor struct {
	*utils.Throttler[vm.Executor]
}

func NewThrottledExecutor(res vm.Executor, concurrencyBudget uint, maxQueueLen int32) *ThrottledExecutor {
	return &ThrottledExecutor{
		Throttler: utils.NewThrottler(concurrencyBudget, &res).WithMaxQueueLen(maxQueueLen),
	}
}

func (te *ThrottledExecutor) Execute(txn core.Transaction, st *state.Pending, env *core.BlockEnv) (*vm.Result, error) {
	var ret *vm.Result
	err := te.Do(func(executor *vm.Executor) error {
		var err error
		ret, err = (*executor).Execute(txn, st, env)
		return err
	})
	return ret, err
}

func (te *ThrottledExecutor) Validate(txn core.Transaction, st state.Reader, env *core.BlockEnv) error {
	return te.Do(func(executor *vm.Executor) error {
		return (*executor).Validate(txn, st, env)
	})
}

func (te *ThrottledExecutor) Call(call *vm.CallInfo, st state.Reader, env *core.BlockEnv) ([]*felt.Felt, error) {
	var ret []*felt.Felt
	err := te.Do(func(executor *vm.Executor) error {
		var err error
		ret, err = (*executor).Call(call, st, env)
		return err
	})
	return ret, err
}

func (te *ThrottledExecutor) EstimateFee(txns []core.Transaction, st state.Reader, env *core.BlockEnv) ([]vm.FeeEstimate, error) {
	var ret []vm.FeeEstimate
	err := te.Do(func(executor *vm.Executor) error {
		var err error
		ret, err = (*executor).EstimateFee(txns, st, env)
		return err
	})
	return ret, err
}
