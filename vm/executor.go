package vm

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/utils"
	"github.com/holiman/uint256"
)

const (
	// stepsPerL1Gas converts execution steps into L1 gas.
	stepsPerL1Gas = 40
	// dataGasPerDiffEntry is the L1 data gas one state diff entry costs to publish.
	dataGasPerDiffEntry = 32
	declareSteps        = 200
)

var _ Executor = (*devExecutor)(nil)

// devExecutor runs the built-in account, erc20 and generic programs. It keeps no state
// between calls and is safe for concurrent use.
type devExecutor struct {
	log utils.SimpleLogger
}

func New(log utils.SimpleLogger) Executor {
	return &devExecutor{log: log}
}

func (v *devExecutor) Execute(txn core.Transaction, st *state.Pending, env *core.BlockEnv) (*Result, error) {
	return v.execute(txn, st, env, false)
}

func (v *devExecutor) execute(txn core.Transaction, st *state.Pending, env *core.BlockEnv, estimate bool) (*Result, error) {
	sender := txn.Sender()
	e := &execution{env: env, txHash: txn.Hash(), signature: txn.Signature()}
	trace := &core.TransactionTrace{Type: txn.Type()}
	chargeFee := !env.FeeDisabled && !estimate

	if err := checkNonce(st, txn); err != nil {
		return nil, err
	}
	if chargeFee {
		if err := checkFeeFunds(st, env, txn); err != nil {
			return nil, err
		}
	}
	if err := validatePhase(e, txn, st, trace); err != nil {
		return nil, err
	}
	if err := st.IncrementNonce(sender); err != nil {
		return nil, err
	}

	execState := st.Fork()
	e.maxSteps = 0
	if env.InvokeMaxSteps > 0 {
		e.maxSteps = e.resources.Steps + env.InvokeMaxSteps
	}
	var revert *RevertError
	if err := executePhase(e, txn, execState, trace); err != nil && !errors.As(err, &revert) {
		return nil, err
	}

	gas := gasConsumed(&e.resources, st.StateDiff().Length()+execState.StateDiff().Length())
	fee := feeFor(gas, env)
	maxFee := u256FromFelt(orZero(txn.FeeLimit()))
	if revert == nil && chargeFee && fee.Gt(maxFee) {
		revert = revertf("insufficient max fee: actual fee %s exceeds max fee %s", fee.Dec(), maxFee.Dec())
	}
	if revert != nil {
		trace.ExecuteInvocation = nil
		trace.RevertReason = revert.Reason
		if chargeFee && fee.Gt(maxFee) {
			fee = maxFee
		}
		v.log.Debugw("Transaction reverted", "hash", txn.Hash(), "reason", revert.Reason)
	} else if err := st.Commit(execState); err != nil {
		return nil, err
	}

	actualFee := fee
	if !chargeFee {
		actualFee = new(uint256.Int)
		if estimate {
			actualFee = fee
		}
	}
	if chargeFee && !actualFee.IsZero() {
		inv, err := transferFee(e, st, sender, actualFee)
		if err != nil {
			return nil, err
		}
		trace.FeeTransferInvocation = inv
	}
	trace.StateDiff = st.StateDiff().Copy()

	resources := e.resources
	resources.TotalGasConsumed = gas
	receipt := &core.TransactionReceipt{
		TransactionHash:    txn.Hash(),
		Type:               txn.Type(),
		Fee:                feltFromU256(actualFee),
		FeeUnit:            core.WEI,
		Events:             trace.AllEvents(),
		L2ToL1Message:      allMessages(trace),
		ExecutionResources: &resources,
		Reverted:           revert != nil,
		RevertReason:       trace.RevertReason,
	}
	if deploy, ok := txn.(*core.DeployAccountTransaction); ok {
		receipt.ContractAddress = deploy.ContractAddress
	}
	return &Result{Receipt: receipt, Trace: trace}, nil
}

func (v *devExecutor) Validate(txn core.Transaction, st state.Reader, env *core.BlockEnv) error {
	pending := state.NewPending(st)
	if !env.FeeDisabled {
		if err := checkFeeFunds(pending, env, txn); err != nil {
			return err
		}
	}
	e := &execution{env: env, txHash: txn.Hash(), signature: txn.Signature()}
	return validatePhase(e, txn, pending, &core.TransactionTrace{Type: txn.Type()})
}

func (v *devExecutor) Call(call *CallInfo, st state.Reader, env *core.BlockEnv) ([]*felt.Felt, error) {
	e := &execution{env: env, maxSteps: env.InvokeMaxSteps}
	inv, err := e.invoke(state.NewPending(st), &felt.Zero, call.ContractAddress, call.Selector, call.Calldata, 0)
	if err != nil {
		return nil, err
	}
	return inv.Result, nil
}

func (v *devExecutor) EstimateFee(txns []core.Transaction, st state.Reader, env *core.BlockEnv) ([]FeeEstimate, error) {
	pending := state.NewPending(st)
	estimates := make([]FeeEstimate, 0, len(txns))
	for i, txn := range txns {
		txState := pending.Fork()
		res, err := v.execute(txn, txState, env, true)
		if err != nil {
			return nil, &TransactionExecutionError{Index: uint64(i), Cause: err}
		}
		if res.Receipt.Reverted {
			return nil, &TransactionExecutionError{Index: uint64(i), Cause: &RevertError{Reason: res.Receipt.RevertReason}}
		}
		if err = pending.Commit(txState); err != nil {
			return nil, err
		}

		gas := res.Receipt.ExecutionResources.TotalGasConsumed
		estimates = append(estimates, FeeEstimate{
			L1GasConsumed:     gas.L1Gas,
			L1GasPrice:        env.GasPriceFor(core.WEI),
			L1DataGasConsumed: gas.L1DataGas,
			L1DataGasPrice:    orZero(env.L1DataGasPrice.PriceInWei),
			OverallFee:        res.Receipt.Fee,
			Unit:              core.WEI,
		})
	}
	return estimates, nil
}

func checkNonce(st state.Reader, txn core.Transaction) error {
	nonce, err := st.ContractNonce(txn.Sender())
	if errors.Is(err, state.ErrContractNotDeployed) {
		if txn.Type() != core.TxDeployAccount {
			return fmt.Errorf("%w: %s is not deployed", ErrNotAnAccount, txn.Sender())
		}
		err = nil
	}
	if err != nil {
		return err
	}
	if got := orZero(txn.TxNonce()); !got.Equal(&nonce) {
		return &NonceError{Account: *txn.Sender(), Expected: nonce, Got: *got}
	}
	return nil
}

func checkFeeFunds(st state.Reader, env *core.BlockEnv, txn core.Transaction) error {
	balance, err := Balance(st, env.FeeTokenAddress, txn.Sender())
	if err != nil {
		return err
	}
	maxFee := u256FromFelt(orZero(txn.FeeLimit()))
	if balance.Lt(maxFee) {
		return fmt.Errorf("%w: balance %s, max fee %s", ErrInsufficientBalance, balance.Dec(), maxFee.Dec())
	}
	return nil
}

// validatePhase runs the validate entry point of the sender, deploying the account first
// when txn deploys one.
func validatePhase(e *execution, txn core.Transaction, st *state.Pending, trace *core.TransactionTrace) error {
	e.maxSteps = e.env.ValidateMaxSteps

	var (
		selector *felt.Felt
		calldata []*felt.Felt
	)
	switch t := txn.(type) {
	case *core.InvokeTransaction:
		if err := checkAccount(st, t.SenderAddress); err != nil {
			return err
		}
		selector, calldata = validateSelector, t.CallData
	case *core.DeclareTransaction:
		if err := checkAccount(st, t.SenderAddress); err != nil {
			return err
		}
		if err := checkDeclare(st, t); err != nil {
			return err
		}
		selector, calldata = validateDeclareSelector, []*felt.Felt{t.ClassHash}
	case *core.DeployAccountTransaction:
		if err := deployAccount(e, st, t, trace); err != nil {
			return err
		}
		selector = validateDeploySelector
		calldata = append([]*felt.Felt{t.ClassHash, t.ContractAddressSalt}, t.ConstructorCallData...)
	default:
		return core.ErrUnknownTransaction
	}

	if e.env.SkipValidate {
		return nil
	}
	inv, err := e.invoke(st, &felt.Zero, txn.Sender(), selector, calldata, 0)
	trace.ValidateInvocation = inv
	return asValidationError(err)
}

func deployAccount(e *execution, st *state.Pending, t *core.DeployAccountTransaction, trace *core.TransactionTrace) error {
	declared, err := st.Class(t.ClassHash)
	if errors.Is(err, core.ErrClassNotFound) {
		return fmt.Errorf("%w: %s", ErrClassNotDeclared, t.ClassHash)
	} else if err != nil {
		return err
	}
	if declared.Class.Kind != core.AccountClass {
		return fmt.Errorf("%w: class %s is a %s class", ErrNotAnAccount, t.ClassHash, declared.Class.Kind)
	}
	if err = st.Deploy(t.ContractAddress, t.ClassHash); err != nil {
		return err
	}
	inv, err := e.invoke(st, &felt.Zero, t.ContractAddress, constructorSelector, t.ConstructorCallData, 0)
	trace.ConstructorInvocation = inv
	return asValidationError(err)
}

func checkAccount(st state.Reader, addr *felt.Felt) error {
	classHash, err := st.ContractClassHash(addr)
	if errors.Is(err, state.ErrContractNotDeployed) {
		return fmt.Errorf("%w: %s is not deployed", ErrNotAnAccount, addr)
	} else if err != nil {
		return err
	}
	declared, err := st.Class(&classHash)
	if err != nil {
		return err
	}
	if declared.Class.Kind != core.AccountClass {
		return fmt.Errorf("%w: %s runs a %s class", ErrNotAnAccount, addr, declared.Class.Kind)
	}
	return nil
}

func checkDeclare(st state.Reader, t *core.DeclareTransaction) error {
	if t.Class == nil {
		return ErrMissingClassDefinition
	}
	classHash, err := t.Class.Hash()
	if err != nil {
		return err
	}
	if !classHash.Equal(t.ClassHash) {
		return fmt.Errorf("%w: definition hashes to %s, transaction declares %s", ErrClassHashMismatch, classHash, t.ClassHash)
	}
	compiled, err := t.Class.CompiledClassHash()
	if err != nil {
		return err
	}
	if t.CompiledClassHash != nil && !compiled.Equal(t.CompiledClassHash) {
		return fmt.Errorf("%w: compiled class hash is %s, transaction declares %s",
			ErrClassHashMismatch, compiled, t.CompiledClassHash)
	}
	if _, err = st.Class(t.ClassHash); err == nil {
		return fmt.Errorf("%w: %s", state.ErrClassAlreadyDeclared, t.ClassHash)
	} else if !errors.Is(err, core.ErrClassNotFound) {
		return err
	}
	return nil
}

func executePhase(e *execution, txn core.Transaction, st *state.Pending, trace *core.TransactionTrace) error {
	switch t := txn.(type) {
	case *core.InvokeTransaction:
		inv, err := e.invoke(st, &felt.Zero, t.SenderAddress, executeSelector, t.CallData, 0)
		trace.ExecuteInvocation = inv
		return err
	case *core.DeclareTransaction:
		if err := e.charge(declareSteps); err != nil {
			return err
		}
		compiled, err := t.Class.CompiledClassHash()
		if err != nil {
			return err
		}
		return st.Declare(t.ClassHash, compiled, t.Class)
	default:
		return nil
	}
}

// transferFee moves fee from sender to the sequencer. A failing transfer means the
// transaction can not pay for itself and is dropped.
func transferFee(e *execution, st *state.Pending, sender *felt.Felt, fee *uint256.Int) (*core.FunctionInvocation, error) {
	e.maxSteps = 0
	low, high := SplitU256(fee)
	ftState := st.Fork()
	inv, err := e.invoke(ftState, sender, e.env.FeeTokenAddress, transferSelector,
		[]*felt.Felt{orZero(e.env.SequencerAddress), low, high}, 0)
	if err != nil {
		var revert *RevertError
		if errors.As(err, &revert) {
			return nil, fmt.Errorf("%w: %s", ErrFeeTransfer, revert.Reason)
		}
		return nil, err
	}
	if err = st.Commit(ftState); err != nil {
		return nil, err
	}
	return inv, nil
}

func gasConsumed(resources *core.ExecutionResources, diffLength uint64) core.GasConsumed {
	return core.GasConsumed{
		L1Gas:     (resources.Steps + stepsPerL1Gas - 1) / stepsPerL1Gas,
		L1DataGas: diffLength * dataGasPerDiffEntry,
	}
}

func feeFor(gas core.GasConsumed, env *core.BlockEnv) *uint256.Int {
	fee := new(uint256.Int).Mul(uint256.NewInt(gas.L1Gas), u256FromFelt(env.GasPriceFor(core.WEI)))
	dataFee := new(uint256.Int).Mul(uint256.NewInt(gas.L1DataGas), u256FromFelt(orZero(env.L1DataGasPrice.PriceInWei)))
	return fee.Add(fee, dataFee)
}

func asValidationError(err error) error {
	var revert *RevertError
	if errors.As(err, &revert) {
		return &ValidationError{Reason: revert.Reason, Cause: revert}
	}
	return err
}

func allMessages(trace *core.TransactionTrace) []*core.L2ToL1Message {
	var messages []*core.L2ToL1Message
	var walk func(inv *core.FunctionInvocation)
	walk = func(inv *core.FunctionInvocation) {
		if inv == nil {
			return
		}
		messages = append(messages, inv.Messages...)
		for _, call := range inv.Calls {
			walk(call)
		}
	}
	for _, inv := range []*core.FunctionInvocation{
		trace.ValidateInvocation, trace.ConstructorInvocation, trace.ExecuteInvocation, trace.FeeTransferInvocation,
	} {
		walk(inv)
	}
	return messages
}

func orZero(f *felt.Felt) *felt.Felt {
	if f == nil {
		return &felt.Zero
	}
	return f
}
