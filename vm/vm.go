package vm

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
)

//go:generate mockgen -destination=../mocks/mock_vm.go -package=mocks github.com/NethermindEth/katana/vm Executor
type Executor interface {
	// Execute applies txn on top of st and leaves its effects in st. Callers pass a layer
	// forked for this transaction and drop it when Execute fails. A reverted execution is
	// not an error: it is reported through the receipt and its fee is still charged.
	Execute(txn core.Transaction, st *state.Pending, env *core.BlockEnv) (*Result, error)
	// Validate runs the checks a transaction has to pass before it can be executed:
	// signature, fee funds and class availability. It does not look at the nonce.
	Validate(txn core.Transaction, st state.Reader, env *core.BlockEnv) error
	// Call runs a read-only entry point invocation. Writes made by the call are dropped.
	Call(call *CallInfo, st state.Reader, env *core.BlockEnv) ([]*felt.Felt, error)
	// EstimateFee executes txns one after another on top of st and reports what each one
	// would be charged. Balances are not checked and no fee is transferred.
	EstimateFee(txns []core.Transaction, st state.Reader, env *core.BlockEnv) ([]FeeEstimate, error)
}

type Result struct {
	Receipt *core.TransactionReceipt
	Trace   *core.TransactionTrace
}

type CallInfo struct {
	ContractAddress *felt.Felt
	Selector        *felt.Felt
	Calldata        []*felt.Felt
}

type FeeEstimate struct {
	L1GasConsumed     uint64
	L1GasPrice        *felt.Felt
	L1DataGasConsumed uint64
	L1DataGasPrice    *felt.Felt
	OverallFee        *felt.Felt
	Unit              core.FeeUnit
}

var (
	ErrInvalidSignature       = errors.New("invalid transaction signature")
	ErrInsufficientBalance    = errors.New("account balance is smaller than the transaction's max fee")
	ErrClassNotDeclared       = errors.New("class is not declared")
	ErrMissingClassDefinition = errors.New("declare transaction carries no class definition")
	ErrClassHashMismatch      = errors.New("class hash does not match the class definition")
	ErrNotAnAccount           = errors.New("sender is not an account contract")
	ErrFeeTransfer            = errors.New("fee transfer failed")
)

// NonceError reports a transaction whose nonce is not the next nonce of its sender.
type NonceError struct {
	Account  felt.Felt
	Expected felt.Felt
	Got      felt.Felt
}

func (e *NonceError) Error() string {
	return fmt.Sprintf("invalid nonce for account %s: expected %s, got %s",
		e.Account.String(), e.Expected.String(), e.Got.String())
}

// RevertError is the reason an invocation reverted.
type RevertError struct {
	Reason string
	err    error
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error {
	return e.err
}

func revertf(format string, args ...any) *RevertError {
	return &RevertError{Reason: fmt.Sprintf(format, args...)}
}

// ValidationError is returned when the validation phase of a transaction reverts. Such a
// transaction can not be included in a block.
type ValidationError struct {
	Reason string
	Cause  error
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// TransactionExecutionError points at the transaction of a batch that failed.
type TransactionExecutionError struct {
	Index uint64
	Cause error
}

func (e *TransactionExecutionError) Error() string {
	return fmt.Sprintf("execute transaction #%d: %s", e.Index, e.Cause)
}

func (e *TransactionExecutionError) Unwrap() error {
	return e.Cause
}
