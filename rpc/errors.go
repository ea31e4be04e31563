package rpc

import (
	"errors"

	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/sequencer"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
)

const throttledExecutorErr = "Executor throughput limit reached"

// Error codes are stable: clients switch on them.
var (
	ErrContractNotFound          = &jsonrpc.Error{Code: 20, Message: "Contract not found"}
	ErrEntrypointNotFound        = &jsonrpc.Error{Code: 21, Message: "Requested entrypoint does not exist in the contract"}
	ErrBlockNotFound             = &jsonrpc.Error{Code: 24, Message: "Block not found"}
	ErrInvalidTxIndex            = &jsonrpc.Error{Code: 27, Message: "Invalid transaction index in a block"}
	ErrClassHashNotFound         = &jsonrpc.Error{Code: 28, Message: "Class hash not found"}
	ErrTxnHashNotFound           = &jsonrpc.Error{Code: 29, Message: "Transaction hash not found"}
	ErrPageSizeTooBig            = &jsonrpc.Error{Code: 31, Message: "Requested page size is too big"}
	ErrNoBlock                   = &jsonrpc.Error{Code: 32, Message: "There are no blocks"}
	ErrInvalidContinuationToken  = &jsonrpc.Error{Code: 33, Message: "The supplied continuation token is invalid or unknown"}
	ErrTooManyKeysInFilter       = &jsonrpc.Error{Code: 34, Message: "Too many keys provided in a filter"}
	ErrContractError             = &jsonrpc.Error{Code: 40, Message: "Contract error"}
	ErrTransactionExecutionError = &jsonrpc.Error{Code: 41, Message: "Transaction execution error"}
	ErrProofLimitExceeded        = &jsonrpc.Error{Code: 42, Message: "Too many keys requested in a storage proof"}
	ErrClassAlreadyDeclared      = &jsonrpc.Error{Code: 51, Message: "Class already declared"}
	ErrInvalidTransactionNonce   = &jsonrpc.Error{Code: 52, Message: "Invalid transaction nonce"}
	ErrNonceTooFarInFuture       = &jsonrpc.Error{Code: 53, Message: "Transaction nonce is too far ahead of the account nonce"}
	ErrInsufficientBalance       = &jsonrpc.Error{Code: 54, Message: "Account balance is smaller than the transaction's max_fee"}
	ErrValidationFailure         = &jsonrpc.Error{Code: 55, Message: "Account validation failed"}
	ErrInvalidSignature          = &jsonrpc.Error{Code: 56, Message: "Invalid transaction signature"}
	ErrNonAccount                = &jsonrpc.Error{Code: 58, Message: "Sender address is not an account contract"}
	ErrDuplicateTx               = &jsonrpc.Error{Code: 59, Message: "A transaction with the same hash already exists in the mempool"}
	ErrCompiledClassHashMismatch = &jsonrpc.Error{Code: 60, Message: "The compiled class hash did not match the one supplied in the transaction"}
	ErrUnsupportedTxVersion      = &jsonrpc.Error{Code: 61, Message: "The transaction version is not supported"}
	ErrUnexpectedError           = &jsonrpc.Error{Code: 63, Message: "An unexpected error occurred"}
	ErrPoolFull                  = &jsonrpc.Error{Code: 64, Message: "Transaction pool is full"}
	ErrMalformedTransaction      = &jsonrpc.Error{Code: 65, Message: "Malformed transaction"}
	ErrInvalidSubscriptionID     = &jsonrpc.Error{Code: 66, Message: "Invalid subscription id"}
	ErrTooManyBlocksBack         = &jsonrpc.Error{Code: 68, Message: "Cannot go back more than 1024 blocks"}
	ErrInternal                  = &jsonrpc.Error{Code: jsonrpc.InternalError, Message: "Internal error"}

	// Errors of the dev namespace and of Katana specific methods.
	ErrNotProducing      = &jsonrpc.Error{Code: 100, Message: "The node does not produce blocks"}
	ErrTimestampTooEarly = &jsonrpc.Error{Code: 101, Message: "Timestamp is before the latest block's"}
	ErrCallOnPending     = &jsonrpc.Error{Code: 102, Message: "This method does not support being called on the pending block"}
)

// addErrorCodes maps every admission failure kind to the code reported for it.
var addErrorCodes = map[mempool.ErrorKind]*jsonrpc.Error{
	mempool.MalformedEncoding:   ErrMalformedTransaction,
	mempool.SignatureInvalid:    ErrInvalidSignature,
	mempool.NonceAlreadyUsed:    ErrInvalidTransactionNonce,
	mempool.NonceTooFarInFuture: ErrNonceTooFarInFuture,
	mempool.InsufficientBalance: ErrInsufficientBalance,
	mempool.ClassUnavailable:    ErrClassHashNotFound,
	mempool.ValidationReverted:  ErrValidationFailure,
	mempool.PoolFull:            ErrPoolFull,
}

// adaptAddError turns a pool admission failure into its read API error. A few causes
// have a more precise code than their kind.
func adaptAddError(err error) *jsonrpc.Error {
	var addErr *mempool.AddError
	if !errors.As(err, &addErr) {
		return ErrInternal.CloneWithData(err)
	}

	switch {
	case errors.Is(err, state.ErrClassAlreadyDeclared):
		return ErrClassAlreadyDeclared.CloneWithData(addErr.Reason)
	case errors.Is(err, vm.ErrClassHashMismatch):
		return ErrCompiledClassHashMismatch.CloneWithData(addErr.Reason)
	case errors.Is(err, vm.ErrNotAnAccount):
		return ErrNonAccount.CloneWithData(addErr.Reason)
	}

	rpcErr, ok := addErrorCodes[addErr.Kind]
	if !ok {
		return ErrUnexpectedError.CloneWithData(addErr.Error())
	}
	if addErr.Reason == "" {
		return rpcErr
	}
	return rpcErr.CloneWithData(addErr.Reason)
}

// ExecutionErrorData is attached to errors of transactions that failed to execute.
type ExecutionErrorData struct {
	TransactionIndex uint64 `json:"transaction_index"`
	ExecutionError   string `json:"execution_error"`
}

func adaptExecutionError(err error) *jsonrpc.Error {
	if errors.Is(err, utils.ErrResourceBusy) {
		return ErrInternal.CloneWithData(throttledExecutorErr)
	}
	var txErr *vm.TransactionExecutionError
	if errors.As(err, &txErr) {
		return ErrTransactionExecutionError.CloneWithData(ExecutionErrorData{
			TransactionIndex: txErr.Index,
			ExecutionError:   txErr.Cause.Error(),
		})
	}
	return ErrUnexpectedError.CloneWithData(err)
}

func adaptSequencerError(err error) *jsonrpc.Error {
	switch {
	case errors.Is(err, sequencer.ErrTimestampTooEarly):
		return ErrTimestampTooEarly.CloneWithData(err)
	case errors.Is(err, sequencer.ErrNotRunning):
		return ErrNotProducing
	}
	return ErrInternal.CloneWithData(err)
}
