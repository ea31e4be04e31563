package mempool

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/vm"
)

// ErrorKind classifies why a transaction was not admitted. The numeric values are part of
// the read API and must not be reordered.
type ErrorKind uint8

const (
	MalformedEncoding ErrorKind = iota + 1
	SignatureInvalid
	NonceAlreadyUsed
	NonceTooFarInFuture
	InsufficientBalance
	ClassUnavailable
	ValidationReverted
	PoolFull
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedEncoding:
		return "malformed encoding"
	case SignatureInvalid:
		return "invalid signature"
	case NonceAlreadyUsed:
		return "nonce already used"
	case NonceTooFarInFuture:
		return "nonce too far in the future"
	case InsufficientBalance:
		return "insufficient balance"
	case ClassUnavailable:
		return "class unavailable"
	case ValidationReverted:
		return "validation reverted"
	case PoolFull:
		return "transaction pool is full"
	default:
		return fmt.Sprintf("unknown error kind %d", uint8(k))
	}
}

// AddError is returned by Add when a transaction is rejected.
type AddError struct {
	Kind   ErrorKind
	Reason string
	Cause  error
}

var (
	ErrMalformed           = &AddError{Kind: MalformedEncoding}
	ErrInvalidSignature    = &AddError{Kind: SignatureInvalid}
	ErrNonceAlreadyUsed    = &AddError{Kind: NonceAlreadyUsed}
	ErrNonceTooFar         = &AddError{Kind: NonceTooFarInFuture}
	ErrInsufficientBalance = &AddError{Kind: InsufficientBalance}
	ErrClassUnavailable    = &AddError{Kind: ClassUnavailable}
	ErrValidationReverted  = &AddError{Kind: ValidationReverted}
	ErrPoolFull            = &AddError{Kind: PoolFull}
)

func (e *AddError) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Reason
}

func (e *AddError) Unwrap() error {
	return e.Cause
}

// Is matches any AddError of the same kind against the bare sentinels above.
func (e *AddError) Is(target error) bool {
	t, ok := target.(*AddError)
	return ok && t.Kind == e.Kind && t.Reason == "" && t.Cause == nil
}

func addErrorf(kind ErrorKind, cause error, format string, args ...any) *AddError {
	return &AddError{Kind: kind, Reason: fmt.Sprintf(format, args...), Cause: cause}
}

// classify turns an executor validation failure into an AddError. Errors that say nothing
// about the transaction itself, such as storage failures, are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var addErr *AddError
	if errors.As(err, &addErr) {
		return addErr
	}

	var (
		validationErr *vm.ValidationError
		nonceErr      *vm.NonceError
	)
	switch {
	case errors.Is(err, vm.ErrInvalidSignature):
		return &AddError{Kind: SignatureInvalid, Reason: err.Error(), Cause: err}
	case errors.Is(err, vm.ErrInsufficientBalance):
		return &AddError{Kind: InsufficientBalance, Reason: err.Error(), Cause: err}
	case errors.Is(err, vm.ErrClassNotDeclared),
		errors.Is(err, vm.ErrMissingClassDefinition),
		errors.Is(err, vm.ErrClassHashMismatch),
		errors.Is(err, state.ErrClassAlreadyDeclared):
		return &AddError{Kind: ClassUnavailable, Reason: err.Error(), Cause: err}
	case errors.Is(err, core.ErrTransactionHash),
		errors.Is(err, core.ErrUnknownTransaction),
		errors.Is(err, core.ErrInvalidTxVersion),
		errors.Is(err, core.ErrContractAddressDiffer):
		return &AddError{Kind: MalformedEncoding, Reason: err.Error(), Cause: err}
	case errors.As(err, &nonceErr):
		return &AddError{Kind: NonceAlreadyUsed, Reason: err.Error(), Cause: err}
	case errors.As(err, &validationErr), errors.Is(err, vm.ErrNotAnAccount):
		return &AddError{Kind: ValidationReverted, Reason: err.Error(), Cause: err}
	}
	return err
}
