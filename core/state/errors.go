package state

import (
	"errors"
)

var (
	ErrContractNotDeployed     = errors.New("contract not deployed")
	ErrContractAlreadyDeployed = errors.New("contract already deployed")
	ErrClassAlreadyDeclared    = errors.New("class already declared")
	ErrFutureBlock             = errors.New("block is ahead of the latest state")
)
