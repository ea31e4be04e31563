package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/node"
	_ "go.uber.org/automaxprocs"
)

const (
	exitRuntime    = 1
	exitValidation = 2
	exitCorruption = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewCmd(newNode).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err.Error())
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error that ended the process to its exit status. A database that
// is corrupt or belongs to another chain needs an operator, so it gets its own code.
func exitCode(err error) int {
	switch {
	case db.IsCorruption(err),
		errors.Is(err, blockchain.ErrSchemaMismatch),
		errors.Is(err, blockchain.ErrChainIDMismatch):
		return exitCorruption
	case errors.Is(err, node.ErrInvalidConfig), errors.Is(err, errInvalidFlags):
		return exitValidation
	default:
		return exitRuntime
	}
}
