package sync

import (
	"context"
	"errors"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/db"
)

const (
	StageBlocks      = "Blocks"
	StageClasses     = "Classes"
	StageExecution   = "Execution"
	StageCommitments = "Commitments"
)

// Stage is one step of the pipeline. Execute processes the blocks from..to, both
// inclusive, and must persist the checkpoint to in the same database transaction as its
// writes. Running it again over a processed range must leave the database unchanged.
type Stage interface {
	ID() string
	Execute(ctx context.Context, from, to uint64) error
}

// Checkpoint returns the highest block the stage has processed. A stage that never ran is
// at the chain height, which is the genesis block on a fresh database.
func Checkpoint(txn db.Transaction, stageID string) (uint64, error) {
	number, found, err := blockchain.StageCheckpoint(txn, stageID)
	if err != nil || found {
		return number, err
	}
	height, err := blockchain.ChainHeight(txn)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	return height, err
}
