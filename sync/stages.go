package sync

import (
	"context"
	"fmt"
	"maps"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/vm"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"github.com/sourcegraph/conc/stream"
)

// MismatchError reports remote data that contradicts itself or the local chain.
// Retrying does not help.
type MismatchError struct {
	Block  uint64
	Reason string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("block %d does not match: %s", e.Block, e.Reason)
}

func mismatch(block uint64, format string, args ...any) *MismatchError {
	return &MismatchError{Block: block, Reason: fmt.Sprintf(format, args...)}
}

const defaultFetchConcurrency = 8

type blocksStage struct {
	database    db.DB
	source      DataSource
	chainID     *felt.Felt
	concurrency int
}

// NewBlocksStage downloads headers, bodies, receipts and state diffs and stores them
// ahead of the head after checking them against their own commitments.
func NewBlocksStage(database db.DB, source DataSource, chainID *felt.Felt) Stage {
	return &blocksStage{database: database, source: source, chainID: chainID, concurrency: defaultFetchConcurrency}
}

func (s *blocksStage) ID() string { return StageBlocks }

type fetchedBlock struct {
	block *core.Block
	diff  *core.StateDiff
}

func (s *blocksStage) Execute(ctx context.Context, from, to uint64) error {
	fetched := make([]fetchedBlock, 0, to-from+1)
	var fetchErr error

	fetchers := stream.New().WithMaxGoroutines(s.concurrency)
	for number := from; number <= to; number++ {
		fetchers.Go(func() stream.Callback {
			block, diff, err := s.source.BlockByNumber(ctx, number)
			return func() {
				if fetchErr != nil {
					return
				}
				if err != nil {
					fetchErr = &SourceError{Err: err}
					return
				}
				fetched = append(fetched, fetchedBlock{block: block, diff: diff})
			}
		})
	}
	fetchers.Wait()
	if fetchErr != nil {
		return fetchErr
	}

	for _, f := range fetched {
		if err := s.verify(f.block, f.diff); err != nil {
			return err
		}
	}

	return s.database.Update(func(txn db.Transaction) error {
		parent, err := blockchain.BlockHeaderByNumber(txn, from-1)
		if err != nil {
			return errors.Wrapf(err, "read parent of block %d", from)
		}
		for _, f := range fetched {
			header := f.block.Header
			if header.ParentHash == nil || !header.ParentHash.Equal(parent.Hash) {
				return mismatch(header.Number, "parent hash %v, local block %d has %v", header.ParentHash, parent.Number, parent.Hash)
			}
			if header.Timestamp < parent.Timestamp {
				return mismatch(header.Number, "timestamp %d is before its parent's %d", header.Timestamp, parent.Timestamp)
			}
			if err = blockchain.StoreBlockBody(txn, f.block, f.diff, nil); err != nil {
				return errors.Wrapf(err, "store block %d", header.Number)
			}
			parent = header
		}
		return blockchain.SetStageCheckpoint(txn, StageBlocks, to)
	})
}

func (s *blocksStage) verify(block *core.Block, diff *core.StateDiff) error {
	for _, txn := range block.Transactions {
		if err := core.VerifyTransaction(txn, s.chainID); err != nil {
			return mismatch(block.Number, "transaction %v: %v", txn.Hash(), err)
		}
	}
	if err := core.VerifyBlock(block, diff); err != nil {
		return mismatch(block.Number, "%v", err)
	}
	return nil
}

type classesStage struct {
	database    db.DB
	source      DataSource
	concurrency int
}

// NewClassesStage downloads the definitions of the classes the stored blocks declare.
func NewClassesStage(database db.DB, source DataSource) Stage {
	return &classesStage{database: database, source: source, concurrency: defaultFetchConcurrency}
}

func (s *classesStage) ID() string { return StageClasses }

type declaredClass struct {
	block             uint64
	classHash         felt.Felt
	compiledClassHash *felt.Felt
	class             *core.Class
}

func (s *classesStage) Execute(ctx context.Context, from, to uint64) error {
	var missing []*declaredClass
	err := s.database.View(func(txn db.Transaction) error {
		latest := state.New(txn, nil)
		for number := from; number <= to; number++ {
			diff, err := blockchain.StateDiffByBlockNumber(txn, number)
			if err != nil {
				return errors.Wrapf(err, "read state diff %d", number)
			}
			for classHash, compiledClassHash := range diff.DeclaredClasses {
				has, err := blockchain.HasSyncClass(txn, &classHash)
				if err != nil {
					return err
				} else if has {
					continue
				}
				if _, err = latest.Class(&classHash); err == nil {
					continue
				} else if !errors.Is(err, core.ErrClassNotFound) {
					return err
				}
				missing = append(missing, &declaredClass{block: number, classHash: classHash, compiledClassHash: compiledClassHash})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	fetchers := pool.New().WithContext(ctx).WithMaxGoroutines(s.concurrency).WithCancelOnError()
	for _, declared := range missing {
		fetchers.Go(func(ctx context.Context) error {
			class, err := s.source.Class(ctx, &declared.classHash)
			if err != nil {
				return &SourceError{Err: err}
			}
			return verifyClass(declared, class)
		})
	}
	if err = fetchers.Wait(); err != nil {
		return err
	}

	return s.database.Update(func(txn db.Transaction) error {
		for _, declared := range missing {
			if err := blockchain.StoreSyncClass(txn, &declared.classHash, declared.class); err != nil {
				return err
			}
		}
		return blockchain.SetStageCheckpoint(txn, StageClasses, to)
	})
}

func verifyClass(declared *declaredClass, class *core.Class) error {
	classHash, err := class.Hash()
	if err != nil {
		return err
	}
	if !classHash.Equal(&declared.classHash) {
		return mismatch(declared.block, "class %v hashes to %v", &declared.classHash, classHash)
	}
	compiled, err := class.CompiledClassHash()
	if err != nil {
		return err
	}
	if !compiled.Equal(declared.compiledClassHash) {
		return mismatch(declared.block, "class %v compiles to %v, state diff says %v", &declared.classHash,
			compiled, declared.compiledClassHash)
	}
	declared.class = class
	return nil
}

type executionStage struct {
	database         db.DB
	spec             *core.ChainSpec
	executor         vm.Executor
	validateMaxSteps uint64
	invokeMaxSteps   uint64
}

// NewExecutionStage re-executes the stored blocks, checks the receipts and state diffs
// the source supplied against the execution, and stores the resulting traces.
func NewExecutionStage(database db.DB, spec *core.ChainSpec, executor vm.Executor, validateMaxSteps,
	invokeMaxSteps uint64,
) Stage {
	return &executionStage{
		database:         database,
		spec:             spec,
		executor:         executor,
		validateMaxSteps: validateMaxSteps,
		invokeMaxSteps:   invokeMaxSteps,
	}
}

func (s *executionStage) ID() string { return StageExecution }

func (s *executionStage) Execute(_ context.Context, from, to uint64) error {
	return s.database.Update(func(txn db.Transaction) error {
		height, err := blockchain.ChainHeight(txn)
		if err != nil {
			return err
		}

		// Blocks executed earlier but not committed yet are replayed from their diffs.
		overlay := state.NewPending(state.New(txn, nil))
		for number := height + 1; number < from; number++ {
			diff, classes, err := storedDiff(txn, number)
			if err != nil {
				return err
			}
			apply(overlay, diff, classes)
		}

		for number := from; number <= to; number++ {
			traces, err := s.reexecute(txn, overlay, number)
			if err != nil {
				return err
			}
			if err = blockchain.StoreTraces(txn, number, traces); err != nil {
				return err
			}
		}
		return blockchain.SetStageCheckpoint(txn, StageExecution, to)
	})
}

func (s *executionStage) reexecute(txn db.Transaction, overlay *state.Pending, number uint64) ([]*core.TransactionTrace, error) {
	block, err := blockchain.BlockByNumber(txn, number)
	if err != nil {
		return nil, errors.Wrapf(err, "read block %d", number)
	}
	diff, classes, err := storedDiff(txn, number)
	if err != nil {
		return nil, err
	}

	env := s.spec.NewBlockEnv(number, block.Timestamp, s.validateMaxSteps, s.invokeMaxSteps)
	env.SequencerAddress = block.SequencerAddress
	env.L1GasPrice = block.L1GasPrice
	env.L1DataGasPrice = block.L1DataGasPrice
	env.L1DAMode = block.L1DAMode
	env.ProtocolVersion = block.ProtocolVersion

	executed := overlay.Fork()
	traces := make([]*core.TransactionTrace, len(block.Transactions))
	for i, tx := range block.Transactions {
		if declare, ok := tx.(*core.DeclareTransaction); ok && declare.Class == nil {
			withClass := *declare
			withClass.Class = classes[*declare.ClassHash]
			tx = &withClass
		}

		fork := executed.Fork()
		res, err := s.executor.Execute(tx, fork, env)
		if err != nil {
			return nil, mismatch(number, "transaction %v does not execute: %v", tx.Hash(), err)
		}
		if err = compareReceipts(block.Receipts[i], res.Receipt); err != nil {
			return nil, mismatch(number, "transaction %v: %v", tx.Hash(), err)
		}
		if err = executed.Commit(fork); err != nil {
			return nil, err
		}
		traces[i] = res.Trace
	}

	if err = containsDiff(diff, executed.StateDiff()); err != nil {
		return nil, mismatch(number, "%v", err)
	}
	apply(overlay, diff, classes)
	return traces, nil
}

func storedDiff(txn db.Transaction, number uint64) (*core.StateDiff, map[felt.Felt]*core.Class, error) {
	diff, err := blockchain.StateDiffByBlockNumber(txn, number)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read state diff %d", number)
	}
	classes := make(map[felt.Felt]*core.Class, len(diff.DeclaredClasses))
	for classHash := range diff.DeclaredClasses {
		class, err := blockchain.SyncClass(txn, &classHash)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "read class of block %d", number)
		}
		classes[classHash] = class
	}
	return diff, classes, nil
}

func apply(overlay *state.Pending, diff *core.StateDiff, classes map[felt.Felt]*core.Class) {
	overlay.StateDiff().Merge(diff)
	maps.Copy(overlay.NewClasses(), classes)
}

func compareReceipts(remote, local *core.TransactionReceipt) error {
	switch {
	case remote.Reverted != local.Reverted || remote.RevertReason != local.RevertReason:
		return fmt.Errorf("execution status differs: remote reverted=%t %q, local reverted=%t %q",
			remote.Reverted, remote.RevertReason, local.Reverted, local.RevertReason)
	case !orZero(remote.Fee).Equal(orZero(local.Fee)):
		return fmt.Errorf("fee differs: remote %v, local %v", remote.Fee, local.Fee)
	case len(remote.Events) != len(local.Events):
		return fmt.Errorf("remote emitted %d events, local %d", len(remote.Events), len(local.Events))
	case len(remote.L2ToL1Message) != len(local.L2ToL1Message):
		return fmt.Errorf("remote sent %d messages, local %d", len(remote.L2ToL1Message), len(local.L2ToL1Message))
	}
	return nil
}

func orZero(f *felt.Felt) *felt.Felt {
	if f == nil {
		return &felt.Zero
	}
	return f
}

// containsDiff checks that every change the execution made is in the remote diff. The
// remote diff may hold more: storage written through the dev API has no transaction.
func containsDiff(remote, executed *core.StateDiff) error {
	for addr, storage := range executed.StorageDiffs {
		for key, value := range storage {
			if got, ok := remote.StorageDiffs[addr][key]; !ok || !got.Equal(value) {
				return fmt.Errorf("storage %v at %v: executed %v, remote %v", &key, &addr, value, got)
			}
		}
	}
	for _, pair := range []struct {
		name             string
		executed, remote map[felt.Felt]*felt.Felt
	}{
		{"nonce", executed.Nonces, remote.Nonces},
		{"deployed class", executed.DeployedContracts, remote.DeployedContracts},
		{"replaced class", executed.ReplacedClasses, remote.ReplacedClasses},
		{"compiled class hash", executed.DeclaredClasses, remote.DeclaredClasses},
	} {
		for key, value := range pair.executed {
			if got, ok := pair.remote[key]; !ok || !got.Equal(value) {
				return fmt.Errorf("%s of %v: executed %v, remote %v", pair.name, &key, value, got)
			}
		}
	}
	return nil
}

type commitmentsStage struct {
	chain *blockchain.Blockchain
}

// NewCommitmentsStage applies the stored blocks to the state, checks every state root
// against the remote header and moves the head.
func NewCommitmentsStage(chain *blockchain.Blockchain) Stage {
	return &commitmentsStage{chain: chain}
}

func (s *commitmentsStage) ID() string { return StageCommitments }

func (s *commitmentsStage) Execute(_ context.Context, from, to uint64) error {
	return s.chain.CommitStored(to, func(txn db.Transaction) error {
		return blockchain.SetStageCheckpoint(txn, StageCommitments, to)
	})
}

// Stages returns the shipped pipeline in order.
func Stages(database db.DB, chain *blockchain.Blockchain, source DataSource, spec *core.ChainSpec,
	executor vm.Executor, validateMaxSteps, invokeMaxSteps uint64,
) []Stage {
	return []Stage{
		NewBlocksStage(database, source, spec.ChainID),
		NewClassesStage(database, source),
		NewExecutionStage(database, spec, executor, validateMaxSteps, invokeMaxSteps),
		NewCommitmentsStage(chain),
	}
}
