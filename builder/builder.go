package builder

import (
	"errors"
	"time"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
)

const (
	DefaultValidateMaxSteps = 1_000_000
	DefaultInvokeMaxSteps   = 10_000_000
	DefaultMaxBlockSteps    = 50_000_000
)

// Config bounds the work that goes into one block.
type Config struct {
	ValidateMaxSteps uint64
	InvokeMaxSteps   uint64
	// MaxBlockSteps is the step budget of a block, zero for no limit.
	MaxBlockSteps uint64
	// MaxBlockDuration is the wall-clock budget of a block counted from its opening,
	// zero for no limit.
	MaxBlockDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		ValidateMaxSteps: DefaultValidateMaxSteps,
		InvokeMaxSteps:   DefaultInvokeMaxSteps,
		MaxBlockSteps:    DefaultMaxBlockSteps,
	}
}

var ErrBlockClosed = errors.New("block is no longer open")

// Builder assembles blocks on top of the head of the chain. It is not safe for
// concurrent use; the producer drives a single block at a time.
type Builder struct {
	chain    *blockchain.Blockchain
	spec     *core.ChainSpec
	executor vm.Executor
	cfg      Config
	listener EventListener
	log      utils.SimpleLogger
}

func New(chain *blockchain.Blockchain, spec *core.ChainSpec, executor vm.Executor, cfg Config,
	log utils.SimpleLogger,
) *Builder {
	return &Builder{
		chain:    chain,
		spec:     spec,
		executor: executor,
		cfg:      cfg,
		listener: &SelectiveListener{},
		log:      log,
	}
}

func (b *Builder) WithListener(listener EventListener) *Builder {
	b.listener = listener
	return b
}

func (b *Builder) Config() Config {
	return b.cfg
}

// Head returns the header the next block is built on.
func (b *Builder) Head() (*core.Header, error) {
	return b.chain.HeadHeader()
}

// Open snapshots the head state and starts an empty block on top of it. A timestamp
// before the parent's is raised to the parent's.
func (b *Builder) Open(timestamp uint64) (*BlockState, error) {
	parent, err := b.chain.HeadHeader()
	if err != nil {
		return nil, err
	}
	st, closer, err := b.chain.HeadState()
	if err != nil {
		return nil, err
	}

	env := b.spec.NewBlockEnv(parent.Number+1, max(timestamp, parent.Timestamp),
		b.cfg.ValidateMaxSteps, b.cfg.InvokeMaxSteps)
	b.log.Debugw("Opened block", "number", env.Number, "timestamp", env.Timestamp)
	return newBlockState(parent, env, st, closer), nil
}

// Full reports whether bs has used up its step or wall-clock budget.
func (b *Builder) Full(bs *BlockState) bool {
	if b.cfg.MaxBlockSteps > 0 && bs.Steps >= b.cfg.MaxBlockSteps {
		return true
	}
	return b.cfg.MaxBlockDuration > 0 && time.Since(bs.Opened) >= b.cfg.MaxBlockDuration
}

// Seal commits bs on top of its parent and releases its snapshot. When the commit fails
// bs is left open, so Seal can be tried again or the block aborted.
func (b *Builder) Seal(bs *BlockState) (*Result, error) {
	if bs.closed {
		return nil, ErrBlockClosed
	}

	start := time.Now()
	block := &core.Block{
		Header:       bs.Env.Header(bs.Parent.Hash),
		Transactions: bs.Transactions,
		Receipts:     bs.Receipts,
	}
	diff := bs.State.StateDiff()
	if err := b.chain.Store(block, diff, bs.State.NewClasses(), bs.Traces); err != nil {
		return nil, err
	}
	if err := bs.close(); err != nil {
		b.log.Warnw("Failed to release block snapshot", "number", block.Number, "err", err)
	}

	took := time.Since(start)
	b.listener.OnBlockSealed(block.Header, took)
	return &Result{Block: block, StateDiff: diff, Steps: bs.Steps, Took: took}, nil
}

// Abort discards bs. Nothing it executed reaches the chain.
func (b *Builder) Abort(bs *BlockState) error {
	if bs.closed {
		return nil
	}
	b.listener.OnBlockAborted(bs.Env.Number)
	return bs.close()
}
