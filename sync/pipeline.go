package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/service"
	"github.com/NethermindEth/katana/utils"
	"github.com/sourcegraph/conc"
)

var _ service.Service = (*Pipeline)(nil)

var ErrStageBudgetExhausted = errors.New("stage retry budget exhausted")

const (
	DefaultChunkSize    = 100
	DefaultPollInterval = 2 * time.Second
	DefaultRetryBudget  = 10
)

type Config struct {
	// ChunkSize is the largest window a stage processes in one go.
	ChunkSize    uint64
	PollInterval time.Duration
	// RetryBudget is how many times a failing window is retried before the pipeline stops.
	RetryBudget uint64
	Backoff     utils.BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:    DefaultChunkSize,
		PollInterval: DefaultPollInterval,
		RetryBudget:  DefaultRetryBudget,
		Backoff:      utils.BackoffConfig{Initial: 500 * time.Millisecond, Max: 30 * time.Second},
	}
}

// Pipeline advances the local chain to the tip of a DataSource by running its stages
// in order over windows of blocks. Every stage resumes from its own checkpoint, and a
// stage never runs past the checkpoint of the stage before it.
type Pipeline struct {
	database db.DB
	source   DataSource
	stages   []Stage
	cfg      Config
	log      utils.SimpleLogger
	listener EventListener

	tip      atomic.Uint64
	tipKnown atomic.Bool
	tipMoved chan struct{}
}

func New(database db.DB, source DataSource, stages []Stage, cfg Config, log utils.SimpleLogger) *Pipeline {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Pipeline{
		database: database,
		source:   source,
		stages:   stages,
		cfg:      cfg,
		log:      log,
		listener: &SelectiveListener{},
		tipMoved: make(chan struct{}, 1),
	}
}

// WithListener registers an EventListener
func (p *Pipeline) WithListener(listener EventListener) *Pipeline {
	p.listener = listener
	return p
}

// Tip returns the last remote head the pipeline saw.
func (p *Pipeline) Tip() (uint64, bool) {
	return p.tip.Load(), p.tipKnown.Load()
}

// Run drives the stages until ctx is cancelled, a stage hits a fatal error or a stage
// exhausts its retry budget. Cancellation is honoured between stage windows: a window
// that has started runs to completion and persists its checkpoint.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg conc.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	wg.Go(func() { p.watchTip(ctx) })

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		progressed := false
		if tip, known := p.Tip(); known {
			var err error
			if progressed, err = p.pass(ctx, tip); err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					return nil
				}
				return err
			}
		}
		if progressed {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-p.tipMoved:
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// pass runs every stage that is behind once, in order.
func (p *Pipeline) pass(ctx context.Context, tip uint64) (bool, error) {
	progressed := false
	bound := tip
	for _, stage := range p.stages {
		if ctx.Err() != nil {
			return progressed, nil
		}

		var checkpoint uint64
		err := p.database.View(func(txn db.Transaction) error {
			var err error
			checkpoint, err = Checkpoint(txn, stage.ID())
			return err
		})
		if err != nil {
			return progressed, err
		}

		if checkpoint < bound {
			to := min(checkpoint+p.cfg.ChunkSize, bound)
			if err = p.runWindow(ctx, stage, checkpoint+1, to); err != nil {
				return progressed, err
			}
			checkpoint = to
			progressed = true
		}
		bound = min(bound, checkpoint)
	}
	return progressed, nil
}

func (p *Pipeline) runWindow(ctx context.Context, stage Stage, from, to uint64) error {
	start := time.Now()
	retry := p.cfg.Backoff
	retry.MaxRetries = 0

	// The window itself is not interrupted by ctx, only the waits between attempts are.
	windowCtx := context.WithoutCancel(ctx)
	var failures uint64
	err := retry.Retry(ctx, func() error {
		err := stage.Execute(windowCtx, from, to)
		switch {
		case err == nil:
			return nil
		case isFatal(err):
			return utils.Permanent(err)
		case isSourceError(err):
			// The remote is retried for as long as it takes.
			return err
		}
		if failures++; failures > p.cfg.RetryBudget {
			return utils.Permanent(&budgetError{err: err})
		}
		return err
	}, func(err error, next time.Duration) {
		p.listener.OnStageError(stage.ID())
		p.log.Warnw("Stage failed, retrying", "stage", stage.ID(), "from", from, "to", to,
			"retryAfter", next, "err", err)
	})
	if err != nil {
		var exhausted *budgetError
		switch {
		case errors.As(err, &exhausted):
			p.listener.OnStageError(stage.ID())
			return fmt.Errorf("%w: stage %s at blocks %d-%d: %w", ErrStageBudgetExhausted, stage.ID(), from, to,
				exhausted.err)
		case isFatal(err):
			p.listener.OnStageError(stage.ID())
			return fmt.Errorf("stage %s at blocks %d-%d: %w", stage.ID(), from, to, err)
		case ctx.Err() != nil:
			return ctx.Err()
		}
		return fmt.Errorf("stage %s at blocks %d-%d: %w", stage.ID(), from, to, err)
	}

	took := time.Since(start)
	p.listener.OnSyncStepDone(stage.ID(), to, took)
	p.log.Debugw("Stage window done", "stage", stage.ID(), "from", from, "to", to, "took", took)
	if stage.ID() == StageCommitments {
		p.log.Infow("Synced blocks", "to", to, "took", took)
	}
	return nil
}

type budgetError struct {
	err error
}

func (e *budgetError) Error() string { return e.err.Error() }
func (e *budgetError) Unwrap() error { return e.err }

func isSourceError(err error) bool {
	var sourceErr *SourceError
	return errors.As(err, &sourceErr)
}

// isFatal reports errors that retrying cannot fix.
func isFatal(err error) bool {
	var incompatible blockchain.ErrIncompatibleBlock
	var mismatch *MismatchError
	return db.IsCorruption(err) || errors.As(err, &incompatible) || errors.As(err, &mismatch)
}

// raiseTip moves the tip up to tip. A remote that reports a lower head leaves it in place.
func (p *Pipeline) raiseTip(tip uint64) bool {
	for {
		old := p.tip.Load()
		if p.tipKnown.Load() && tip <= old {
			return false
		}
		if p.tip.CompareAndSwap(old, tip) {
			p.tipKnown.Store(true)
			return true
		}
	}
}

// watchTip polls the remote head until ctx is done.
func (p *Pipeline) watchTip(ctx context.Context) {
	retry := p.cfg.Backoff
	retry.MaxRetries = 0
	for {
		err := retry.Retry(ctx, func() error {
			tip, err := p.source.Tip(ctx)
			if err != nil {
				return err
			}
			if moved := p.raiseTip(tip); moved {
				p.listener.OnTip(tip)
				select {
				case p.tipMoved <- struct{}{}:
				default:
				}
			}
			return nil
		}, func(err error, next time.Duration) {
			p.log.Debugw("Failed to fetch remote tip", "retryAfter", next, "err", err)
		})
		if err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.PollInterval):
		}
	}
}
