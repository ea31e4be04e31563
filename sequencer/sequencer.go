package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/feed"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/service"
	"github.com/NethermindEth/katana/utils"
)

var _ service.Service = (*Sequencer)(nil)

var (
	// ErrProductionStopped wraps the failures that end block production: a block that
	// could not be committed within the retry budget, or a corrupt database.
	ErrProductionStopped = errors.New("block production stopped")
	ErrNotRunning        = errors.New("block producer is not running")
	ErrTimestampTooEarly = errors.New("timestamp is before the latest block's")
)

const DefaultDebounce = 20 * time.Millisecond

type Config struct {
	Mode Mode
	// BlockTime is the sealing interval in Interval mode.
	BlockTime time.Duration
	// Debounce is how long the pool has to stay empty before an Instant block is sealed.
	Debounce    time.Duration
	CommitRetry utils.BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Mode:     Instant,
		Debounce: DefaultDebounce,
		CommitRetry: utils.BackoffConfig{
			Initial:    100 * time.Millisecond,
			Max:        2 * time.Second,
			MaxRetries: 5,
		},
	}
}

type request struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Sequencer drives the block lifecycle: Idle, Open while transactions are executed into
// the block, then Commit back to Idle, or Abort when the block cannot be committed. When
// a block is sealed is decided by the Mode. Everything that touches the open block runs
// on the Run goroutine; the dev controls are handed to it as requests.
type Sequencer struct {
	builder *builder.Builder
	pool    *mempool.Pool
	cfg     Config
	log     utils.SimpleLogger

	requests chan request
	stopped  chan struct{}

	pending     atomic.Pointer[core.Block]
	pendingFeed *feed.Feed[*core.Block]

	// owned by Run
	block    *builder.BlockState
	taken    []*mempool.PendingTx
	timer    *time.Timer
	deadline <-chan time.Time
	// offset is added to the wall clock when a block is opened
	offset int64
}

func New(b *builder.Builder, pool *mempool.Pool, cfg Config, log utils.SimpleLogger) *Sequencer {
	return &Sequencer{
		builder:     b,
		pool:        pool,
		cfg:         cfg,
		log:         log,
		requests:    make(chan request),
		stopped:     make(chan struct{}),
		pendingFeed: feed.New[*core.Block](),
	}
}

func (s *Sequencer) Run(ctx context.Context) error {
	defer close(s.stopped)
	defer s.disarm()

	s.log.Infow("Started block production", "mode", s.cfg.Mode.String())
	if err := s.reopen(); err != nil {
		return err
	}
	if _, err := s.drain(ctx); err != nil {
		return err
	}

	for {
		var err error
		select {
		case <-ctx.Done():
			return s.shutdown(ctx)
		case <-s.pool.Wait():
			_, err = s.drain(ctx)
		case <-s.deadline:
			s.deadline = nil
			err = s.onDeadline(ctx)
		case req := <-s.requests:
			err = req.fn(ctx)
			req.done <- err
			if !errors.Is(err, ErrProductionStopped) {
				err = nil
			}
		}
		if err != nil {
			return err
		}
	}
}

// open moves from Idle to Open.
func (s *Sequencer) open() error {
	bs, err := s.builder.Open(s.timestamp())
	if err != nil {
		return fmt.Errorf("%w: open block: %w", ErrProductionStopped, err)
	}
	s.block = bs
	if s.cfg.Mode == Interval {
		s.arm(s.cfg.BlockTime)
	}
	s.publishPending()
	return nil
}

// reopen opens the next block right away in the modes that always keep one open.
func (s *Sequencer) reopen() error {
	if s.cfg.Mode == Instant {
		return nil
	}
	return s.open()
}

// drain executes ready transactions until the pool runs dry or ctx is done, sealing
// whenever the block's budget runs out. It returns how many transactions it took.
func (s *Sequencer) drain(ctx context.Context) (int, error) {
	taken := 0
	for ctx.Err() == nil {
		pending, ok := s.pool.TakeNext()
		if !ok {
			break
		}
		taken++
		if s.block == nil {
			if err := s.open(); err != nil {
				s.pool.Drop(pending, err)
				return taken, err
			}
		}
		if err := s.execute(pending); err != nil {
			return taken, err
		}
		if s.builder.Full(s.block) {
			s.log.Debugw("Block budget used up", "number", s.block.Env.Number, "steps", s.block.Steps)
			if _, err := s.seal(ctx); err != nil {
				return taken, err
			}
			if err := s.reopen(); err != nil {
				return taken, err
			}
		}
	}

	if taken > 0 {
		if s.cfg.Mode == Instant && s.block != nil {
			s.arm(s.cfg.Debounce)
		}
		s.publishPending()
	}
	return taken, nil
}

func (s *Sequencer) execute(pending *mempool.PendingTx) error {
	receipt, err := s.builder.Execute(s.block, pending.Transaction)
	switch {
	case db.IsCorruption(err):
		s.pool.Drop(pending, err)
		s.abort(err)
		return fmt.Errorf("%w: %w", ErrProductionStopped, err)
	case err != nil:
		s.log.Debugw("Dropped transaction", "hash", pending.Hash(), "err", err)
		s.pool.Drop(pending, err)
		return nil
	}

	s.taken = append(s.taken, pending)
	if receipt.Reverted {
		s.log.Debugw("Transaction reverted", "hash", pending.Hash(), "reason", receipt.RevertReason)
	}
	return nil
}

func (s *Sequencer) onDeadline(ctx context.Context) error {
	switch s.cfg.Mode {
	case Interval:
		if _, err := s.seal(ctx); err != nil {
			return err
		}
		return s.reopen()
	case Instant:
		// the debounce starts over if more transactions came in
		taken, err := s.drain(ctx)
		if err != nil || taken > 0 || s.block == nil {
			return err
		}
		_, err = s.seal(ctx)
		return err
	default:
		return nil
	}
}

// seal moves the open block through Commit. The commit is retried with back-off; when
// it keeps failing the block is aborted and its transactions are handed back to the pool.
func (s *Sequencer) seal(ctx context.Context) (*builder.Result, error) {
	bs := s.block
	s.disarm()

	var res *builder.Result
	commit := func() error {
		var err error
		res, err = s.builder.Seal(bs)
		var incompatible blockchain.ErrIncompatibleBlock
		if db.IsCorruption(err) || errors.As(err, &incompatible) {
			return utils.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		s.log.Warnw("Failed to commit block, retrying", "number", bs.Env.Number, "in", next, "err", err)
	}
	if err := s.cfg.CommitRetry.Retry(context.WithoutCancel(ctx), commit, notify); err != nil {
		s.abort(err)
		return nil, fmt.Errorf("%w: commit block %d: %w", ErrProductionStopped, bs.Env.Number, err)
	}

	s.block, s.taken = nil, nil
	header := res.Header()
	s.log.Infow("Sealed block", "number", header.Number, "hash", header.Hash,
		"txCount", header.TransactionCount, "took", res.Took)

	if err := s.pool.NotifyStateAdvanced(context.WithoutCancel(ctx), res.Block); err != nil {
		s.log.Warnw("Failed to catch the pool up with the new block", "number", header.Number, "err", err)
	}
	s.publishPending()
	return res, nil
}

// abort discards the open block. Its transactions go back to the pool as dropped.
func (s *Sequencer) abort(reason error) {
	if err := s.builder.Abort(s.block); err != nil {
		s.log.Warnw("Failed to release aborted block", "number", s.block.Env.Number, "err", err)
	}
	for _, pending := range s.taken {
		s.pool.Drop(pending, reason)
	}
	s.block, s.taken = nil, nil
	s.publishPending()
}

// shutdown seals the open block unless nothing went into it.
func (s *Sequencer) shutdown(ctx context.Context) error {
	if s.block == nil {
		return nil
	}
	if s.block.Len() == 0 && s.block.State.StateDiff().IsEmpty() {
		if err := s.builder.Abort(s.block); err != nil {
			s.log.Warnw("Failed to release open block", "err", err)
		}
		s.block = nil
		return nil
	}
	_, err := s.seal(ctx)
	return err
}

func (s *Sequencer) now() int64 {
	return time.Now().Unix()
}

func (s *Sequencer) timestamp() uint64 {
	return uint64(max(s.now()+s.offset, 0))
}

func (s *Sequencer) arm(d time.Duration) {
	if s.timer == nil {
		s.timer = time.NewTimer(d)
	} else {
		s.timer.Reset(d)
	}
	s.deadline = s.timer.C
}

func (s *Sequencer) disarm() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.deadline = nil
}

func (s *Sequencer) publishPending() {
	if s.block == nil {
		s.pending.Store(nil)
		return
	}
	block := s.block.Block()
	s.pending.Store(block)
	s.pendingFeed.Send(block)
}

// PendingBlock returns what the open block holds so far, nil when no block is open.
func (s *Sequencer) PendingBlock() *core.Block {
	return s.pending.Load()
}

func (s *Sequencer) SubscribePending() *feed.Subscription[*core.Block] {
	return s.pendingFeed.Subscribe()
}

func (s *Sequencer) Mode() Mode {
	return s.cfg.Mode
}
