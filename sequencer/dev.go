package sequencer

import (
	"context"
	"fmt"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
)

// do runs fn on the Run goroutine and waits for its result.
func (s *Sequencer) do(ctx context.Context, fn func(ctx context.Context) error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForceMine seals the open block, or an empty one if none is open, whatever the mode.
func (s *Sequencer) ForceMine(ctx context.Context) (*core.Header, error) {
	var header *core.Header
	err := s.do(ctx, func(ctx context.Context) error {
		if s.block == nil {
			if err := s.open(); err != nil {
				return err
			}
		}
		res, err := s.seal(ctx)
		if err != nil {
			return err
		}
		header = res.Header()
		return s.reopen()
	})
	return header, err
}

// SetNextBlockTimestamp makes the next sealed block carry timestamp. Later blocks keep
// the same distance to the wall clock.
func (s *Sequencer) SetNextBlockTimestamp(ctx context.Context, timestamp uint64) error {
	return s.do(ctx, func(context.Context) error {
		head, err := s.builder.Head()
		if err != nil {
			return err
		}
		if timestamp < head.Timestamp {
			return fmt.Errorf("%w: %d < %d", ErrTimestampTooEarly, timestamp, head.Timestamp)
		}
		s.offset = int64(timestamp) - s.now()
		s.restamp()
		return nil
	})
}

// IncreaseNextBlockTimestamp moves the clock of the next blocks forward by seconds.
func (s *Sequencer) IncreaseNextBlockTimestamp(ctx context.Context, seconds uint64) error {
	return s.do(ctx, func(context.Context) error {
		s.offset += int64(seconds)
		s.restamp()
		return nil
	})
}

// SetStorageAt writes a storage value that is sealed with the open block.
func (s *Sequencer) SetStorageAt(ctx context.Context, addr, key, value *felt.Felt) error {
	return s.do(ctx, func(context.Context) error {
		opened := false
		if s.block == nil {
			if err := s.open(); err != nil {
				return err
			}
			opened = true
		}
		if err := s.block.SetStorage(addr, key, value); err != nil {
			if opened {
				s.abort(err)
			}
			return err
		}
		if opened && s.cfg.Mode == Instant {
			s.arm(s.cfg.Debounce)
		}
		s.publishPending()
		return nil
	})
}

func (s *Sequencer) restamp() {
	if s.block != nil {
		s.block.SetTimestamp(s.timestamp())
		s.publishPending()
	}
}
