package sequencer

import (
	"fmt"
	"time"
)

// Mode decides when the open block is sealed.
type Mode uint8

const (
	// Interval keeps a block open at all times and seals it every BlockTime, empty or not.
	Interval Mode = iota + 1
	// Instant opens a block when a transaction is ready and seals it once the pool has
	// stayed empty for the debounce period.
	Instant
	// OnDemand keeps a block open and seals it only when ForceMine is called.
	OnDemand
)

// ModeFor picks the mode from the block time and no-mining settings.
func ModeFor(blockTime time.Duration, noMining bool) Mode {
	switch {
	case noMining:
		return OnDemand
	case blockTime > 0:
		return Interval
	default:
		return Instant
	}
}

func (m Mode) String() string {
	switch m {
	case Interval:
		return "interval"
	case Instant:
		return "instant"
	case OnDemand:
		return "on-demand"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}
