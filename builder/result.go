package builder

import (
	"time"

	"github.com/NethermindEth/katana/core"
)

// Result describes a sealed block.
type Result struct {
	Block     *core.Block
	StateDiff *core.StateDiff
	Steps     uint64
	Took      time.Duration
}

func (r *Result) Header() *core.Header {
	return r.Block.Header
}
