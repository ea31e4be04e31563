package feeder

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

const (
	growthFactorFast  = 2
	growthFactorSlow  = 1.2
	fastGrowThreshold = 1 * time.Minute
	timeoutsCount     = 20
	DefaultTimeout    = 5 * time.Second
)

// Timeouts is a ladder of request timeouts. A timed out request moves the client one
// step up, a successful one moves it one step down.
type Timeouts struct {
	mu       sync.RWMutex
	timeouts []time.Duration
	current  int
}

// NewTimeouts builds a ladder that starts at initial and grows geometrically: doubling
// below a minute, by a fifth above it.
func NewTimeouts(initial time.Duration) *Timeouts {
	timeouts := make([]time.Duration, timeoutsCount)
	timeouts[0] = initial
	for i := 1; i < timeoutsCount; i++ {
		timeouts[i] = nextTimeout(timeouts[i-1])
	}
	return &Timeouts{timeouts: timeouts}
}

// FixedTimeouts uses the given ladder as is.
func FixedTimeouts(timeouts ...time.Duration) *Timeouts {
	return &Timeouts{timeouts: timeouts}
}

func nextTimeout(prev time.Duration) time.Duration {
	factor := growthFactorSlow
	if prev < fastGrowThreshold {
		factor = growthFactorFast
	}
	return time.Duration(math.Ceil(prev.Seconds()*factor)) * time.Second
}

func (t *Timeouts) Current() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.timeouts[t.current]
}

func (t *Timeouts) Decrease() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current > 0 {
		t.current--
	}
}

func (t *Timeouts) Increase() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current < len(t.timeouts)-1 {
		t.current++
	}
}

func (t *Timeouts) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	timeouts := make([]string, len(t.timeouts))
	for i, d := range t.timeouts {
		timeouts[i] = d.String()
	}
	return strings.Join(timeouts, ",")
}

// ParseTimeouts parses a comma-separated list of durations. A single value is the start
// of a growing ladder, several values form a fixed, strictly ascending one.
func ParseTimeouts(value string) (*Timeouts, error) {
	var timeouts []time.Duration
	for i, v := range strings.Split(value, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parsing timeout parameter number %d: %v", i+1, err)
		}
		if len(timeouts) > 0 && d <= timeouts[len(timeouts)-1] {
			return nil, fmt.Errorf("timeout values must be in ascending order, got %v <= %v", d, timeouts[len(timeouts)-1])
		}
		timeouts = append(timeouts, d)
	}

	switch {
	case len(timeouts) == 0:
		return nil, fmt.Errorf("timeouts are not set")
	case len(timeouts) > timeoutsCount:
		return nil, fmt.Errorf("exceeded max amount of allowed timeout parameters. Set %d but max is %d", len(timeouts), timeoutsCount)
	case len(timeouts) == 1:
		return NewTimeouts(timeouts[0]), nil
	}
	return FixedTimeouts(timeouts...), nil
}
