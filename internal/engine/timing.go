package engine

import "time"

// Timing holds the waits and bounds shared by the resolver and executor.
type Timing struct {
	// Budget is the resolve budget used when a caller passes zero.
	Budget time.Duration
	// MinSlice is the floor of the per-strategy share of a budget.
	MinSlice time.Duration
	Interval time.Duration
	// Settle is the pause between scrolling an element and clicking it.
	Settle       time.Duration
	StaleRetries int
	// ChunkSize is in runes.
	ChunkSize  int
	ChunkPause time.Duration
	// AdvisorTimeout bounds one advisor call; zero means 30s.
	AdvisorTimeout time.Duration
}

func (t Timing) advisorTimeout() time.Duration {
	if t.AdvisorTimeout <= 0 {
		return 30 * time.Second
	}
	return t.AdvisorTimeout
}

// DefaultTiming returns the production defaults.
func DefaultTiming() Timing {
	return Timing{
		Budget:         10 * time.Second,
		MinSlice:       time.Second,
		Interval:       250 * time.Millisecond,
		Settle:         300 * time.Millisecond,
		StaleRetries:   2,
		ChunkSize:      5000,
		ChunkPause:     500 * time.Millisecond,
		AdvisorTimeout: 30 * time.Second,
	}
}
