package transport

import (
	"context"
	"time"
)

// DefaultPollInterval is the spin-sleep granularity between checks.
const DefaultPollInterval = 100 * time.Microsecond

// Condition is checked on every poll. An error aborts the wait.
type Condition func() (bool, error)

// WaitFor polls cond every interval until it holds, cond fails, or ctx is done.
// cond is always checked once before the first sleep. When ctx carries a
// deadline the wait returns ctx.Err() as soon as it passes, never earlier.
func WaitFor(ctx context.Context, interval time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// All holds when every artifact in present exists and every artifact in
// absent does not.
func (c *Channel) All(present []Artifact, absent []Artifact) Condition {
	return func() (bool, error) {
		for _, a := range present {
			ok, err := c.Exists(a)
			if err != nil || !ok {
				return false, err
			}
		}
		for _, a := range absent {
			ok, err := c.Exists(a)
			if err != nil || ok {
				return false, err
			}
		}
		return true, nil
	}
}
