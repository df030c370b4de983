package runtime

import (
	"context"
	"time"
)

// Run drains until no microtasks, timers, scheduled resolutions or external
// operations remain. Between drains it sleeps in Wait.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Drain()

		if s.Pending() > 0 || s.hasScheduled() {
			continue
		}
		if !s.HasPendingTimers() && !s.HasPendingExternalOps() {
			return nil
		}
		if err := s.Wait(ctx); err != nil {
			return err
		}
	}
}

// Wait sleeps until the next timer deadline, until new work arrives from
// another goroutine, or until ctx ends, whichever comes first. Only the
// last case is an error.
func (s *Scheduler) Wait(ctx context.Context) error {
	if next, ok := s.NextDeadline(); ok {
		d := next.Sub(s.now())
		if d < s.cfg.TimerResolution {
			d = s.cfg.TimerResolution
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-t.C:
		}
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.wake:
	}
	return nil
}
