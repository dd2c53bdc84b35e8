package spec

import (
	"context"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
)

// Clock anchors wall time to the chain genesis. All duty deadlines are
// derived from it rather than from free-running tickers so that a slow
// callback cannot shift the schedule.
type Clock struct {
	spec *NetworkSpec
}

func NewClock(s *NetworkSpec) *Clock {
	return &Clock{spec: s}
}

func (c *Clock) CurrentSlot() phase0.Slot {
	return c.spec.SlotAt(time.Now())
}

func (c *Clock) CurrentEpoch() phase0.Epoch {
	return c.spec.EpochAt(c.CurrentSlot())
}

// WaitUntil blocks until the given wall time or ctx cancellation.
func (c *Clock) WaitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SlotTicker emits the slot number at the start of every slot. The channel
// is closed when ctx is cancelled. Slots whose start was missed while the
// consumer was busy are skipped, never queued.
func (c *Clock) SlotTicker(ctx context.Context) <-chan phase0.Slot {
	ch := make(chan phase0.Slot, 1)
	go func() {
		defer close(ch)
		for {
			next := c.CurrentSlot() + 1
			if err := c.WaitUntil(ctx, c.spec.SlotStartTime(next)); err != nil {
				return
			}
			select {
			case ch <- next:
			default:
				log.Warnf("slot %d tick dropped, consumer busy", next)
			}
		}
	}()
	return ch
}

// DeadlineContext derives a ctx that expires num/den of the way through slot.
func (c *Clock) DeadlineContext(ctx context.Context, slot phase0.Slot, num, den uint64) (context.Context, context.CancelFunc) {
	return context.WithDeadline(ctx, c.spec.SlotDeadline(slot, num, den))
}
