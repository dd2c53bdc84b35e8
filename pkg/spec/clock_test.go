package spec

import (
	"context"
	"testing"
	"time"
)

func fastSpec() *NetworkSpec {
	return &NetworkSpec{
		Name:                         "test",
		GenesisTime:                  time.Now().Add(-time.Hour),
		SecondsPerSlot:               1,
		SlotsPerEpoch:                4,
		SyncCommitteeSize:            512,
		EpochsPerSyncCommitteePeriod: 256,
		Forks: []ScheduledFork{
			{ForkPhase0, mustVersion("0x00000000"), 0},
		},
	}
}

func TestWaitUntilPast(t *testing.T) {
	clock := NewClock(fastSpec())
	start := time.Now()
	if err := clock.WaitUntil(context.Background(), start.Add(-time.Second)); err != nil {
		t.Fatalf("WaitUntil for past time returned %s", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Errorf("WaitUntil for past time blocked")
	}
}

func TestWaitUntilCancellation(t *testing.T) {
	clock := NewClock(fastSpec())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := clock.WaitUntil(ctx, time.Now().Add(time.Minute)); err == nil {
		t.Fatalf("cancelled WaitUntil returned nil")
	}
}

func TestSlotTickerAdvances(t *testing.T) {
	clock := NewClock(fastSpec())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ticker := clock.SlotTicker(ctx)
	first, ok := <-ticker
	if !ok {
		t.Fatalf("ticker closed before first tick")
	}
	second, ok := <-ticker
	if !ok {
		t.Fatalf("ticker closed before second tick")
	}
	if second <= first {
		t.Errorf("slots did not advance: %d then %d", first, second)
	}
}

func TestDeadlineContext(t *testing.T) {
	s := fastSpec()
	clock := NewClock(s)
	slot := clock.CurrentSlot() + 1

	ctx, cancel := clock.DeadlineContext(context.Background(), slot, 1, 3)
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatalf("context has no deadline")
	}
	want := s.SlotDeadline(slot, 1, 3)
	if !deadline.Equal(want) {
		t.Errorf("deadline %s, expected %s", deadline, want)
	}
}
