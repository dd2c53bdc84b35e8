package scheduler

import (
	"time"
)

var shutdownPollInterval = 250 * time.Millisecond

// shutdownDelay computes how long to hold process exit back: up to three
// slots when a managed proposal is imminent, plus up to one and a half
// slots for in-flight attester/sync work. Pure so it is testable.
func shutdownDelay(hasImminentProposal bool, slotDuration time.Duration) (proposalBudget, drainBudget time.Duration) {
	drainBudget = slotDuration * drainShutdownNum / drainShutdownDen
	if hasImminentProposal {
		proposalBudget = slotDuration * proposalShutdownHorizon
	}
	return proposalBudget, drainBudget
}

// Close implements the deferred shutdown: duties already running get their
// budget, then the process exits regardless.
func (s *Scheduler) Close() {
	currentSlot := s.clock.CurrentSlot()
	hasProposal := s.duties.HasProposalWithin(currentSlot, proposalShutdownHorizon)
	proposalBudget, drainBudget := shutdownDelay(hasProposal, s.spec.SlotDuration())

	if proposalBudget > 0 {
		log.Warnf("proposal scheduled within %d slots, delaying shutdown up to %s",
			proposalShutdownHorizon, proposalBudget)
		deadline := time.Now().Add(proposalBudget)
		for time.Now().Before(deadline) {
			if !s.duties.HasProposalWithin(s.clock.CurrentSlot(), 0) && s.book.ActivePages() == 0 {
				break
			}
			time.Sleep(shutdownPollInterval)
		}
	}

	log.Info("waiting for in-flight duties to finish")
	if !s.book.WaitUntilIdle(drainBudget) {
		log.Warnf("%d duty routines still running after %s, exiting anyway",
			s.book.ActivePages(), drainBudget)
	}

	s.stop = true
	s.cancel()
	<-s.routineClosed
}
