package scheduler

import (
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
)

// aggregate runs at the 2/3 mark for every duty whose selection proof won
// the aggregator lottery.
func (s *Scheduler) aggregate(slot phase0.Slot, state *slotState) {
	aggregators := make([]int, 0)
	dutiesAt := s.duties.AttesterDutiesAt(slot)
	for i, duty := range dutiesAt {
		if duty.IsAggregator {
			aggregators = append(aggregators, i)
		}
	}
	if len(aggregators) == 0 {
		return
	}

	if err := s.clock.WaitUntil(s.ctx, s.spec.SlotDeadline(slot, 2, 3)); err != nil {
		return
	}
	if s.latch.Detected() {
		log.Warnf("slashing latch set, skipping aggregation for slot %d", slot)
		return
	}

	baseData := state.attestationData()
	if baseData == nil {
		// without an attested-to data there is nothing to aggregate
		log.Warnf("no attestation data for slot %d, skipping aggregation", slot)
		return
	}

	ctx, cancel := s.clock.DeadlineContext(s.ctx, slot, 3, 3)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "scheduler.aggregate")
	defer span.End()

	start := time.Now()
	signed := make([]*phase0.SignedAggregateAndProof, 0, len(aggregators))
	for _, i := range aggregators {
		duty := dutiesAt[i]
		if !s.guard.markOnce(duty.Duty.ValidatorIndex, slot, RoleAggregator) {
			continue
		}

		dutyData := *baseData
		dutyData.Index = duty.Duty.CommitteeIndex
		dataRoot, err := dutyData.HashTreeRoot()
		if err != nil {
			log.Errorf("unable to hash attestation data for slot %d: %s", slot, err)
			continue
		}

		best, err := s.pool.BestAggregate(ctx, slot, dataRoot)
		if err != nil {
			log.Errorf("aggregate selection for validator %d failed: %s", duty.Duty.ValidatorIndex, err)
			continue
		}

		proof := &phase0.AggregateAndProof{
			AggregatorIndex: duty.Duty.ValidatorIndex,
			Aggregate:       best,
			SelectionProof:  duty.SelectionProof,
		}
		signature, err := s.signer.SignAggregateAndProof(ctx, duty.Duty.PubKey, proof)
		if err != nil {
			log.Errorf("aggregate signing for validator %d failed: %s", duty.Duty.ValidatorIndex, err)
			continue
		}
		signed = append(signed, &phase0.SignedAggregateAndProof{
			Message:   proof,
			Signature: signature,
		})
	}

	if len(signed) == 0 {
		return
	}
	if err := s.pool.SubmitAggregateAndProofs(ctx, signed); err != nil {
		log.Errorf("aggregate submission for slot %d failed: %s", slot, err)
		return
	}
	DutySubmissionTime.WithLabelValues("aggregate").Observe(time.Since(start).Seconds())
	log.Infof("published %d aggregates for slot %d", len(signed), slot)
}
