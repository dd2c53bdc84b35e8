package scheduler

import (
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/prysmaticlabs/go-bitfield"
)

// attest waits for the slot's head event (or the 1/3 deadline) and then
// runs the attestation duty: quorum on AttestationData, one signature per
// managed duty, one batched submission.
func (s *Scheduler) attest(slot phase0.Slot, state *slotState) {
	dutiesAt := s.duties.AttesterDutiesAt(slot)
	if len(dutiesAt) == 0 {
		return
	}

	// fire early on the head event, at the 1/3 mark otherwise
	deadline := time.NewTimer(time.Until(s.spec.SlotDeadline(slot, 1, 3)))
	defer deadline.Stop()
	select {
	case <-state.headSeen:
	case <-deadline.C:
	case <-s.ctx.Done():
		return
	}

	if s.latch.Detected() {
		log.Warnf("slashing latch set, skipping attestation for slot %d", slot)
		return
	}

	ctx, cancel := s.clock.DeadlineContext(s.ctx, slot, 2, 3)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "scheduler.attest")
	defer span.End()

	start := time.Now()
	data, err := s.pool.AttestationData(ctx, slot, 0, state.head())
	if err != nil {
		log.Errorf("attestation for slot %d abandoned: %s", slot, err)
		return
	}
	state.setAttData(data)

	// the latch may have been set while the quorum formed
	if s.latch.Detected() {
		log.Warnf("slashing latch set after consensus, dropping attestation for slot %d", slot)
		return
	}

	attestations := make([]*phase0.Attestation, 0, len(dutiesAt))
	for _, duty := range dutiesAt {
		if !s.guard.markOnce(duty.Duty.ValidatorIndex, slot, RoleAttester) {
			continue
		}

		dutyData := *data
		dutyData.Index = duty.Duty.CommitteeIndex
		signature, err := s.signer.SignAttestation(ctx, duty.Duty.PubKey, &dutyData)
		if err != nil {
			log.Errorf("attestation signing for validator %d failed: %s", duty.Duty.ValidatorIndex, err)
			continue
		}

		bits := bitfield.NewBitlist(duty.Duty.CommitteeLength)
		bits.SetBitAt(duty.Duty.ValidatorCommitteeIndex, true)
		attestations = append(attestations, &phase0.Attestation{
			AggregationBits: bits,
			Data:            &dutyData,
			Signature:       signature,
		})
	}

	if len(attestations) == 0 {
		return
	}
	if err := s.pool.SubmitAttestations(ctx, attestations); err != nil {
		log.Errorf("attestation submission for slot %d failed: %s", slot, err)
		return
	}
	DutySubmissionTime.WithLabelValues("attestation").Observe(time.Since(start).Seconds())
	log.Infof("published %d attestations for slot %d", len(attestations), slot)
}
