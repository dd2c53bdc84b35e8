package scheduler

import (
	"time"

	"github.com/attestantio/go-eth2-client/spec/altair"
	"github.com/attestantio/go-eth2-client/spec/phase0"

	"github.com/serenita-org/vero/pkg/duties"
)

// syncCommitteeMessages signs the head root for every sync committee member
// at the 1/3 mark.
func (s *Scheduler) syncCommitteeMessages(slot phase0.Slot, state *slotState) {
	members := s.duties.SyncDutiesAt(s.spec.EpochAt(slot))
	if len(members) == 0 {
		return
	}

	// same trigger as attestations: head event or the 1/3 deadline
	deadline := time.NewTimer(time.Until(s.spec.SlotDeadline(slot, 1, 3)))
	defer deadline.Stop()
	select {
	case <-state.headSeen:
	case <-deadline.C:
	case <-s.ctx.Done():
		return
	}

	if s.latch.Detected() {
		log.Warnf("slashing latch set, skipping sync messages for slot %d", slot)
		return
	}

	root := s.syncRoot(slot, state)
	if root == nil {
		log.Warnf("no head root known for slot %d, skipping sync messages", slot)
		return
	}

	ctx, cancel := s.clock.DeadlineContext(s.ctx, slot, 2, 3)
	defer cancel()

	start := time.Now()
	messages := make([]*altair.SyncCommitteeMessage, 0, len(members))
	for _, member := range members {
		if !s.guard.markOnce(member.ValidatorIndex, slot, RoleSync) {
			continue
		}
		signature, err := s.signer.SignSyncCommitteeMessage(ctx, member.Pubkey, slot, *root)
		if err != nil {
			log.Errorf("sync message signing for validator %d failed: %s", member.ValidatorIndex, err)
			continue
		}
		messages = append(messages, &altair.SyncCommitteeMessage{
			Slot:            slot,
			BeaconBlockRoot: *root,
			ValidatorIndex:  member.ValidatorIndex,
			Signature:       signature,
		})
	}

	if len(messages) == 0 {
		return
	}
	if err := s.pool.SubmitSyncCommitteeMessages(ctx, messages); err != nil {
		log.Errorf("sync message submission for slot %d failed: %s", slot, err)
		return
	}
	DutySubmissionTime.WithLabelValues("sync_message").Observe(time.Since(start).Seconds())
	log.Infof("published %d sync messages for slot %d", len(messages), slot)
}

// syncContributions aggregates sync subcommittee signatures at the 2/3 mark
// for members winning the contribution lottery.
func (s *Scheduler) syncContributions(slot phase0.Slot, state *slotState) {
	members := s.duties.SyncDutiesAt(s.spec.EpochAt(slot))
	if len(members) == 0 {
		return
	}

	if err := s.clock.WaitUntil(s.ctx, s.spec.SlotDeadline(slot, 2, 3)); err != nil {
		return
	}
	if s.latch.Detected() {
		log.Warnf("slashing latch set, skipping contributions for slot %d", slot)
		return
	}

	root := s.syncRoot(slot, state)
	if root == nil {
		log.Warnf("no head root known for slot %d, skipping contributions", slot)
		return
	}

	ctx, cancel := s.clock.DeadlineContext(s.ctx, slot, 3, 3)
	defer cancel()

	start := time.Now()
	signed := make([]*altair.SignedContributionAndProof, 0)
	for _, member := range members {
		for _, subcommittee := range member.SubcommitteeIndices {
			proof, err := s.signer.SignSyncSelectionData(ctx, member.Pubkey, slot, subcommittee)
			if err != nil {
				log.Errorf("sync selection proof for validator %d failed: %s", member.ValidatorIndex, err)
				continue
			}
			if !duties.IsSyncAggregator(s.spec.SyncCommitteeSize, proof) {
				continue
			}
			if !s.guard.markOnce(member.ValidatorIndex, slot, RoleSyncAggregator) {
				continue
			}

			contribution, err := s.pool.SyncCommitteeContribution(ctx, slot, subcommittee, *root)
			if err != nil {
				log.Errorf("contribution fetch for validator %d failed: %s", member.ValidatorIndex, err)
				continue
			}
			message := &altair.ContributionAndProof{
				AggregatorIndex: member.ValidatorIndex,
				Contribution:    contribution,
				SelectionProof:  proof,
			}
			signature, err := s.signer.SignContributionAndProof(ctx, member.Pubkey, message)
			if err != nil {
				log.Errorf("contribution signing for validator %d failed: %s", member.ValidatorIndex, err)
				continue
			}
			signed = append(signed, &altair.SignedContributionAndProof{
				Message:   message,
				Signature: signature,
			})
		}
	}

	if len(signed) == 0 {
		return
	}
	if err := s.pool.SubmitContributions(ctx, signed); err != nil {
		log.Errorf("contribution submission for slot %d failed: %s", slot, err)
		return
	}
	DutySubmissionTime.WithLabelValues("sync_contribution").Observe(time.Since(start).Seconds())
	log.Infof("published %d contributions for slot %d", len(signed), slot)
}

// syncRoot picks the block root to sign: the slot's head event if seen,
// the quorum attestation data's head otherwise.
func (s *Scheduler) syncRoot(slot phase0.Slot, state *slotState) *phase0.Root {
	if root := state.head(); root != nil {
		return root
	}
	if data := state.attestationData(); data != nil {
		root := data.BeaconBlockRoot
		return &root
	}
	return nil
}
