package events

import (
	"github.com/attestantio/go-eth2-client/spec/phase0"
)

// slashingIntersection returns the validator indices attested by both sides
// of an attester slashing: those are the offenders.
func slashingIntersection(set1 []uint64, set2 []uint64) []phase0.ValidatorIndex {
	res := make([]phase0.ValidatorIndex, 0)
	for _, item1 := range set1 {
		for _, item2 := range set2 {
			if item1 == item2 {
				res = append(res, phase0.ValidatorIndex(item1))
			}
		}
	}
	return res
}

// attesterSlashingOffenders extracts the offender set from an attester
// slashing object.
func attesterSlashingOffenders(slashing *phase0.AttesterSlashing) []phase0.ValidatorIndex {
	if slashing == nil || slashing.Attestation1 == nil || slashing.Attestation2 == nil {
		return nil
	}
	return slashingIntersection(slashing.Attestation1.AttestingIndices, slashing.Attestation2.AttestingIndices)
}

// handleAttesterSlashing latches if any offender is a managed validator.
func (p *Pipeline) handleAttesterSlashing(node string, slashing *phase0.AttesterSlashing) {
	root, err := slashing.HashTreeRoot()
	if err != nil {
		log.Errorf("unable to hash attester slashing from %s: %s", node, err)
		return
	}
	if !p.dedupSlashing.SetIfAbsent(root, struct{}{}) {
		return
	}

	offenders := attesterSlashingOffenders(slashing)
	log.Warnf("attester slashing observed via %s, %d offenders", node, len(offenders))
	for _, offender := range offenders {
		if p.registry.HasIndex(offender) {
			p.latch.Set("attester slashing names managed validator")
			return
		}
	}
}

// handleProposerSlashing latches if the slashed proposer is managed.
func (p *Pipeline) handleProposerSlashing(node string, slashing *phase0.ProposerSlashing) {
	if slashing == nil || slashing.SignedHeader1 == nil || slashing.SignedHeader1.Message == nil {
		return
	}
	root, err := slashing.HashTreeRoot()
	if err != nil {
		log.Errorf("unable to hash proposer slashing from %s: %s", node, err)
		return
	}
	if !p.dedupSlashing.SetIfAbsent(root, struct{}{}) {
		return
	}

	offender := slashing.SignedHeader1.Message.ProposerIndex
	log.Warnf("proposer slashing of validator %d observed via %s", offender, node)
	if p.registry.HasIndex(offender) {
		p.latch.Set("proposer slashing names managed validator")
	}
}
