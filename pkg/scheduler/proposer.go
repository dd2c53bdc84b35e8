package scheduler

import (
	"strings"
	"time"

	"github.com/attestantio/go-eth2-client/api"
	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	apiv1bellatrix "github.com/attestantio/go-eth2-client/api/v1/bellatrix"
	apiv1capella "github.com/attestantio/go-eth2-client/api/v1/capella"
	apiv1deneb "github.com/attestantio/go-eth2-client/api/v1/deneb"
	"github.com/attestantio/go-eth2-client/spec/altair"
	"github.com/attestantio/go-eth2-client/spec/bellatrix"
	"github.com/attestantio/go-eth2-client/spec/capella"
	"github.com/attestantio/go-eth2-client/spec/deneb"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"
)

// blockHeader reduces a versioned proposal to the header the remote signer
// signs under the BLOCK_V2 domain.
func blockHeader(proposal *api.VersionedProposal) (*phase0.BeaconBlockHeader, error) {
	header := &phase0.BeaconBlockHeader{}

	fill := func(slot phase0.Slot, proposerIndex phase0.ValidatorIndex, parentRoot, stateRoot phase0.Root, bodyRoot [32]byte, err error) error {
		if err != nil {
			return errors.Wrap(err, "unable to hash block body")
		}
		header.Slot = slot
		header.ProposerIndex = proposerIndex
		header.ParentRoot = parentRoot
		header.StateRoot = stateRoot
		header.BodyRoot = bodyRoot
		return nil
	}

	switch {
	case proposal.Phase0 != nil:
		b := proposal.Phase0
		root, err := b.Body.HashTreeRoot()
		return header, fill(b.Slot, b.ProposerIndex, b.ParentRoot, b.StateRoot, root, err)
	case proposal.Altair != nil:
		b := proposal.Altair
		root, err := b.Body.HashTreeRoot()
		return header, fill(b.Slot, b.ProposerIndex, b.ParentRoot, b.StateRoot, root, err)
	case proposal.Bellatrix != nil:
		b := proposal.Bellatrix
		root, err := b.Body.HashTreeRoot()
		return header, fill(b.Slot, b.ProposerIndex, b.ParentRoot, b.StateRoot, root, err)
	case proposal.BellatrixBlinded != nil:
		b := proposal.BellatrixBlinded
		root, err := b.Body.HashTreeRoot()
		return header, fill(b.Slot, b.ProposerIndex, b.ParentRoot, b.StateRoot, root, err)
	case proposal.Capella != nil:
		b := proposal.Capella
		root, err := b.Body.HashTreeRoot()
		return header, fill(b.Slot, b.ProposerIndex, b.ParentRoot, b.StateRoot, root, err)
	case proposal.CapellaBlinded != nil:
		b := proposal.CapellaBlinded
		root, err := b.Body.HashTreeRoot()
		return header, fill(b.Slot, b.ProposerIndex, b.ParentRoot, b.StateRoot, root, err)
	case proposal.Deneb != nil:
		b := proposal.Deneb.Block
		root, err := b.Body.HashTreeRoot()
		return header, fill(b.Slot, b.ProposerIndex, b.ParentRoot, b.StateRoot, root, err)
	case proposal.DenebBlinded != nil:
		b := proposal.DenebBlinded
		root, err := b.Body.HashTreeRoot()
		return header, fill(b.Slot, b.ProposerIndex, b.ParentRoot, b.StateRoot, root, err)
	default:
		return nil, errors.New("proposal carries no block")
	}
}

// assembleSignedProposal attaches the signature in the proposal's own fork
// shape.
func assembleSignedProposal(proposal *api.VersionedProposal, signature phase0.BLSSignature) (*api.VersionedSignedProposal, error) {
	signed := &api.VersionedSignedProposal{
		Version: proposal.Version,
		Blinded: proposal.Blinded,
	}
	switch {
	case proposal.Phase0 != nil:
		signed.Phase0 = &phase0.SignedBeaconBlock{Message: proposal.Phase0, Signature: signature}
	case proposal.Altair != nil:
		signed.Altair = &altair.SignedBeaconBlock{Message: proposal.Altair, Signature: signature}
	case proposal.Bellatrix != nil:
		signed.Bellatrix = &bellatrix.SignedBeaconBlock{Message: proposal.Bellatrix, Signature: signature}
	case proposal.BellatrixBlinded != nil:
		signed.BellatrixBlinded = &apiv1bellatrix.SignedBlindedBeaconBlock{Message: proposal.BellatrixBlinded, Signature: signature}
	case proposal.Capella != nil:
		signed.Capella = &capella.SignedBeaconBlock{Message: proposal.Capella, Signature: signature}
	case proposal.CapellaBlinded != nil:
		signed.CapellaBlinded = &apiv1capella.SignedBlindedBeaconBlock{Message: proposal.CapellaBlinded, Signature: signature}
	case proposal.Deneb != nil:
		signed.Deneb = &apiv1deneb.SignedBlockContents{
			SignedBlock: &deneb.SignedBeaconBlock{
				Message:   proposal.Deneb.Block,
				Signature: signature,
			},
			KZGProofs: proposal.Deneb.KZGProofs,
			Blobs:     proposal.Deneb.Blobs,
		}
	case proposal.DenebBlinded != nil:
		signed.DenebBlinded = &apiv1deneb.SignedBlindedBeaconBlock{Message: proposal.DenebBlinded, Signature: signature}
	default:
		return nil, errors.New("proposal carries no block")
	}
	return signed, nil
}

// proposeBlock runs one proposal duty at the start of its slot.
func (s *Scheduler) proposeBlock(slot phase0.Slot, duty *apiv1.ProposerDuty) {
	if s.latch.Detected() {
		log.Warnf("slashing latch set, skipping proposal for slot %d", slot)
		return
	}
	validator, ok := s.registry.ByIndex(duty.ValidatorIndex)
	if !ok {
		log.Errorf("proposer duty for unmanaged validator %d", duty.ValidatorIndex)
		return
	}
	if !s.guard.markOnce(duty.ValidatorIndex, slot, RoleProposer) {
		return
	}

	ctx, cancel := s.clock.DeadlineContext(s.ctx, slot, 2, 3)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "scheduler.proposeBlock")
	defer span.End()

	start := time.Now()
	epoch := s.spec.EpochAt(slot)
	randao, err := s.signer.SignRandaoReveal(ctx, validator.Pubkey, epoch)
	if err != nil {
		log.Errorf("randao reveal for slot %d failed: %s", slot, err)
		return
	}

	proposal, err := s.pool.BestProposal(ctx, slot, randao, validator.Graffiti, s.opts.UseExternalBuilder, s.opts.BuilderBoostFactor)
	if err != nil {
		log.Errorf("block production for slot %d failed: %s", slot, err)
		return
	}

	if s.latch.Detected() {
		log.Warnf("slashing latch set after block production, dropping proposal for slot %d", slot)
		return
	}

	header, err := blockHeader(proposal)
	if err != nil {
		log.Errorf("unable to build block header for slot %d: %s", slot, err)
		return
	}
	signature, err := s.signer.SignBlockHeader(ctx, validator.Pubkey, strings.ToUpper(proposal.Version.String()), header)
	if err != nil {
		log.Errorf("block signing for slot %d failed: %s", slot, err)
		return
	}

	signed, err := assembleSignedProposal(proposal, signature)
	if err != nil {
		log.Errorf("unable to assemble signed proposal for slot %d: %s", slot, err)
		return
	}
	if err := s.pool.SubmitProposal(ctx, signed); err != nil {
		log.Errorf("proposal submission for slot %d failed: %s", slot, err)
		return
	}
	DutySubmissionTime.WithLabelValues("proposal").Observe(time.Since(start).Seconds())
	log.Infof("published block for slot %d (validator %d, builder=%v)", slot, duty.ValidatorIndex, proposal.Blinded)
}
