package clientapi

import (
	"context"
	"time"

	"github.com/attestantio/go-eth2-client/api"
	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/altair"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"
)

// Every operation carries the caller's deadline through ctx and feeds its
// outcome into the node score.

func (b *BeaconNode) AttestationData(ctx context.Context, slot phase0.Slot, committeeIndex phase0.CommitteeIndex) (*phase0.AttestationData, error) {
	start := time.Now()
	resp, err := b.Api.AttestationData(ctx, &api.AttestationDataOpts{
		Slot:           slot,
		CommitteeIndex: committeeIndex,
	})
	b.score.Observe(start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: attestation data", b.Name)
	}
	return resp.Data, nil
}

func (b *BeaconNode) AggregateAttestation(ctx context.Context, slot phase0.Slot, dataRoot phase0.Root) (*phase0.Attestation, error) {
	start := time.Now()
	resp, err := b.Api.AggregateAttestation(ctx, &api.AggregateAttestationOpts{
		Slot:                slot,
		AttestationDataRoot: dataRoot,
	})
	b.score.Observe(start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: aggregate attestation", b.Name)
	}
	return resp.Data, nil
}

func (b *BeaconNode) Proposal(ctx context.Context, slot phase0.Slot, randao phase0.BLSSignature, graffiti [32]byte, builderBoostFactor *uint64) (*api.VersionedProposal, error) {
	start := time.Now()
	resp, err := b.Api.Proposal(ctx, &api.ProposalOpts{
		Slot:               slot,
		RandaoReveal:       randao,
		Graffiti:           graffiti,
		BuilderBoostFactor: builderBoostFactor,
	})
	b.score.Observe(start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: proposal", b.Name)
	}
	return resp.Data, nil
}

func (b *BeaconNode) SubmitAttestations(ctx context.Context, attestations []*phase0.Attestation) error {
	start := time.Now()
	err := b.Api.SubmitAttestations(ctx, attestations)
	b.score.Observe(start, err)
	if err != nil {
		return errors.Wrapf(err, "%s: submit attestations", b.Name)
	}
	return nil
}

func (b *BeaconNode) SubmitAggregateAndProofs(ctx context.Context, aggregates []*phase0.SignedAggregateAndProof) error {
	start := time.Now()
	err := b.Api.SubmitAggregateAttestations(ctx, aggregates)
	b.score.Observe(start, err)
	if err != nil {
		return errors.Wrapf(err, "%s: submit aggregates", b.Name)
	}
	return nil
}

func (b *BeaconNode) SubmitProposal(ctx context.Context, proposal *api.VersionedSignedProposal) error {
	start := time.Now()
	err := b.Api.SubmitProposal(ctx, &api.SubmitProposalOpts{
		Proposal: proposal,
	})
	b.score.Observe(start, err)
	if err != nil {
		return errors.Wrapf(err, "%s: submit proposal", b.Name)
	}
	return nil
}

func (b *BeaconNode) SyncCommitteeContribution(ctx context.Context, slot phase0.Slot, subcommitteeIndex uint64, beaconBlockRoot phase0.Root) (*altair.SyncCommitteeContribution, error) {
	start := time.Now()
	resp, err := b.Api.SyncCommitteeContribution(ctx, &api.SyncCommitteeContributionOpts{
		Slot:              slot,
		SubcommitteeIndex: subcommitteeIndex,
		BeaconBlockRoot:   beaconBlockRoot,
	})
	b.score.Observe(start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: sync committee contribution", b.Name)
	}
	return resp.Data, nil
}

func (b *BeaconNode) SubmitSyncCommitteeMessages(ctx context.Context, messages []*altair.SyncCommitteeMessage) error {
	start := time.Now()
	err := b.Api.SubmitSyncCommitteeMessages(ctx, messages)
	b.score.Observe(start, err)
	if err != nil {
		return errors.Wrapf(err, "%s: submit sync committee messages", b.Name)
	}
	return nil
}

func (b *BeaconNode) SubmitSyncCommitteeContributions(ctx context.Context, contributions []*altair.SignedContributionAndProof) error {
	start := time.Now()
	err := b.Api.SubmitSyncCommitteeContributions(ctx, contributions)
	b.score.Observe(start, err)
	if err != nil {
		return errors.Wrapf(err, "%s: submit contributions", b.Name)
	}
	return nil
}

func (b *BeaconNode) SubmitValidatorRegistrations(ctx context.Context, registrations []*api.VersionedSignedValidatorRegistration) error {
	start := time.Now()
	err := b.Api.SubmitValidatorRegistrations(ctx, registrations)
	b.score.Observe(start, err)
	if err != nil {
		return errors.Wrapf(err, "%s: submit validator registrations", b.Name)
	}
	return nil
}

func (b *BeaconNode) SubmitProposalPreparations(ctx context.Context, preparations []*apiv1.ProposalPreparation) error {
	start := time.Now()
	err := b.Api.SubmitProposalPreparations(ctx, preparations)
	b.score.Observe(start, err)
	if err != nil {
		return errors.Wrapf(err, "%s: submit proposal preparations", b.Name)
	}
	return nil
}

func (b *BeaconNode) SubmitVoluntaryExit(ctx context.Context, exit *phase0.SignedVoluntaryExit) error {
	start := time.Now()
	err := b.Api.SubmitVoluntaryExit(ctx, exit)
	b.score.Observe(start, err)
	if err != nil {
		return errors.Wrapf(err, "%s: submit voluntary exit", b.Name)
	}
	return nil
}

func (b *BeaconNode) AttesterDuties(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) ([]*apiv1.AttesterDuty, error) {
	start := time.Now()
	resp, err := b.Api.AttesterDuties(ctx, &api.AttesterDutiesOpts{
		Epoch:   epoch,
		Indices: indices,
	})
	b.score.Observe(start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: attester duties", b.Name)
	}
	return resp.Data, nil
}

func (b *BeaconNode) ProposerDuties(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) ([]*apiv1.ProposerDuty, error) {
	start := time.Now()
	resp, err := b.Api.ProposerDuties(ctx, &api.ProposerDutiesOpts{
		Epoch:   epoch,
		Indices: indices,
	})
	b.score.Observe(start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: proposer duties", b.Name)
	}
	return resp.Data, nil
}

func (b *BeaconNode) SyncCommitteeDuties(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) ([]*apiv1.SyncCommitteeDuty, error) {
	start := time.Now()
	resp, err := b.Api.SyncCommitteeDuties(ctx, &api.SyncCommitteeDutiesOpts{
		Epoch:   epoch,
		Indices: indices,
	})
	b.score.Observe(start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: sync committee duties", b.Name)
	}
	return resp.Data, nil
}

func (b *BeaconNode) Validators(ctx context.Context, pubkeys []phase0.BLSPubKey) (map[phase0.ValidatorIndex]*apiv1.Validator, error) {
	start := time.Now()
	resp, err := b.Api.Validators(ctx, &api.ValidatorsOpts{
		State:   "head",
		PubKeys: pubkeys,
	})
	b.score.Observe(start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: validators", b.Name)
	}
	return resp.Data, nil
}

func (b *BeaconNode) ValidatorLiveness(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) ([]*apiv1.ValidatorLiveness, error) {
	start := time.Now()
	resp, err := b.Api.ValidatorLiveness(ctx, &api.ValidatorLivenessOpts{
		Epoch:   epoch,
		Indices: indices,
	})
	b.score.Observe(start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: validator liveness", b.Name)
	}
	return resp.Data, nil
}

func (b *BeaconNode) Genesis(ctx context.Context) (*apiv1.Genesis, error) {
	start := time.Now()
	resp, err := b.Api.Genesis(ctx, &api.GenesisOpts{})
	b.score.Observe(start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: genesis", b.Name)
	}
	return resp.Data, nil
}
