package signer

import (
	"context"
	"strconv"

	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/altair"
	"github.com/attestantio/go-eth2-client/spec/phase0"
)

// SignRequestType discriminates the Web3Signer request payload.
type SignRequestType string

const (
	TypeBlockV2                  SignRequestType = "BLOCK_V2"
	TypeAttestation              SignRequestType = "ATTESTATION"
	TypeAggregateAndProof        SignRequestType = "AGGREGATE_AND_PROOF"
	TypeAggregationSlot          SignRequestType = "AGGREGATION_SLOT"
	TypeRandaoReveal             SignRequestType = "RANDAO_REVEAL"
	TypeSyncCommitteeMessage     SignRequestType = "SYNC_COMMITTEE_MESSAGE"
	TypeSyncSelectionProof       SignRequestType = "SYNC_COMMITTEE_SELECTION_PROOF"
	TypeSyncContributionAndProof SignRequestType = "SYNC_COMMITTEE_CONTRIBUTION_AND_PROOF"
	TypeValidatorRegistration    SignRequestType = "VALIDATOR_REGISTRATION"
	TypeVoluntaryExit            SignRequestType = "VOLUNTARY_EXIT"
)

type forkInfo struct {
	Fork                  *phase0.Fork `json:"fork"`
	GenesisValidatorsRoot string       `json:"genesis_validators_root"`
}

func (s *RemoteSigner) forkInfoAt(epoch phase0.Epoch) *forkInfo {
	return &forkInfo{
		Fork:                  s.spec.ForkAt(epoch),
		GenesisValidatorsRoot: s.spec.GenesisValidatorsRoot.String(),
	}
}

type attestationRequest struct {
	Type        SignRequestType         `json:"type"`
	ForkInfo    *forkInfo               `json:"fork_info"`
	Attestation *phase0.AttestationData `json:"attestation"`
}

func (s *RemoteSigner) SignAttestation(ctx context.Context, pubkey phase0.BLSPubKey, data *phase0.AttestationData) (phase0.BLSSignature, error) {
	return s.sign(ctx, pubkey, TypeAttestation, &attestationRequest{
		Type:        TypeAttestation,
		ForkInfo:    s.forkInfoAt(data.Target.Epoch),
		Attestation: data,
	})
}

type beaconBlockHeaderWrapper struct {
	Version     string                    `json:"version"`
	BlockHeader *phase0.BeaconBlockHeader `json:"block_header"`
}

type blockV2Request struct {
	Type        SignRequestType           `json:"type"`
	ForkInfo    *forkInfo                 `json:"fork_info"`
	BeaconBlock *beaconBlockHeaderWrapper `json:"beacon_block"`
}

// SignBlockHeader signs a proposal by its block header (BLOCK_V2). The
// version string is the fork name in upper case, e.g. "DENEB".
func (s *RemoteSigner) SignBlockHeader(ctx context.Context, pubkey phase0.BLSPubKey, version string, header *phase0.BeaconBlockHeader) (phase0.BLSSignature, error) {
	return s.sign(ctx, pubkey, TypeBlockV2, &blockV2Request{
		Type:     TypeBlockV2,
		ForkInfo: s.forkInfoAt(s.spec.EpochAt(header.Slot)),
		BeaconBlock: &beaconBlockHeaderWrapper{
			Version:     version,
			BlockHeader: header,
		},
	})
}

type aggregateAndProofRequest struct {
	Type              SignRequestType           `json:"type"`
	ForkInfo          *forkInfo                 `json:"fork_info"`
	AggregateAndProof *phase0.AggregateAndProof `json:"aggregate_and_proof"`
}

func (s *RemoteSigner) SignAggregateAndProof(ctx context.Context, pubkey phase0.BLSPubKey, aggregate *phase0.AggregateAndProof) (phase0.BLSSignature, error) {
	return s.sign(ctx, pubkey, TypeAggregateAndProof, &aggregateAndProofRequest{
		Type:              TypeAggregateAndProof,
		ForkInfo:          s.forkInfoAt(s.spec.EpochAt(aggregate.Aggregate.Data.Slot)),
		AggregateAndProof: aggregate,
	})
}

type aggregationSlot struct {
	Slot string `json:"slot"`
}

type aggregationSlotRequest struct {
	Type            SignRequestType  `json:"type"`
	ForkInfo        *forkInfo        `json:"fork_info"`
	AggregationSlot *aggregationSlot `json:"aggregation_slot"`
}

// SignAggregationSlot produces the selection proof deciding aggregator duty.
func (s *RemoteSigner) SignAggregationSlot(ctx context.Context, pubkey phase0.BLSPubKey, slot phase0.Slot) (phase0.BLSSignature, error) {
	return s.sign(ctx, pubkey, TypeAggregationSlot, &aggregationSlotRequest{
		Type:     TypeAggregationSlot,
		ForkInfo: s.forkInfoAt(s.spec.EpochAt(slot)),
		AggregationSlot: &aggregationSlot{
			Slot: strconv.FormatUint(uint64(slot), 10),
		},
	})
}

type randaoReveal struct {
	Epoch string `json:"epoch"`
}

type randaoRevealRequest struct {
	Type         SignRequestType `json:"type"`
	ForkInfo     *forkInfo       `json:"fork_info"`
	RandaoReveal *randaoReveal   `json:"randao_reveal"`
}

func (s *RemoteSigner) SignRandaoReveal(ctx context.Context, pubkey phase0.BLSPubKey, epoch phase0.Epoch) (phase0.BLSSignature, error) {
	return s.sign(ctx, pubkey, TypeRandaoReveal, &randaoRevealRequest{
		Type:     TypeRandaoReveal,
		ForkInfo: s.forkInfoAt(epoch),
		RandaoReveal: &randaoReveal{
			Epoch: strconv.FormatUint(uint64(epoch), 10),
		},
	})
}

type syncCommitteeMessage struct {
	BeaconBlockRoot string `json:"beacon_block_root"`
	Slot            string `json:"slot"`
}

type syncCommitteeMessageRequest struct {
	Type                 SignRequestType       `json:"type"`
	ForkInfo             *forkInfo             `json:"fork_info"`
	SyncCommitteeMessage *syncCommitteeMessage `json:"sync_committee_message"`
}

func (s *RemoteSigner) SignSyncCommitteeMessage(ctx context.Context, pubkey phase0.BLSPubKey, slot phase0.Slot, root phase0.Root) (phase0.BLSSignature, error) {
	return s.sign(ctx, pubkey, TypeSyncCommitteeMessage, &syncCommitteeMessageRequest{
		Type:     TypeSyncCommitteeMessage,
		ForkInfo: s.forkInfoAt(s.spec.EpochAt(slot)),
		SyncCommitteeMessage: &syncCommitteeMessage{
			BeaconBlockRoot: root.String(),
			Slot:            strconv.FormatUint(uint64(slot), 10),
		},
	})
}

type syncAggregatorSelectionData struct {
	Slot              string `json:"slot"`
	SubcommitteeIndex string `json:"subcommittee_index"`
}

type syncSelectionProofRequest struct {
	Type          SignRequestType              `json:"type"`
	ForkInfo      *forkInfo                    `json:"fork_info"`
	SelectionData *syncAggregatorSelectionData `json:"sync_aggregator_selection_data"`
}

func (s *RemoteSigner) SignSyncSelectionData(ctx context.Context, pubkey phase0.BLSPubKey, slot phase0.Slot, subcommitteeIndex uint64) (phase0.BLSSignature, error) {
	return s.sign(ctx, pubkey, TypeSyncSelectionProof, &syncSelectionProofRequest{
		Type:     TypeSyncSelectionProof,
		ForkInfo: s.forkInfoAt(s.spec.EpochAt(slot)),
		SelectionData: &syncAggregatorSelectionData{
			Slot:              strconv.FormatUint(uint64(slot), 10),
			SubcommitteeIndex: strconv.FormatUint(subcommitteeIndex, 10),
		},
	})
}

type contributionAndProofRequest struct {
	Type                 SignRequestType              `json:"type"`
	ForkInfo             *forkInfo                    `json:"fork_info"`
	ContributionAndProof *altair.ContributionAndProof `json:"contribution_and_proof"`
}

func (s *RemoteSigner) SignContributionAndProof(ctx context.Context, pubkey phase0.BLSPubKey, contribution *altair.ContributionAndProof) (phase0.BLSSignature, error) {
	return s.sign(ctx, pubkey, TypeSyncContributionAndProof, &contributionAndProofRequest{
		Type:                 TypeSyncContributionAndProof,
		ForkInfo:             s.forkInfoAt(s.spec.EpochAt(contribution.Contribution.Slot)),
		ContributionAndProof: contribution,
	})
}

type validatorRegistrationRequest struct {
	Type                  SignRequestType              `json:"type"`
	ValidatorRegistration *apiv1.ValidatorRegistration `json:"validator_registration"`
}

// SignValidatorRegistration carries no fork info; the registration domain is
// fork-independent.
func (s *RemoteSigner) SignValidatorRegistration(ctx context.Context, pubkey phase0.BLSPubKey, registration *apiv1.ValidatorRegistration) (phase0.BLSSignature, error) {
	return s.sign(ctx, pubkey, TypeValidatorRegistration, &validatorRegistrationRequest{
		Type:                  TypeValidatorRegistration,
		ValidatorRegistration: registration,
	})
}

type voluntaryExitRequest struct {
	Type          SignRequestType       `json:"type"`
	ForkInfo      *forkInfo             `json:"fork_info"`
	VoluntaryExit *phase0.VoluntaryExit `json:"voluntary_exit"`
}

func (s *RemoteSigner) SignVoluntaryExit(ctx context.Context, pubkey phase0.BLSPubKey, exit *phase0.VoluntaryExit) (phase0.BLSSignature, error) {
	return s.sign(ctx, pubkey, TypeVoluntaryExit, &voluntaryExitRequest{
		Type:          TypeVoluntaryExit,
		ForkInfo:      s.forkInfoAt(exit.Epoch),
		VoluntaryExit: exit,
	})
}
