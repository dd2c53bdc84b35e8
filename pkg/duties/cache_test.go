package duties

import (
	"context"
	"testing"

	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/phase0"

	localspec "github.com/serenita-org/vero/pkg/spec"
)

type fakeProvider struct {
	attester []*apiv1.AttesterDuty
	proposer []*apiv1.ProposerDuty
	sync     []*apiv1.SyncCommitteeDuty
	calls    int
}

func (f *fakeProvider) AttesterDuties(_ context.Context, _ phase0.Epoch, _ []phase0.ValidatorIndex) ([]*apiv1.AttesterDuty, error) {
	f.calls++
	return f.attester, nil
}

func (f *fakeProvider) ProposerDuties(_ context.Context, _ phase0.Epoch, _ []phase0.ValidatorIndex) ([]*apiv1.ProposerDuty, error) {
	return f.proposer, nil
}

func (f *fakeProvider) SyncCommitteeDuties(_ context.Context, _ phase0.Epoch, _ []phase0.ValidatorIndex) ([]*apiv1.SyncCommitteeDuty, error) {
	return f.sync, nil
}

type fakeSigner struct {
	proof phase0.BLSSignature
}

func (f *fakeSigner) SignAggregationSlot(_ context.Context, _ phase0.BLSPubKey, _ phase0.Slot) (phase0.BLSSignature, error) {
	return f.proof, nil
}

func (f *fakeSigner) SignSyncSelectionData(_ context.Context, _ phase0.BLSPubKey, _ phase0.Slot, _ uint64) (phase0.BLSSignature, error) {
	return f.proof, nil
}

func testCache(t *testing.T, provider *fakeProvider) *Cache {
	t.Helper()
	netSpec, err := localspec.ForNetwork("mainnet")
	if err != nil {
		t.Fatalf("ForNetwork: %s", err)
	}
	return NewCache(netSpec, provider, &fakeSigner{proof: sig(0x07)})
}

func TestAttesterDutiesBySlot(t *testing.T) {
	provider := &fakeProvider{
		attester: []*apiv1.AttesterDuty{
			{ValidatorIndex: 1, Slot: 100, CommitteeIndex: 2, CommitteeLength: 128},
			{ValidatorIndex: 2, Slot: 101, CommitteeIndex: 0, CommitteeLength: 128},
		},
	}
	c := testCache(t, provider)

	// epoch of slot 100 on mainnet is 3
	if err := c.RefreshAttesterDuties(context.Background(), 3, []phase0.ValidatorIndex{1, 2}); err != nil {
		t.Fatalf("RefreshAttesterDuties: %s", err)
	}

	at100 := c.AttesterDutiesAt(100)
	if len(at100) != 1 || at100[0].Duty.ValidatorIndex != 1 {
		t.Fatalf("expected duty of validator 1 at slot 100, got %+v", at100)
	}
	if len(c.AttesterDutiesAt(102)) != 0 {
		t.Errorf("unexpected duty at slot 102")
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	provider := &fakeProvider{
		attester: []*apiv1.AttesterDuty{
			{ValidatorIndex: 1, Slot: 100, CommitteeLength: 128},
		},
	}
	c := testCache(t, provider)

	ctx := context.Background()
	if err := c.RefreshAttesterDuties(ctx, 3, []phase0.ValidatorIndex{1}); err != nil {
		t.Fatalf("first refresh: %s", err)
	}
	first := c.AttesterDutiesAt(100)
	if err := c.RefreshAttesterDuties(ctx, 3, []phase0.ValidatorIndex{1}); err != nil {
		t.Fatalf("second refresh: %s", err)
	}
	second := c.AttesterDutiesAt(100)

	if len(first) != len(second) {
		t.Fatalf("refresh changed duty count: %d vs %d", len(first), len(second))
	}
	if first[0].IsAggregator != second[0].IsAggregator || first[0].SelectionProof != second[0].SelectionProof {
		t.Errorf("refresh changed the derived aggregator role")
	}
}

func TestHasProposalWithin(t *testing.T) {
	provider := &fakeProvider{
		proposer: []*apiv1.ProposerDuty{
			{ValidatorIndex: 5, Slot: 105},
		},
	}
	c := testCache(t, provider)
	if err := c.RefreshProposerDuties(context.Background(), 3, []phase0.ValidatorIndex{5}); err != nil {
		t.Fatalf("RefreshProposerDuties: %s", err)
	}

	if !c.HasProposalWithin(103, 3) {
		t.Errorf("proposal at slot 105 not visible from slot 103 with horizon 3")
	}
	if c.HasProposalWithin(101, 3) {
		t.Errorf("proposal at slot 105 wrongly visible from slot 101 with horizon 3")
	}
	if c.HasProposalWithin(106, 3) {
		t.Errorf("past proposal visible from slot 106")
	}
}

func TestSyncDutySubcommittees(t *testing.T) {
	provider := &fakeProvider{
		sync: []*apiv1.SyncCommitteeDuty{
			{
				ValidatorIndex:                9,
				ValidatorSyncCommitteeIndices: []phase0.CommitteeIndex{5, 10, 130},
			},
		},
	}
	c := testCache(t, provider)
	if err := c.RefreshSyncDuties(context.Background(), 0, []phase0.ValidatorIndex{9}); err != nil {
		t.Fatalf("RefreshSyncDuties: %s", err)
	}

	duties := c.SyncDutiesAt(10)
	if len(duties) != 1 {
		t.Fatalf("expected 1 sync duty, got %d", len(duties))
	}
	// positions 5 and 10 are both subnet 0, position 130 is subnet 1
	if len(duties[0].SubcommitteeIndices) != 2 {
		t.Errorf("expected deduplicated subnets [0 1], got %v", duties[0].SubcommitteeIndices)
	}
}

func TestPruneBefore(t *testing.T) {
	provider := &fakeProvider{
		attester: []*apiv1.AttesterDuty{{ValidatorIndex: 1, Slot: 100, CommitteeLength: 128}},
	}
	c := testCache(t, provider)
	ctx := context.Background()
	_ = c.RefreshAttesterDuties(ctx, 3, []phase0.ValidatorIndex{1})

	c.PruneBefore(4)
	if len(c.AttesterDutiesAt(100)) != 0 {
		t.Errorf("duties for epoch 3 survived pruning before epoch 4")
	}
}
