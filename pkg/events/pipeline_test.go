package events

import (
	"context"
	"testing"

	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/bellatrix"
	"github.com/attestantio/go-eth2-client/spec/phase0"

	"github.com/serenita-org/vero/pkg/registry"
	localspec "github.com/serenita-org/vero/pkg/spec"
)

func testPipeline(t *testing.T) (*Pipeline, *registry.Registry) {
	t.Helper()
	netSpec, err := localspec.ForNetwork("mainnet")
	if err != nil {
		t.Fatalf("ForNetwork: %s", err)
	}
	var fee bellatrix.ExecutionAddress
	var graffiti [32]byte
	reg := registry.NewRegistry(fee, graffiti, 30000000)
	latch := NewSafetyLatch(false)
	return NewPipeline(context.Background(), netSpec, nil, reg, nil, latch), reg
}

func managedValidator(reg *registry.Registry, keyByte byte, index phase0.ValidatorIndex) {
	var key phase0.BLSPubKey
	key[0] = keyByte
	reg.Add(key, false)
	reg.UpdateFromChain(map[phase0.ValidatorIndex]*apiv1.Validator{
		index: {
			Status: apiv1.ValidatorStateActiveOngoing,
			Validator: &phase0.Validator{
				PublicKey: key,
			},
		},
	})
}

func headEvent(slot phase0.Slot, block byte) *apiv1.Event {
	var root phase0.Root
	root[0] = block
	return &apiv1.Event{
		Topic: "head",
		Data:  &apiv1.HeadEvent{Slot: slot, Block: root},
	}
}

func TestHeadDeduplication(t *testing.T) {
	p, _ := testPipeline(t)

	// same (slot, block) from two nodes: first occurrence wins
	p.handleEvent("bn1", headEvent(100, 0xAB))
	p.handleEvent("bn2", headEvent(100, 0xAB))

	select {
	case head := <-p.HeadChan:
		if head.Node != "bn1" || head.Slot != 100 {
			t.Errorf("unexpected head event %+v", head)
		}
	default:
		t.Fatalf("no head event delivered")
	}
	select {
	case head := <-p.HeadChan:
		t.Fatalf("duplicate head event delivered: %+v", head)
	default:
	}

	// a different block at the same slot is a new event
	p.handleEvent("bn2", headEvent(100, 0xCD))
	select {
	case <-p.HeadChan:
	default:
		t.Fatalf("distinct head event was swallowed")
	}
}

func slashingFor(indices1, indices2 []uint64) *phase0.AttesterSlashing {
	data := &phase0.AttestationData{
		Source: &phase0.Checkpoint{},
		Target: &phase0.Checkpoint{},
	}
	return &phase0.AttesterSlashing{
		Attestation1: &phase0.IndexedAttestation{AttestingIndices: indices1, Data: data},
		Attestation2: &phase0.IndexedAttestation{AttestingIndices: indices2, Data: data},
	}
}

func TestAttesterSlashingLatchesForManagedValidator(t *testing.T) {
	p, reg := testPipeline(t)
	managedValidator(reg, 1, 42)

	p.handleEvent("bn1", &apiv1.Event{
		Topic: "attester_slashing",
		Data:  slashingFor([]uint64{41, 42}, []uint64{42, 43}),
	})

	if !p.Latch().Detected() {
		t.Fatalf("latch not set by slashing naming a managed validator")
	}
}

func TestAttesterSlashingIgnoredForForeignValidators(t *testing.T) {
	p, reg := testPipeline(t)
	managedValidator(reg, 1, 42)

	p.handleEvent("bn1", &apiv1.Event{
		Topic: "attester_slashing",
		Data:  slashingFor([]uint64{7, 8}, []uint64{8, 9}),
	})

	if p.Latch().Detected() {
		t.Fatalf("latch set by slashing of foreign validators")
	}
}

func TestProposerSlashingLatches(t *testing.T) {
	p, reg := testPipeline(t)
	managedValidator(reg, 1, 42)

	header := func() *phase0.SignedBeaconBlockHeader {
		return &phase0.SignedBeaconBlockHeader{
			Message: &phase0.BeaconBlockHeader{ProposerIndex: 42},
		}
	}
	p.handleEvent("bn1", &apiv1.Event{
		Topic: "proposer_slashing",
		Data: &phase0.ProposerSlashing{
			SignedHeader1: header(),
			SignedHeader2: header(),
		},
	})

	if !p.Latch().Detected() {
		t.Fatalf("latch not set by proposer slashing of managed validator")
	}
}

func TestLatchIsWriteOnce(t *testing.T) {
	latch := NewSafetyLatch(false)
	latch.Set("first")
	latch.Set("second")
	if !latch.Detected() {
		t.Fatalf("latch not set")
	}
}

func TestDisabledDetectionNeverLatches(t *testing.T) {
	latch := NewSafetyLatch(true)
	latch.Set("should be ignored")
	if latch.Detected() {
		t.Fatalf("disabled latch was set")
	}
}

func TestSlashingIntersection(t *testing.T) {
	offenders := slashingIntersection([]uint64{1, 2, 3}, []uint64{2, 3, 4})
	if len(offenders) != 2 || offenders[0] != 2 || offenders[1] != 3 {
		t.Errorf("expected offenders [2 3], got %v", offenders)
	}
}

func TestCrossesEpochBoundary(t *testing.T) {
	p, _ := testPipeline(t)

	tests := []struct {
		name  string
		slot  phase0.Slot
		depth uint64
		want  bool
	}{
		{
			name: "shallow reorg inside epoch",
			slot: 100, depth: 2,
			want: false,
		},
		{
			name: "reorg reaching previous epoch",
			slot: 97, depth: 3,
			want: true,
		},
		{
			name: "reorg deeper than chain start",
			slot: 5, depth: 10,
			want: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := p.CrossesEpochBoundary(ReorgEvent{Slot: test.slot, Depth: test.depth})
			if got != test.want {
				t.Errorf("CrossesEpochBoundary(slot=%d depth=%d) = %v, expected %v", test.slot, test.depth, got, test.want)
			}
		})
	}
}
