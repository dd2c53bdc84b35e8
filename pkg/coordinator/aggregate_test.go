package coordinator

import (
	"testing"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/prysmaticlabs/go-bitfield"
)

func aggregateWithBits(set int, total uint64) *phase0.Attestation {
	bits := bitfield.NewBitlist(total)
	for i := 0; i < set; i++ {
		bits.SetBitAt(uint64(i), true)
	}
	return &phase0.Attestation{
		AggregationBits: bits,
	}
}

func TestBestAggregateByPopcount(t *testing.T) {
	// BN1 has 10 attesters, BN2 12, BN3 11 => BN2's aggregate wins
	bn2 := aggregateWithBits(12, 64)
	candidates := []*phase0.Attestation{
		aggregateWithBits(10, 64),
		bn2,
		aggregateWithBits(11, 64),
	}

	best := bestAggregate(candidates)
	if best != bn2 {
		t.Fatalf("expected the 12-bit aggregate, got %d bits", best.AggregationBits.Count())
	}
}

func TestBestAggregateTieKeepsFirstArrival(t *testing.T) {
	first := aggregateWithBits(12, 64)
	candidates := []*phase0.Attestation{
		first,
		aggregateWithBits(12, 64),
	}

	if best := bestAggregate(candidates); best != first {
		t.Errorf("tie not broken by first arrival")
	}
}

func TestBestAggregateSkipsNilCandidates(t *testing.T) {
	only := aggregateWithBits(3, 64)
	candidates := []*phase0.Attestation{nil, only, nil}
	if best := bestAggregate(candidates); best != only {
		t.Errorf("nil candidates were not skipped")
	}
}

func TestBestAggregateEmpty(t *testing.T) {
	if best := bestAggregate(nil); best != nil {
		t.Errorf("expected nil for no candidates")
	}
}
