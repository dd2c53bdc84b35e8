package coordinator

import (
	"testing"

	"github.com/attestantio/go-eth2-client/api"
	"github.com/holiman/uint256"
)

func gwei(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1000000000))
}

func localBlock(value uint64) *api.VersionedProposal {
	return &api.VersionedProposal{
		ExecutionValue: gwei(value),
	}
}

func builderBlock(value uint64) *api.VersionedProposal {
	return &api.VersionedProposal{
		Blinded:        true,
		ExecutionValue: gwei(value),
	}
}

func TestBuilderBoostComparison(t *testing.T) {
	// local values 20, 21, 22 Gwei; builder block 25 Gwei at boost 90
	// => effective builder value 22.5 Gwei wins
	candidates := []*api.VersionedProposal{
		localBlock(20),
		localBlock(21),
		builderBlock(25),
		localBlock(22),
	}

	best := bestProposal(candidates, 90)
	if best == nil || !best.Blinded {
		t.Fatalf("expected the boosted builder block to win")
	}
}

func TestBuilderBoostCanDemoteBuilderBlock(t *testing.T) {
	// builder 25 Gwei at boost 80 => 20 Gwei effective, loses to local 22
	candidates := []*api.VersionedProposal{
		builderBlock(25),
		localBlock(22),
	}

	best := bestProposal(candidates, 80)
	if best == nil || best.Blinded {
		t.Fatalf("expected the local block to win over the demoted builder block")
	}
}

func TestProposalTieKeepsFirstArrival(t *testing.T) {
	first := localBlock(22)
	candidates := []*api.VersionedProposal{
		first,
		localBlock(22),
	}

	if best := bestProposal(candidates, 100); best != first {
		t.Errorf("tie not broken by first arrival")
	}
}

func TestEffectiveValue(t *testing.T) {
	tests := []struct {
		name    string
		value   uint64
		blinded bool
		boost   uint64
		want    uint64
	}{
		{
			name:  "local block unchanged",
			value: 22, blinded: false, boost: 90,
			want: 22,
		},
		{
			name:  "builder block boosted down",
			value: 25, blinded: true, boost: 90,
			want: 22, // 22.5 truncated in integer wei arithmetic below
		},
		{
			name:  "boost factor above 100 boosts up",
			value: 20, blinded: true, boost: 110,
			want: 22,
		},
		{
			name:  "zero builder value stays zero",
			value: 0, blinded: true, boost: 90,
			want: 0,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := effectiveValue(uint256.NewInt(test.value), test.blinded, test.boost)
			// values here are plain wei so 22.5 truncates to 22
			if got.Uint64() != test.want {
				t.Errorf("effectiveValue() = %d, expected %d", got.Uint64(), test.want)
			}
		})
	}
}
