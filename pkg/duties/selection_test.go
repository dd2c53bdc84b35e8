package duties

import (
	"testing"

	"github.com/attestantio/go-eth2-client/spec/phase0"
)

func sig(b byte) phase0.BLSSignature {
	var s phase0.BLSSignature
	for i := range s {
		s[i] = b
	}
	return s
}

func TestIsAggregatorDeterministic(t *testing.T) {
	proof := sig(0x42)
	first := IsAggregator(proof, 256)
	for i := 0; i < 10; i++ {
		if IsAggregator(proof, 256) != first {
			t.Fatalf("aggregator selection is not deterministic")
		}
	}
}

func TestSmallCommitteeAlwaysAggregates(t *testing.T) {
	// committee smaller than the aggregator target => modulo 1 => everyone
	// is an aggregator
	for b := byte(0); b < 32; b++ {
		if !IsAggregator(sig(b), 10) {
			t.Fatalf("validator with committee length 10 must always aggregate")
		}
	}
}

func TestAggregatorSelectionIsSparse(t *testing.T) {
	// with a 2048-strong committee the modulo is 128; selecting most
	// signatures would indicate a broken hash reduction
	selected := 0
	for b := 0; b < 256; b++ {
		if IsAggregator(sig(byte(b)), 2048) {
			selected++
		}
	}
	if selected > 64 {
		t.Errorf("implausible aggregator count: %d of 256", selected)
	}
}

func TestSyncAggregatorModulo(t *testing.T) {
	// 512 / 4 / 16 = 8 => roughly one in eight proofs selects
	selected := 0
	for b := 0; b < 256; b++ {
		if IsSyncAggregator(512, sig(byte(b))) {
			selected++
		}
	}
	if selected == 0 || selected > 96 {
		t.Errorf("implausible sync aggregator count: %d of 256", selected)
	}
}

func TestSubcommitteeIndex(t *testing.T) {
	tests := []struct {
		position uint64
		want     uint64
	}{
		{0, 0},
		{127, 0},
		{128, 1},
		{383, 2},
		{511, 3},
	}
	for _, test := range tests {
		if got := SubcommitteeIndex(512, test.position); got != test.want {
			t.Errorf("SubcommitteeIndex(512, %d) = %d, expected %d", test.position, got, test.want)
		}
	}
}
