package coordinator

import (
	"testing"

	"github.com/attestantio/go-eth2-client/spec/phase0"
)

func root(b byte) phase0.Root {
	var r phase0.Root
	r[0] = b
	return r
}

func attData(head byte, sourceEpoch, targetEpoch phase0.Epoch) *phase0.AttestationData {
	return &phase0.AttestationData{
		Slot:            100,
		BeaconBlockRoot: root(head),
		Source:          &phase0.Checkpoint{Epoch: sourceEpoch, Root: root(0x51)},
		Target:          &phase0.Checkpoint{Epoch: targetEpoch, Root: root(0x52)},
	}
}

func TestQuorumWithMatchingHead(t *testing.T) {
	// 3 nodes, head event seen for slot 100 with block root 0xAB; all three
	// agree on checkpoints
	pinned := root(0xAB)
	votes := newAttDataVotes(2, &pinned)

	if winner := votes.add(attData(0xAB, 63, 3)); winner != nil {
		t.Fatalf("quorum reached after a single response")
	}
	winner := votes.add(attData(0xAB, 63, 3))
	if winner == nil {
		t.Fatalf("quorum not reached with 2/3 matching responses")
	}
	if winner.BeaconBlockRoot != pinned {
		t.Errorf("winner head %#x, expected %#x", winner.BeaconBlockRoot, pinned)
	}
}

func TestPinnedHeadRejectsOtherHeads(t *testing.T) {
	pinned := root(0xAB)
	votes := newAttDataVotes(2, &pinned)

	// responses for a different head never count towards the quorum
	if winner := votes.add(attData(0xCD, 63, 3)); winner != nil {
		t.Fatalf("vote for foreign head counted")
	}
	if winner := votes.add(attData(0xCD, 63, 3)); winner != nil {
		t.Fatalf("votes for foreign head reached quorum")
	}
	if winner := votes.add(attData(0xAB, 63, 3)); winner != nil {
		t.Fatalf("single pinned-head vote should not reach threshold 2")
	}
}

func TestDivergentHeadMajorityWins(t *testing.T) {
	// no head event: BN1 head=0xCD, BN2 head=0xEF, BN3 head=0xEF
	votes := newAttDataVotes(2, nil)

	if winner := votes.add(attData(0xCD, 63, 3)); winner != nil {
		t.Fatalf("premature quorum")
	}
	if winner := votes.add(attData(0xEF, 63, 3)); winner != nil {
		t.Fatalf("premature quorum")
	}
	winner := votes.add(attData(0xEF, 63, 3))
	if winner == nil {
		t.Fatalf("majority head did not win")
	}
	if winner.BeaconBlockRoot != root(0xEF) {
		t.Errorf("winner head %#x, expected 0xEF", winner.BeaconBlockRoot)
	}
}

func TestNoQuorumOnThreeWaySplit(t *testing.T) {
	votes := newAttDataVotes(2, nil)
	for _, head := range []byte{0xAA, 0xBB, 0xCC} {
		if winner := votes.add(attData(head, 63, 3)); winner != nil {
			t.Fatalf("quorum reached on a three-way split")
		}
	}
}

func TestThresholdOneAcceptsFirstResponse(t *testing.T) {
	// operator override: threshold 1 still fans out but takes the first
	// arriving response
	votes := newAttDataVotes(1, nil)
	winner := votes.add(attData(0xCD, 63, 3))
	if winner == nil {
		t.Fatalf("threshold 1 did not accept first response")
	}
	if winner.BeaconBlockRoot != root(0xCD) {
		t.Errorf("winner is not the first response")
	}
}

func TestWinnerIsEarliestOfWinningGroup(t *testing.T) {
	votes := newAttDataVotes(2, nil)

	first := attData(0xEF, 63, 3)
	votes.add(attData(0xCD, 63, 3))
	votes.add(first)
	winner := votes.add(attData(0xEF, 63, 3))
	if winner != first {
		t.Errorf("winner is not the earliest response of the winning group")
	}
}

func TestVoteKeySeparatesCheckpoints(t *testing.T) {
	a := attData(0xAB, 63, 3)
	b := attData(0xAB, 62, 3)
	if voteKey(a, true) == voteKey(b, true) {
		t.Errorf("differing source checkpoints produced equal vote keys")
	}
	if voteKey(a, false) == voteKey(b, false) {
		t.Errorf("differing source checkpoints produced equal headless keys")
	}
	if voteKey(a, true) != voteKey(attData(0xAB, 63, 3), true) {
		t.Errorf("equal data produced differing vote keys")
	}
}
