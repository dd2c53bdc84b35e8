package coordinator

import (
	"context"

	"github.com/attestantio/go-eth2-client/api"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/serenita-org/vero/pkg/clientapi"
)

// effectiveValue applies the builder boost factor to externally built
// (blinded) blocks so locally built blocks compete on equal footing.
func effectiveValue(value *uint256.Int, blinded bool, boostFactor uint64) *uint256.Int {
	if value == nil {
		return uint256.NewInt(0)
	}
	if !blinded {
		return value.Clone()
	}
	boosted := new(uint256.Int).Mul(value, uint256.NewInt(boostFactor))
	return boosted.Div(boosted, uint256.NewInt(100))
}

func proposalValue(proposal *api.VersionedProposal) *uint256.Int {
	if proposal == nil || proposal.ExecutionValue == nil {
		return uint256.NewInt(0)
	}
	return proposal.ExecutionValue
}

// bestProposal picks the candidate with the highest boosted value.
// Candidates must be in arrival order; ties keep the earliest.
func bestProposal(candidates []*api.VersionedProposal, boostFactor uint64) *api.VersionedProposal {
	var best *api.VersionedProposal
	var bestValue *uint256.Int
	for _, candidate := range candidates {
		if candidate == nil {
			continue
		}
		value := effectiveValue(proposalValue(candidate), candidate.Blinded, boostFactor)
		if best == nil || value.Gt(bestValue) {
			best = candidate
			bestValue = value
		}
	}
	return best
}

// BestProposal races a block production request across the proposal-allowed
// beacon nodes and returns the most valuable block. With the external
// builder disabled the boost factor is irrelevant because nodes only return
// local blocks.
func (c *MultiBeaconNode) BestProposal(ctx context.Context, slot phase0.Slot, randao phase0.BLSSignature, graffiti [32]byte, useBuilder bool, boostFactor uint64) (*api.VersionedProposal, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.BestProposal")
	defer span.End()

	nodes := make([]*clientapi.BeaconNode, 0, len(c.proposalNodes))
	for _, node := range c.proposalNodes {
		if node.Healthy() {
			nodes = append(nodes, node)
		}
	}
	if len(nodes) == 0 {
		nodes = c.proposalNodes
	}

	var builderBoost *uint64
	if useBuilder {
		builderBoost = &boostFactor
	}

	responses := make(chan *api.VersionedProposal, len(nodes))
	for _, node := range nodes {
		go func(node *clientapi.BeaconNode) {
			proposal, err := node.Proposal(ctx, slot, randao, graffiti, builderBoost)
			if err != nil {
				if ctx.Err() == nil {
					log.Warnf("proposal from %s failed: %s", node.Name, err)
				}
				responses <- nil
				return
			}
			responses <- proposal
		}(node)
	}

	candidates := make([]*api.VersionedProposal, 0, len(nodes))
	pending := len(nodes)
	for pending > 0 {
		select {
		case proposal := <-responses:
			pending--
			if proposal == nil {
				continue
			}
			if proposal.Blinded && !useBuilder {
				log.Warnf("discarding unexpected builder block for slot %d", slot)
				continue
			}
			candidates = append(candidates, proposal)
		case <-ctx.Done():
			pending = 0
		}
	}

	best := bestProposal(candidates, boostFactor)
	if best == nil {
		return nil, errors.Errorf("no beacon node produced a block for slot %d", slot)
	}
	return best, nil
}
