package coordinator

import (
	"context"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"

	"github.com/serenita-org/vero/pkg/clientapi"
)

// bestAggregate picks the candidate whose aggregation bits cover the most
// attesters. Candidates must be in arrival order; ties keep the earliest.
func bestAggregate(candidates []*phase0.Attestation) *phase0.Attestation {
	var best *phase0.Attestation
	var bestCount uint64
	for _, candidate := range candidates {
		if candidate == nil || candidate.AggregationBits == nil {
			continue
		}
		count := candidate.AggregationBits.Count()
		if best == nil || count > bestCount {
			best = candidate
			bestCount = count
		}
	}
	return best
}

// BestAggregate collects the aggregate each beacon node has for the given
// attestation data and returns the one with the highest participation.
func (c *MultiBeaconNode) BestAggregate(ctx context.Context, slot phase0.Slot, dataRoot phase0.Root) (*phase0.Attestation, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.BestAggregate")
	defer span.End()

	nodes := c.healthyNodes()
	responses := make(chan *phase0.Attestation, len(nodes))

	for _, node := range nodes {
		go func(node *clientapi.BeaconNode) {
			aggregate, err := node.AggregateAttestation(ctx, slot, dataRoot)
			if err != nil {
				if ctx.Err() == nil {
					log.Debugf("aggregate from %s failed: %s", node.Name, err)
				}
				responses <- nil
				return
			}
			responses <- aggregate
		}(node)
	}

	candidates := make([]*phase0.Attestation, 0, len(nodes))
	pending := len(nodes)
	for pending > 0 {
		select {
		case aggregate := <-responses:
			pending--
			if aggregate != nil {
				candidates = append(candidates, aggregate)
			}
		case <-ctx.Done():
			pending = 0
		}
	}

	best := bestAggregate(candidates)
	if best == nil {
		return nil, errors.Errorf("no beacon node returned an aggregate for slot %d", slot)
	}
	return best, nil
}
