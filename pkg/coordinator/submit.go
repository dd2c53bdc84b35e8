package coordinator

import (
	"context"
	"sync"

	"github.com/attestantio/go-eth2-client/api"
	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/altair"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"

	"github.com/serenita-org/vero/pkg/clientapi"
)

// broadcast sends one signed message to every healthy node. It waits for
// every node to answer and succeeds when at least one of them accepted.
func (c *MultiBeaconNode) broadcast(ctx context.Context, what string, send func(context.Context, *clientapi.BeaconNode) error) error {
	nodes := c.healthyNodes()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var accepted int
	var firstErr error

	for _, node := range nodes {
		wg.Add(1)
		go func(node *clientapi.BeaconNode) {
			defer wg.Done()
			err := send(ctx, node)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				log.Debugf("%s rejected by %s: %s", what, node.Name, err)
				return
			}
			accepted++
		}(node)
	}
	wg.Wait()

	if accepted == 0 {
		return errors.Wrapf(firstErr, "no beacon node accepted %s", what)
	}
	return nil
}

func (c *MultiBeaconNode) SubmitAttestations(ctx context.Context, attestations []*phase0.Attestation) error {
	return c.broadcast(ctx, "attestations", func(ctx context.Context, node *clientapi.BeaconNode) error {
		return node.SubmitAttestations(ctx, attestations)
	})
}

func (c *MultiBeaconNode) SubmitAggregateAndProofs(ctx context.Context, aggregates []*phase0.SignedAggregateAndProof) error {
	return c.broadcast(ctx, "aggregates", func(ctx context.Context, node *clientapi.BeaconNode) error {
		return node.SubmitAggregateAndProofs(ctx, aggregates)
	})
}

func (c *MultiBeaconNode) SubmitProposal(ctx context.Context, proposal *api.VersionedSignedProposal) error {
	return c.broadcast(ctx, "proposal", func(ctx context.Context, node *clientapi.BeaconNode) error {
		return node.SubmitProposal(ctx, proposal)
	})
}

func (c *MultiBeaconNode) SubmitSyncCommitteeMessages(ctx context.Context, messages []*altair.SyncCommitteeMessage) error {
	return c.broadcast(ctx, "sync committee messages", func(ctx context.Context, node *clientapi.BeaconNode) error {
		return node.SubmitSyncCommitteeMessages(ctx, messages)
	})
}

func (c *MultiBeaconNode) SubmitContributions(ctx context.Context, contributions []*altair.SignedContributionAndProof) error {
	return c.broadcast(ctx, "contributions", func(ctx context.Context, node *clientapi.BeaconNode) error {
		return node.SubmitSyncCommitteeContributions(ctx, contributions)
	})
}

// SubmitProposalPreparations tells every node which fee recipient to build
// with for each managed proposer.
func (c *MultiBeaconNode) SubmitProposalPreparations(ctx context.Context, preparations []*apiv1.ProposalPreparation) error {
	return c.broadcast(ctx, "proposal preparations", func(ctx context.Context, node *clientapi.BeaconNode) error {
		return node.SubmitProposalPreparations(ctx, preparations)
	})
}

func (c *MultiBeaconNode) SubmitVoluntaryExit(ctx context.Context, exit *phase0.SignedVoluntaryExit) error {
	return c.broadcast(ctx, "voluntary exit", func(ctx context.Context, node *clientapi.BeaconNode) error {
		return node.SubmitVoluntaryExit(ctx, exit)
	})
}
