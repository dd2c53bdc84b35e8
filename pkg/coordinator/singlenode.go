package coordinator

import (
	"context"

	"github.com/attestantio/go-eth2-client/api"
	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/altair"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"

	"github.com/serenita-org/vero/pkg/clientapi"
)

// failover runs a read against the highest-scoring node first and walks down
// the score order until one succeeds. Duty fetches and similar reads do not
// need a quorum; any honest node's answer is acceptable.
func failover[T any](ctx context.Context, c *MultiBeaconNode, what string, call func(context.Context, *clientapi.BeaconNode) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for _, node := range c.nodesByScore() {
		result, err := call(ctx, node)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Warnf("%s failed on %s, trying next node: %s", what, node.Name, err)
	}
	return zero, errors.Wrapf(lastErr, "%s failed on all beacon nodes", what)
}

func (c *MultiBeaconNode) AttesterDuties(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) ([]*apiv1.AttesterDuty, error) {
	return failover(ctx, c, "attester duties", func(ctx context.Context, node *clientapi.BeaconNode) ([]*apiv1.AttesterDuty, error) {
		return node.AttesterDuties(ctx, epoch, indices)
	})
}

func (c *MultiBeaconNode) ProposerDuties(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) ([]*apiv1.ProposerDuty, error) {
	return failover(ctx, c, "proposer duties", func(ctx context.Context, node *clientapi.BeaconNode) ([]*apiv1.ProposerDuty, error) {
		return node.ProposerDuties(ctx, epoch, indices)
	})
}

func (c *MultiBeaconNode) SyncCommitteeDuties(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) ([]*apiv1.SyncCommitteeDuty, error) {
	return failover(ctx, c, "sync committee duties", func(ctx context.Context, node *clientapi.BeaconNode) ([]*apiv1.SyncCommitteeDuty, error) {
		return node.SyncCommitteeDuties(ctx, epoch, indices)
	})
}

func (c *MultiBeaconNode) Validators(ctx context.Context, pubkeys []phase0.BLSPubKey) (map[phase0.ValidatorIndex]*apiv1.Validator, error) {
	return failover(ctx, c, "validators", func(ctx context.Context, node *clientapi.BeaconNode) (map[phase0.ValidatorIndex]*apiv1.Validator, error) {
		return node.Validators(ctx, pubkeys)
	})
}

func (c *MultiBeaconNode) ValidatorLiveness(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) ([]*apiv1.ValidatorLiveness, error) {
	return failover(ctx, c, "validator liveness", func(ctx context.Context, node *clientapi.BeaconNode) ([]*apiv1.ValidatorLiveness, error) {
		return node.ValidatorLiveness(ctx, epoch, indices)
	})
}

func (c *MultiBeaconNode) SyncCommitteeContribution(ctx context.Context, slot phase0.Slot, subcommitteeIndex uint64, root phase0.Root) (*altair.SyncCommitteeContribution, error) {
	return failover(ctx, c, "sync committee contribution", func(ctx context.Context, node *clientapi.BeaconNode) (*altair.SyncCommitteeContribution, error) {
		return node.SyncCommitteeContribution(ctx, slot, subcommitteeIndex, root)
	})
}

// SubmitValidatorRegistrations publishes through the best node only; the
// builder network dedupes registrations on its own.
func (c *MultiBeaconNode) SubmitValidatorRegistrations(ctx context.Context, registrations []*api.VersionedSignedValidatorRegistration) error {
	_, err := failover(ctx, c, "validator registrations", func(ctx context.Context, node *clientapi.BeaconNode) (struct{}, error) {
		return struct{}{}, node.SubmitValidatorRegistrations(ctx, registrations)
	})
	return err
}

func (c *MultiBeaconNode) Genesis(ctx context.Context) (*apiv1.Genesis, error) {
	return failover(ctx, c, "genesis", func(ctx context.Context, node *clientapi.BeaconNode) (*apiv1.Genesis, error) {
		return node.Genesis(ctx)
	})
}
