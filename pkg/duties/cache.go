package duties

import (
	"context"
	"sync"

	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	localspec "github.com/serenita-org/vero/pkg/spec"
)

var log = logrus.WithField(
	"module", "duties",
)

// DutyProvider is the read surface the cache needs from the coordinator.
type DutyProvider interface {
	AttesterDuties(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) ([]*apiv1.AttesterDuty, error)
	ProposerDuties(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) ([]*apiv1.ProposerDuty, error)
	SyncCommitteeDuties(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) ([]*apiv1.SyncCommitteeDuty, error)
}

// SelectionSigner is the slice of the remote signer used for selection
// proofs.
type SelectionSigner interface {
	SignAggregationSlot(ctx context.Context, pubkey phase0.BLSPubKey, slot phase0.Slot) (phase0.BLSSignature, error)
	SignSyncSelectionData(ctx context.Context, pubkey phase0.BLSPubKey, slot phase0.Slot, subcommitteeIndex uint64) (phase0.BLSSignature, error)
}

// AttesterDuty is one validator's attestation assignment plus its
// pre-computed aggregator role.
type AttesterDuty struct {
	Duty           *apiv1.AttesterDuty
	IsAggregator   bool
	SelectionProof phase0.BLSSignature
}

// SyncDuty is one validator's sync-committee membership for a period.
type SyncDuty struct {
	Pubkey         phase0.BLSPubKey
	ValidatorIndex phase0.ValidatorIndex
	// deduplicated subnets derived from the committee positions
	SubcommitteeIndices []uint64
}

// Cache holds duty assignments per epoch (attester/proposer) and per sync
// committee period. Entries are dropped two epochs after their epoch.
type Cache struct {
	spec     *localspec.NetworkSpec
	provider DutyProvider
	signer   SelectionSigner

	m        sync.Mutex
	attester map[phase0.Epoch][]*AttesterDuty
	proposer map[phase0.Epoch][]*apiv1.ProposerDuty
	sync     map[uint64][]*SyncDuty
}

func NewCache(netSpec *localspec.NetworkSpec, provider DutyProvider, signer SelectionSigner) *Cache {
	return &Cache{
		spec:     netSpec,
		provider: provider,
		signer:   signer,
		attester: make(map[phase0.Epoch][]*AttesterDuty),
		proposer: make(map[phase0.Epoch][]*apiv1.ProposerDuty),
		sync:     make(map[uint64][]*SyncDuty),
	}
}

// RefreshAttesterDuties fetches the epoch's attester duties and pre-computes
// each selection proof. Re-running within an epoch replaces the entry with
// an identical set (modulo validator status changes).
func (c *Cache) RefreshAttesterDuties(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) error {
	if len(indices) == 0 {
		c.m.Lock()
		c.attester[epoch] = nil
		c.m.Unlock()
		return nil
	}

	raw, err := c.provider.AttesterDuties(ctx, epoch, indices)
	if err != nil {
		return errors.Wrapf(err, "unable to fetch attester duties for epoch %d", epoch)
	}

	duties := make([]*AttesterDuty, 0, len(raw))
	for _, duty := range raw {
		entry := &AttesterDuty{Duty: duty}
		proof, err := c.signer.SignAggregationSlot(ctx, duty.PubKey, duty.Slot)
		if err != nil {
			// without a proof the validator still attests, it just cannot
			// aggregate
			log.Warnf("selection proof for validator %d slot %d failed: %s", duty.ValidatorIndex, duty.Slot, err)
		} else {
			entry.SelectionProof = proof
			entry.IsAggregator = IsAggregator(proof, duty.CommitteeLength)
		}
		duties = append(duties, entry)
	}

	c.m.Lock()
	c.attester[epoch] = duties
	c.m.Unlock()
	log.Infof("refreshed %d attester duties for epoch %d", len(duties), epoch)
	return nil
}

func (c *Cache) RefreshProposerDuties(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) error {
	if len(indices) == 0 {
		c.m.Lock()
		c.proposer[epoch] = nil
		c.m.Unlock()
		return nil
	}

	raw, err := c.provider.ProposerDuties(ctx, epoch, indices)
	if err != nil {
		return errors.Wrapf(err, "unable to fetch proposer duties for epoch %d", epoch)
	}

	c.m.Lock()
	c.proposer[epoch] = raw
	c.m.Unlock()
	if len(raw) > 0 {
		log.Infof("%d block proposals scheduled in epoch %d", len(raw), epoch)
	}
	return nil
}

// RefreshSyncDuties fetches sync committee membership for a period.
func (c *Cache) RefreshSyncDuties(ctx context.Context, period uint64, indices []phase0.ValidatorIndex) error {
	if len(indices) == 0 {
		c.m.Lock()
		c.sync[period] = nil
		c.m.Unlock()
		return nil
	}

	epoch := c.spec.FirstEpochOfSyncPeriod(period)
	raw, err := c.provider.SyncCommitteeDuties(ctx, epoch, indices)
	if err != nil {
		return errors.Wrapf(err, "unable to fetch sync duties for period %d", period)
	}

	duties := make([]*SyncDuty, 0, len(raw))
	for _, duty := range raw {
		seen := make(map[uint64]struct{})
		subcommittees := make([]uint64, 0, len(duty.ValidatorSyncCommitteeIndices))
		for _, position := range duty.ValidatorSyncCommitteeIndices {
			idx := SubcommitteeIndex(c.spec.SyncCommitteeSize, uint64(position))
			if _, ok := seen[idx]; ok {
				continue
			}
			seen[idx] = struct{}{}
			subcommittees = append(subcommittees, idx)
		}
		duties = append(duties, &SyncDuty{
			Pubkey:              duty.PubKey,
			ValidatorIndex:      duty.ValidatorIndex,
			SubcommitteeIndices: subcommittees,
		})
	}

	c.m.Lock()
	c.sync[period] = duties
	c.m.Unlock()
	if len(duties) > 0 {
		log.Infof("%d validators in sync committee for period %d", len(duties), period)
	}
	return nil
}

// RederiveSelectionProofs re-runs aggregator selection for an epoch. Called
// after a reorg crossing the epoch boundary; a changed dependent root can
// change committee assignments.
func (c *Cache) RederiveSelectionProofs(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) error {
	log.Warnf("re-deriving selection proofs for epoch %d after reorg", epoch)
	return c.RefreshAttesterDuties(ctx, epoch, indices)
}

// AttesterDutiesAt returns the attester duties scheduled in a slot.
func (c *Cache) AttesterDutiesAt(slot phase0.Slot) []*AttesterDuty {
	c.m.Lock()
	defer c.m.Unlock()
	out := make([]*AttesterDuty, 0)
	for _, duty := range c.attester[c.spec.EpochAt(slot)] {
		if duty.Duty.Slot == slot {
			out = append(out, duty)
		}
	}
	return out
}

// ProposerDutiesAt returns the managed proposals scheduled in a slot.
func (c *Cache) ProposerDutiesAt(slot phase0.Slot) []*apiv1.ProposerDuty {
	c.m.Lock()
	defer c.m.Unlock()
	out := make([]*apiv1.ProposerDuty, 0)
	for _, duty := range c.proposer[c.spec.EpochAt(slot)] {
		if duty.Slot == slot {
			out = append(out, duty)
		}
	}
	return out
}

// HasProposalWithin reports whether any managed proposal falls in
// [slot, slot+horizon]. Drives the deferred shutdown decision.
func (c *Cache) HasProposalWithin(slot phase0.Slot, horizon uint64) bool {
	c.m.Lock()
	defer c.m.Unlock()
	for _, duties := range c.proposer {
		for _, duty := range duties {
			if duty.Slot >= slot && uint64(duty.Slot) <= uint64(slot)+horizon {
				return true
			}
		}
	}
	return false
}

// SyncDutiesAt returns the sync committee duties for the period covering
// the epoch.
func (c *Cache) SyncDutiesAt(epoch phase0.Epoch) []*SyncDuty {
	c.m.Lock()
	defer c.m.Unlock()
	return c.sync[c.spec.SyncPeriodAt(epoch)]
}

// PruneBefore drops attester/proposer duties older than the given epoch and
// sync duties of past periods.
func (c *Cache) PruneBefore(epoch phase0.Epoch) {
	c.m.Lock()
	defer c.m.Unlock()
	for cached := range c.attester {
		if cached < epoch {
			delete(c.attester, cached)
		}
	}
	for cached := range c.proposer {
		if cached < epoch {
			delete(c.proposer, cached)
		}
	}
	period := c.spec.SyncPeriodAt(epoch)
	for cached := range c.sync {
		if cached < period {
			delete(c.sync, cached)
		}
	}
}
