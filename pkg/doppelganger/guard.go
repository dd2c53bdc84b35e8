package doppelganger

import (
	"context"

	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/serenita-org/vero/pkg/registry"
	localspec "github.com/serenita-org/vero/pkg/spec"
)

var log = logrus.WithField(
	"module", "doppelganger",
)

// ErrDetected means another instance is signing with one of our keys.
// Starting duties would guarantee a slashing, so the process must exit.
var ErrDetected = errors.New("doppelganger detected")

// observedEpochs is how many full epochs must pass without a liveness
// signal before duties are released.
const observedEpochs = 3

// LivenessProvider is the slice of the coordinator the guard needs.
type LivenessProvider interface {
	ValidatorLiveness(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) ([]*apiv1.ValidatorLiveness, error)
}

// Guard delays duty start-up until it is reasonably sure no other instance
// is running the same keys. Keys added through the keymanager at runtime
// are not covered until the next start-up.
type Guard struct {
	spec     *localspec.NetworkSpec
	clock    *localspec.Clock
	provider LivenessProvider
	registry *registry.Registry
	enabled  bool
}

func NewGuard(netSpec *localspec.NetworkSpec, clock *localspec.Clock, provider LivenessProvider, reg *registry.Registry, enabled bool) *Guard {
	return &Guard{
		spec:     netSpec,
		clock:    clock,
		provider: provider,
		registry: reg,
		enabled:  enabled,
	}
}

// anyLive returns the first index reported live.
func anyLive(data []*apiv1.ValidatorLiveness) (phase0.ValidatorIndex, bool) {
	for _, entry := range data {
		if entry != nil && entry.IsLive {
			return entry.Index, true
		}
	}
	return 0, false
}

// checkEpoch queries liveness for one fully elapsed epoch.
func (g *Guard) checkEpoch(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) error {
	data, err := g.provider.ValidatorLiveness(ctx, epoch, indices)
	if err != nil {
		// an unreachable liveness endpoint is not a doppelganger signal;
		// the remaining observation epochs still apply
		log.Warnf("liveness check for epoch %d failed: %s", epoch, err)
		return nil
	}
	if index, live := anyLive(data); live {
		return errors.Wrapf(ErrDetected, "validator %d is live elsewhere during epoch %d", index, epoch)
	}
	log.Infof("no doppelganger activity during epoch %d", epoch)
	return nil
}

// Wait blocks until the observation window has passed cleanly. It returns
// ErrDetected when any managed validator shows liveness elsewhere.
func (g *Guard) Wait(ctx context.Context) error {
	if !g.enabled {
		return nil
	}
	indices := g.registry.KnownIndices()
	if len(indices) == 0 {
		log.Info("no validators with known indices, skipping doppelganger detection")
		return nil
	}

	startEpoch := g.clock.CurrentEpoch()
	log.Infof("doppelganger detection enabled, observing %d validators for epochs %d-%d",
		len(indices), startEpoch, startEpoch+observedEpochs-1)

	for epoch := startEpoch; epoch < startEpoch+observedEpochs; epoch++ {
		// liveness for an epoch is only meaningful once the epoch is over
		nextEpochStart := g.spec.SlotStartTime(g.spec.FirstSlotOfEpoch(epoch + 1))
		if err := g.clock.WaitUntil(ctx, nextEpochStart); err != nil {
			return errors.Wrap(err, "doppelganger observation interrupted")
		}
		if err := g.checkEpoch(ctx, epoch, indices); err != nil {
			return err
		}
	}

	log.Info("doppelganger observation window passed, releasing duties")
	return nil
}
