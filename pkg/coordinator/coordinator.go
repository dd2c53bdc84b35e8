package coordinator

import (
	"context"
	"sort"
	"sync"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/serenita-org/vero/pkg/clientapi"
	localspec "github.com/serenita-org/vero/pkg/spec"
)

var log = logrus.WithField(
	"module", "coordinator",
)

// ErrQuorumUnreachable is returned when fewer than threshold beacon nodes
// agreed on a value before the deadline. The duty is skipped for the slot
// and never retried.
var ErrQuorumUnreachable = errors.New("attestation consensus threshold not reached")

type checkpointPair struct {
	Source phase0.Checkpoint
	Target phase0.Checkpoint
}

// MultiBeaconNode fans requests out across all configured beacon nodes and
// only acts on values enough of them agree on. The threshold is fixed for
// the lifetime of the process.
type MultiBeaconNode struct {
	spec  *localspec.NetworkSpec
	nodes []*clientapi.BeaconNode
	// subset allowed to build proposals (--beacon-node-urls-proposal);
	// equal to nodes when unset
	proposalNodes []*clientapi.BeaconNode
	threshold     int

	tracer trace.Tracer

	// per-epoch source/target the quorum agreed on, invalidated on reorgs
	// crossing the epoch boundary
	cpMu        sync.Mutex
	checkpoints map[phase0.Epoch]checkpointPair
}

func NewMultiBeaconNode(netSpec *localspec.NetworkSpec, nodes []*clientapi.BeaconNode, proposalNodes []*clientapi.BeaconNode, threshold int) (*MultiBeaconNode, error) {
	if len(nodes) == 0 {
		return nil, errors.New("no beacon nodes configured")
	}
	if threshold < 1 || threshold > len(nodes) {
		return nil, errors.Errorf("attestation consensus threshold %d out of range [1, %d]", threshold, len(nodes))
	}
	if len(proposalNodes) == 0 {
		proposalNodes = nodes
	}
	return &MultiBeaconNode{
		spec:          netSpec,
		nodes:         nodes,
		proposalNodes: proposalNodes,
		threshold:     threshold,
		tracer:        otel.Tracer("vero/coordinator"),
		checkpoints:   make(map[phase0.Epoch]checkpointPair),
	}, nil
}

// DefaultThreshold is the majority threshold for n beacon nodes.
func DefaultThreshold(n int) int {
	return n/2 + 1
}

func (c *MultiBeaconNode) Threshold() int {
	return c.threshold
}

func (c *MultiBeaconNode) Nodes() []*clientapi.BeaconNode {
	return c.nodes
}

func (c *MultiBeaconNode) healthyNodes() []*clientapi.BeaconNode {
	healthy := make([]*clientapi.BeaconNode, 0, len(c.nodes))
	for _, node := range c.nodes {
		if node.Healthy() {
			healthy = append(healthy, node)
		}
	}
	if len(healthy) == 0 {
		// better to try degraded nodes than to give up outright
		return c.nodes
	}
	return healthy
}

// nodesByScore orders healthy nodes best-first; equal scores keep their
// position in the configuration.
func (c *MultiBeaconNode) nodesByScore() []*clientapi.BeaconNode {
	nodes := c.healthyNodes()
	ordered := make([]*clientapi.BeaconNode, len(nodes))
	copy(ordered, nodes)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score() != ordered[j].Score() {
			return ordered[i].Score() > ordered[j].Score()
		}
		return ordered[i].ConfigOrder < ordered[j].ConfigOrder
	})
	return ordered
}

// CheckSpecs verifies every node's reported config against the local spec.
func (c *MultiBeaconNode) CheckSpecs(ctx context.Context, ignoreMismatch bool) error {
	for _, node := range c.nodes {
		if err := node.CheckSpec(ctx, ignoreMismatch); err != nil {
			if !ignoreMismatch {
				return err
			}
		}
	}
	return nil
}

// ConfirmedCheckpoints returns the quorum-agreed source/target for an epoch,
// if any quorum has been reached in it.
func (c *MultiBeaconNode) ConfirmedCheckpoints(epoch phase0.Epoch) (phase0.Checkpoint, phase0.Checkpoint, bool) {
	c.cpMu.Lock()
	defer c.cpMu.Unlock()
	pair, ok := c.checkpoints[epoch]
	return pair.Source, pair.Target, ok
}

func (c *MultiBeaconNode) rememberCheckpoints(epoch phase0.Epoch, source, target *phase0.Checkpoint) {
	if source == nil || target == nil {
		return
	}
	c.cpMu.Lock()
	defer c.cpMu.Unlock()
	c.checkpoints[epoch] = checkpointPair{Source: *source, Target: *target}
}

// InvalidateEpoch drops the cached checkpoint agreement for an epoch. Called
// by the scheduler on every chain reorg for the reorg's epoch, and also for
// the previous epoch when the reorg crosses the epoch boundary.
func (c *MultiBeaconNode) InvalidateEpoch(epoch phase0.Epoch) {
	c.cpMu.Lock()
	defer c.cpMu.Unlock()
	delete(c.checkpoints, epoch)
	// older cached epochs are stale too, drop them while we are here
	for cached := range c.checkpoints {
		if cached < epoch {
			delete(c.checkpoints, cached)
		}
	}
}
