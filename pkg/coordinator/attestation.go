package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"

	"github.com/serenita-org/vero/pkg/clientapi"
)

// voteKey canonicalizes the fields whose agreement matters for attestation
// safety. Hash-equality of this string is vote equality.
func voteKey(data *phase0.AttestationData, includeHead bool) string {
	if data == nil || data.Source == nil || data.Target == nil {
		return ""
	}
	if includeHead {
		return fmt.Sprintf("%#x|%d:%#x|%d:%#x",
			data.BeaconBlockRoot,
			data.Source.Epoch, data.Source.Root,
			data.Target.Epoch, data.Target.Root)
	}
	return fmt.Sprintf("%d:%#x|%d:%#x",
		data.Source.Epoch, data.Source.Root,
		data.Target.Epoch, data.Target.Root)
}

type attDataResponse struct {
	node string
	data *phase0.AttestationData
}

// attDataVotes counts grouped responses in arrival order and reports the
// first group to reach the threshold.
type attDataVotes struct {
	threshold  int
	pinnedHead *phase0.Root
	counts     map[string]int
	first      map[string]*phase0.AttestationData
}

func newAttDataVotes(threshold int, pinnedHead *phase0.Root) *attDataVotes {
	return &attDataVotes{
		threshold:  threshold,
		pinnedHead: pinnedHead,
		counts:     make(map[string]int),
		first:      make(map[string]*phase0.AttestationData),
	}
}

// add folds one response in. It returns the winning AttestationData once a
// group reaches the threshold, nil before that.
func (v *attDataVotes) add(data *phase0.AttestationData) *phase0.AttestationData {
	if data == nil || data.Source == nil || data.Target == nil {
		return nil
	}
	if v.pinnedHead != nil && data.BeaconBlockRoot != *v.pinnedHead {
		// the node has not seen the head we are attesting to
		return nil
	}
	key := voteKey(data, v.pinnedHead == nil)
	if _, ok := v.first[key]; !ok {
		v.first[key] = data
	}
	v.counts[key]++
	if v.counts[key] >= v.threshold {
		return v.first[key]
	}
	return nil
}

// AttestationData obtains attestation data agreed on by at least threshold
// beacon nodes. With pinnedHead set (a head event was seen for the slot),
// agreement is on (source, target) among responses carrying that head; with
// no head known, agreement is on the full (head, source, target) triple.
//
// The ctx deadline is the publication deadline; when it expires without a
// quorum the duty is abandoned for this slot.
func (c *MultiBeaconNode) AttestationData(ctx context.Context, slot phase0.Slot, committeeIndex phase0.CommitteeIndex, pinnedHead *phase0.Root) (*phase0.AttestationData, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.AttestationData")
	defer span.End()

	start := time.Now()
	nodes := c.healthyNodes()
	responses := make(chan attDataResponse, len(nodes))

	reqCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	for _, node := range nodes {
		go func(node *clientapi.BeaconNode) {
			data, err := node.AttestationData(reqCtx, slot, committeeIndex)
			if err != nil {
				if reqCtx.Err() == nil {
					log.Debugf("attestation data from %s failed: %s", node.Name, err)
				}
				responses <- attDataResponse{node: node.Name}
				return
			}
			responses <- attDataResponse{node: node.Name, data: data}
		}(node)
	}

	votes := newAttDataVotes(c.threshold, pinnedHead)
	pending := len(nodes)
	for pending > 0 {
		select {
		case resp := <-responses:
			pending--
			winner := votes.add(resp.data)
			if winner == nil {
				continue
			}
			// quorum reached; in-flight requests are cancelled and their
			// late results never contribute
			c.rememberCheckpoints(c.spec.EpochAt(slot), winner.Source, winner.Target)
			AttestationConsensusTime.Observe(time.Since(start).Seconds())
			return winner, nil
		case <-ctx.Done():
			pending = 0
		}
	}

	AttestationConsensusFailures.Inc()
	return nil, errors.Wrapf(ErrQuorumUnreachable, "slot %d", slot)
}
