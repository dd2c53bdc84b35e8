package events

import (
	"context"
	"fmt"
	"time"

	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/sirupsen/logrus"

	"github.com/serenita-org/vero/pkg/clientapi"
	"github.com/serenita-org/vero/pkg/registry"
	localspec "github.com/serenita-org/vero/pkg/spec"
	"github.com/serenita-org/vero/pkg/utils"
)

var log = logrus.WithField(
	"module", "events",
)

var subscribedTopics = []string{
	"head",
	"chain_reorg",
	"attester_slashing",
	"proposer_slashing",
	"block_gossip",
}

// statusPollSlots is how often the detector cross-checks validator statuses
// in addition to listening for slashing events.
const statusPollSlots = 4

// HeadEvent is a deduplicated head signal across all beacon nodes.
type HeadEvent struct {
	Slot  phase0.Slot
	Block phase0.Root
	Node  string
}

// ReorgEvent is a deduplicated chain reorg across all beacon nodes.
type ReorgEvent struct {
	Slot         phase0.Slot
	Depth        uint64
	NewHeadBlock phase0.Root
	Epoch        phase0.Epoch
	Node         string
}

// StatusReader is the slice of the coordinator the status poller needs.
type StatusReader interface {
	Validators(ctx context.Context, pubkeys []phase0.BLSPubKey) (map[phase0.ValidatorIndex]*apiv1.Validator, error)
}

// Pipeline maintains one event subscription per beacon node and merges all
// streams into deduplicated head/reorg channels. It also runs the slashing
// detector feeding the safety latch.
type Pipeline struct {
	ctx      context.Context
	spec     *localspec.NetworkSpec
	nodes    []*clientapi.BeaconNode
	registry *registry.Registry
	statuses StatusReader
	latch    *SafetyLatch

	HeadChan  chan HeadEvent
	ReorgChan chan ReorgEvent

	dedupHead     *utils.ConcurrentMap[string, phase0.Slot]
	dedupReorg    *utils.ConcurrentMap[string, phase0.Slot]
	dedupSlashing *utils.ConcurrentMap[[32]byte, struct{}]
}

func NewPipeline(ctx context.Context, netSpec *localspec.NetworkSpec, nodes []*clientapi.BeaconNode, reg *registry.Registry, statuses StatusReader, latch *SafetyLatch) *Pipeline {
	return &Pipeline{
		ctx:           ctx,
		spec:          netSpec,
		nodes:         nodes,
		registry:      reg,
		statuses:      statuses,
		latch:         latch,
		HeadChan:      make(chan HeadEvent, 16),
		ReorgChan:     make(chan ReorgEvent, 16),
		dedupHead:     utils.NewConcurrentMap[string, phase0.Slot](),
		dedupReorg:    utils.NewConcurrentMap[string, phase0.Slot](),
		dedupSlashing: utils.NewConcurrentMap[[32]byte, struct{}](),
	}
}

func (p *Pipeline) Latch() *SafetyLatch {
	return p.latch
}

// Start opens one subscription per beacon node and launches the status
// polling loop.
func (p *Pipeline) Start() {
	for _, node := range p.nodes {
		name := node.Name
		node.SubscribeWithReconnect(p.ctx, subscribedTopics, func(event *apiv1.Event) {
			p.handleEvent(name, event)
		})
	}
	go p.pollStatuses()
}

func (p *Pipeline) handleEvent(node string, event *apiv1.Event) {
	if event == nil || event.Data == nil {
		return
	}
	switch event.Topic {
	case "head":
		data, ok := event.Data.(*apiv1.HeadEvent)
		if !ok {
			return
		}
		p.handleHead(node, data)
	case "chain_reorg":
		data, ok := event.Data.(*apiv1.ChainReorgEvent)
		if !ok {
			return
		}
		p.handleReorg(node, data)
	case "attester_slashing":
		data, ok := event.Data.(*phase0.AttesterSlashing)
		if !ok {
			return
		}
		p.handleAttesterSlashing(node, data)
	case "proposer_slashing":
		data, ok := event.Data.(*phase0.ProposerSlashing)
		if !ok {
			return
		}
		p.handleProposerSlashing(node, data)
	case "block_gossip":
		// only useful as a liveness trace; the head event drives duties
		log.Tracef("block gossip event from %s", node)
	}
}

// handleHead forwards the first occurrence of each (slot, block) pair.
func (p *Pipeline) handleHead(node string, event *apiv1.HeadEvent) {
	key := fmt.Sprintf("%d|%#x", event.Slot, event.Block)
	if !p.dedupHead.SetIfAbsent(key, event.Slot) {
		return
	}
	log.Debugf("new head %#x at slot %d via %s", event.Block, event.Slot, node)
	select {
	case p.HeadChan <- HeadEvent{Slot: event.Slot, Block: event.Block, Node: node}:
	default:
		log.Warnf("head event for slot %d dropped, consumer busy", event.Slot)
	}
}

// handleReorg forwards the first occurrence of each (slot, new head) pair.
func (p *Pipeline) handleReorg(node string, event *apiv1.ChainReorgEvent) {
	key := fmt.Sprintf("%d|%#x", event.Slot, event.NewHeadBlock)
	if !p.dedupReorg.SetIfAbsent(key, event.Slot) {
		return
	}
	log.Warnf("chain reorg at slot %d depth %d via %s", event.Slot, event.Depth, node)
	select {
	case p.ReorgChan <- ReorgEvent{
		Slot:         event.Slot,
		Depth:        event.Depth,
		NewHeadBlock: event.NewHeadBlock,
		Epoch:        event.Epoch,
		Node:         node,
	}:
	default:
		log.Warnf("reorg event for slot %d dropped, consumer busy", event.Slot)
	}
}

// CrossesEpochBoundary reports whether the reorg reaches back into an
// earlier epoch than the one it was observed in.
func (p *Pipeline) CrossesEpochBoundary(event ReorgEvent) bool {
	if uint64(event.Slot) < event.Depth {
		return true
	}
	forkSlot := phase0.Slot(uint64(event.Slot) - event.Depth)
	return p.spec.EpochAt(forkSlot) < p.spec.EpochAt(event.Slot)
}

// Prune drops dedup entries older than two epochs.
func (p *Pipeline) Prune(currentSlot phase0.Slot) {
	horizon := phase0.Slot(0)
	if uint64(currentSlot) > 2*p.spec.SlotsPerEpoch {
		horizon = currentSlot - phase0.Slot(2*p.spec.SlotsPerEpoch)
	}
	keep := func(_ string, slot phase0.Slot) bool { return slot >= horizon }
	p.dedupHead.Prune(keep)
	p.dedupReorg.Prune(keep)
}

// pollStatuses fetches managed validator statuses every few slots; a
// *_slashed status latches even when no slashing event was streamed.
func (p *Pipeline) pollStatuses() {
	interval := time.Duration(statusPollSlots) * p.spec.SlotDuration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pubkeys := p.registry.Pubkeys()
			if len(pubkeys) == 0 {
				continue
			}
			ctx, cancel := context.WithTimeout(p.ctx, p.spec.SlotDuration())
			chainView, err := p.statuses.Validators(ctx, pubkeys)
			cancel()
			if err != nil {
				log.Warnf("status poll failed: %s", err)
				continue
			}
			p.registry.UpdateFromChain(chainView)
			for _, validator := range chainView {
				if validator == nil {
					continue
				}
				if validator.Status == apiv1.ValidatorStateActiveSlashed ||
					validator.Status == apiv1.ValidatorStateExitedSlashed {
					p.latch.Set(fmt.Sprintf("validator %d status %s", validator.Index, validator.Status))
				}
			}
		case <-p.ctx.Done():
			return
		}
	}
}
