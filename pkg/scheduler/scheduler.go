package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/serenita-org/vero/pkg/coordinator"
	"github.com/serenita-org/vero/pkg/duties"
	"github.com/serenita-org/vero/pkg/events"
	"github.com/serenita-org/vero/pkg/registry"
	"github.com/serenita-org/vero/pkg/signer"
	localspec "github.com/serenita-org/vero/pkg/spec"
	"github.com/serenita-org/vero/pkg/utils"
)

var log = logrus.WithField(
	"module", "scheduler",
)

const (
	// shutdown budgets, in slots
	proposalShutdownHorizon = 3
	// in-flight attester/sync work drains for up to 1.5 slots
	drainShutdownNum = 3
	drainShutdownDen = 2

	// a head event arriving after 4/12 of the slot is late
	lateHeadNum = 4
	lateHeadDen = 12

	maxConcurrentDuties = 32
)

// Options carries the operator choices the executors need.
type Options struct {
	UseExternalBuilder bool
	BuilderBoostFactor uint64
}

// slotState is the per-slot coupling between the head event and the
// attestation/aggregation executors.
type slotState struct {
	headSeen chan struct{}

	m        sync.Mutex
	headRoot *phase0.Root
	// base attestation data agreed by the quorum, reused for aggregation
	attData *phase0.AttestationData
}

func newSlotState() *slotState {
	return &slotState{headSeen: make(chan struct{})}
}

func (s *slotState) setHead(root phase0.Root) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.headRoot != nil {
		return
	}
	s.headRoot = &root
	close(s.headSeen)
}

func (s *slotState) head() *phase0.Root {
	s.m.Lock()
	defer s.m.Unlock()
	return s.headRoot
}

func (s *slotState) setAttData(data *phase0.AttestationData) {
	s.m.Lock()
	defer s.m.Unlock()
	s.attData = data
}

func (s *slotState) attestationData() *phase0.AttestationData {
	s.m.Lock()
	defer s.m.Unlock()
	return s.attData
}

// Scheduler drives every duty from a single slot-anchored loop. Executors
// run as short-lived goroutines tracked by a routine book so shutdown can
// wait for them.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	spec     *localspec.NetworkSpec
	clock    *localspec.Clock
	pool     *coordinator.MultiBeaconNode
	signer   *signer.RemoteSigner
	registry *registry.Registry
	duties   *duties.Cache
	pipeline *events.Pipeline
	latch    *events.SafetyLatch
	opts     Options

	guard      *dutyGuard
	book       *utils.RoutineBook
	tracer     trace.Tracer
	slotStates map[phase0.Slot]*slotState
	stateMu    sync.Mutex

	stop          bool
	routineClosed chan struct{}
}

func NewScheduler(
	pCtx context.Context,
	netSpec *localspec.NetworkSpec,
	clock *localspec.Clock,
	pool *coordinator.MultiBeaconNode,
	remoteSigner *signer.RemoteSigner,
	reg *registry.Registry,
	dutyCache *duties.Cache,
	pipeline *events.Pipeline,
	opts Options,
) *Scheduler {
	ctx, cancel := context.WithCancel(pCtx)
	return &Scheduler{
		ctx:           ctx,
		cancel:        cancel,
		spec:          netSpec,
		clock:         clock,
		pool:          pool,
		signer:        remoteSigner,
		registry:      reg,
		duties:        dutyCache,
		pipeline:      pipeline,
		latch:         pipeline.Latch(),
		opts:          opts,
		guard:         newDutyGuard(),
		book:          utils.NewRoutineBook(maxConcurrentDuties, "duties"),
		tracer:        otel.Tracer("vero/scheduler"),
		slotStates:    make(map[phase0.Slot]*slotState),
		routineClosed: make(chan struct{}, 1),
	}
}

// Run blocks until the context dies or Close is called.
func (s *Scheduler) Run() {
	defer s.cancel()

	// initial duty/validator load before any duty can fire in this epoch
	if err := s.refreshEpoch(s.clock.CurrentEpoch()); err != nil {
		log.Errorf("initial duty refresh failed: %s", err)
	}

	ticker := s.clock.SlotTicker(s.ctx)
	flush := time.NewTicker(utils.RoutineFlushTimeout)
	defer flush.Stop()

	for {
		select {
		case slot, ok := <-ticker:
			if !ok {
				s.routineClosed <- struct{}{}
				return
			}
			s.handleSlot(slot)
		case head := <-s.pipeline.HeadChan:
			s.handleHead(head)
		case reorg := <-s.pipeline.ReorgChan:
			s.handleReorg(reorg)
		case <-flush.C:
			if s.stop {
				s.routineClosed <- struct{}{}
				return
			}
		case <-s.ctx.Done():
			s.routineClosed <- struct{}{}
			return
		}
	}
}

func (s *Scheduler) handleSlot(slot phase0.Slot) {
	log.Debugf("slot %d begins", slot)
	state := s.stateFor(slot)

	epoch := s.spec.EpochAt(slot)
	if uint64(slot)%s.spec.SlotsPerEpoch == 0 {
		go func() {
			if err := s.refreshEpoch(epoch); err != nil {
				log.Errorf("duty refresh for epoch %d failed: %s", epoch, err)
			}
		}()
		s.pruneSlotStates(slot)
		s.guard.prune(slot, s.spec.SlotsPerEpoch)
		s.pipeline.Prune(slot)
		s.duties.PruneBefore(safeSub(epoch, 2))
	}

	// offset 0: block proposer check
	for _, duty := range s.duties.ProposerDutiesAt(slot) {
		duty := duty
		s.spawn("propose", slot, func() { s.proposeBlock(slot, duty) })
	}

	// offset 1/3 (or earlier on head event): attestation + sync messages
	s.spawn("attest", slot, func() { s.attest(slot, state) })
	if len(s.duties.SyncDutiesAt(epoch)) > 0 {
		s.spawn("sync-message", slot, func() { s.syncCommitteeMessages(slot, state) })
	}

	// offset 2/3: aggregation duties
	s.spawn("aggregate", slot, func() { s.aggregate(slot, state) })
	if len(s.duties.SyncDutiesAt(epoch)) > 0 {
		s.spawn("sync-contribution", slot, func() { s.syncContributions(slot, state) })
	}
}

// spawn runs one executor goroutine tracked by the routine book.
func (s *Scheduler) spawn(kind string, slot phase0.Slot, run func()) {
	key := fmt.Sprintf("%s@%d", kind, slot)
	if !s.book.TryAcquire(key) {
		log.Warnf("duty routine limit hit, skipping %s for slot %d", kind, slot)
		return
	}
	go func() {
		defer s.book.FreePage(key)
		run()
	}()
}

func (s *Scheduler) handleHead(head events.HeadEvent) {
	state := s.stateFor(head.Slot)
	state.setHead(head.Block)

	lateBy := time.Since(s.spec.SlotDeadline(head.Slot, lateHeadNum, lateHeadDen))
	if lateBy > 0 {
		log.Warnf("late head event for slot %d, %.2fs after the %d/%d mark",
			head.Slot, lateBy.Seconds(), lateHeadNum, lateHeadDen)
	}
}

// handleReorg invalidates cached quorum checkpoints; crossing an epoch
// boundary also re-derives the epoch's selection proofs.
func (s *Scheduler) handleReorg(reorg events.ReorgEvent) {
	epoch := s.spec.EpochAt(reorg.Slot)
	s.pool.InvalidateEpoch(epoch)
	if !s.pipeline.CrossesEpochBoundary(reorg) {
		return
	}
	s.pool.InvalidateEpoch(safeSub(epoch, 1))
	indices := s.registry.ActiveIndices()
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.spec.SlotDuration())
		defer cancel()
		if err := s.duties.RederiveSelectionProofs(ctx, epoch, indices); err != nil {
			log.Errorf("unable to re-derive selection proofs after reorg: %s", err)
		}
	}()
}

// refreshEpoch runs the epoch-boundary bookkeeping: validator refresh,
// duty refresh for this and the next epoch, proposer duties, sync period
// membership and builder registrations.
func (s *Scheduler) refreshEpoch(epoch phase0.Epoch) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.spec.SlotDuration()*time.Duration(s.spec.SlotsPerEpoch)/2)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "scheduler.refreshEpoch")
	defer span.End()

	pubkeys := s.registry.Pubkeys()
	if len(pubkeys) > 0 {
		chainView, err := s.pool.Validators(ctx, pubkeys)
		if err != nil {
			log.Warnf("validator refresh failed: %s", err)
		} else {
			s.registry.UpdateFromChain(chainView)
		}
	}

	indices := s.registry.ActiveIndices()
	if err := s.duties.RefreshAttesterDuties(ctx, epoch, indices); err != nil {
		return err
	}
	if err := s.duties.RefreshAttesterDuties(ctx, epoch+1, indices); err != nil {
		log.Warnf("attester duty prefetch for epoch %d failed: %s", epoch+1, err)
	}
	if err := s.duties.RefreshProposerDuties(ctx, epoch, indices); err != nil {
		return err
	}

	period := s.spec.SyncPeriodAt(epoch)
	if err := s.duties.RefreshSyncDuties(ctx, period, indices); err != nil {
		log.Warnf("sync duty refresh for period %d failed: %s", period, err)
	}
	// membership for the next period becomes available one period early
	if s.spec.SyncPeriodAt(epoch+1) != period {
		if err := s.duties.RefreshSyncDuties(ctx, period+1, indices); err != nil {
			log.Warnf("sync duty prefetch for period %d failed: %s", period+1, err)
		}
	}

	s.prepareProposals(ctx)
	if s.opts.UseExternalBuilder {
		s.registerValidators(ctx)
	}
	return nil
}

// prepareProposals tells the beacon nodes which fee recipient each managed
// proposer builds with.
func (s *Scheduler) prepareProposals(ctx context.Context) {
	preparations := make([]*apiv1.ProposalPreparation, 0)
	for _, validator := range s.registry.Snapshot() {
		if !validator.Active() {
			continue
		}
		preparations = append(preparations, &apiv1.ProposalPreparation{
			ValidatorIndex: validator.Index,
			FeeRecipient:   validator.FeeRecipient,
		})
	}
	if len(preparations) == 0 {
		return
	}
	if err := s.pool.SubmitProposalPreparations(ctx, preparations); err != nil {
		log.Warnf("proposal preparation submission failed: %s", err)
	}
}

func (s *Scheduler) stateFor(slot phase0.Slot) *slotState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	state, ok := s.slotStates[slot]
	if !ok {
		state = newSlotState()
		s.slotStates[slot] = state
	}
	return state
}

func (s *Scheduler) pruneSlotStates(current phase0.Slot) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	horizon := phase0.Slot(0)
	if uint64(current) > s.spec.SlotsPerEpoch {
		horizon = current - phase0.Slot(s.spec.SlotsPerEpoch)
	}
	for slot := range s.slotStates {
		if slot < horizon {
			delete(s.slotStates, slot)
		}
	}
}

func safeSub(epoch phase0.Epoch, by phase0.Epoch) phase0.Epoch {
	if epoch < by {
		return 0
	}
	return epoch - by
}
