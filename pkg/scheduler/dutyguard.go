package scheduler

import (
	"fmt"

	"github.com/attestantio/go-eth2-client/spec/phase0"

	"github.com/serenita-org/vero/pkg/utils"
)

// Role names the signed message kinds for duty idempotence.
type Role string

const (
	RoleAttester       Role = "attester"
	RoleProposer       Role = "proposer"
	RoleAggregator     Role = "aggregator"
	RoleSync           Role = "sync"
	RoleSyncAggregator Role = "sync-aggregator"
)

// dutyGuard enforces at-most-one signing request per
// (validator, slot, role).
type dutyGuard struct {
	done *utils.ConcurrentMap[string, phase0.Slot]
}

func newDutyGuard() *dutyGuard {
	return &dutyGuard{
		done: utils.NewConcurrentMap[string, phase0.Slot](),
	}
}

// markOnce returns true exactly once per (validator, slot, role).
func (g *dutyGuard) markOnce(validator phase0.ValidatorIndex, slot phase0.Slot, role Role) bool {
	key := fmt.Sprintf("%d|%d|%s", validator, slot, role)
	return g.done.SetIfAbsent(key, slot)
}

// prune drops records older than one epoch behind the current slot.
func (g *dutyGuard) prune(current phase0.Slot, slotsPerEpoch uint64) {
	horizon := phase0.Slot(0)
	if uint64(current) > slotsPerEpoch {
		horizon = current - phase0.Slot(slotsPerEpoch)
	}
	g.done.Prune(func(_ string, slot phase0.Slot) bool {
		return slot >= horizon
	})
}
