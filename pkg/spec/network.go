package spec

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField(
	"module", "spec",
)

// ScheduledFork is one entry of a network's fork schedule.
type ScheduledFork struct {
	Name    ForkName
	Version phase0.Version
	Epoch   phase0.Epoch
}

// NetworkSpec holds the per-network constants every other module derives
// slot arithmetic and signing domains from. Immutable after construction.
type NetworkSpec struct {
	Name                  string
	GenesisTime           time.Time
	GenesisValidatorsRoot phase0.Root

	SecondsPerSlot               uint64
	SlotsPerEpoch                uint64
	SyncCommitteeSize            uint64
	EpochsPerSyncCommitteePeriod uint64

	// ascending by epoch, first entry is genesis
	Forks []ScheduledFork
}

func mustVersion(s string) phase0.Version {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) != 4 {
		panic(fmt.Sprintf("bad fork version %s", s))
	}
	var v phase0.Version
	copy(v[:], b)
	return v
}

func mustRoot(s string) phase0.Root {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) != 32 {
		panic(fmt.Sprintf("bad root %s", s))
	}
	var r phase0.Root
	copy(r[:], b)
	return r
}

var mainnetSpec = &NetworkSpec{
	Name:                         "mainnet",
	GenesisTime:                  time.Unix(1606824023, 0),
	GenesisValidatorsRoot:        mustRoot("0x4b363db94e286120d76eb905340fdd4e54bfe9f06bf33ff6cf5ad27f511bfe95"),
	SecondsPerSlot:               12,
	SlotsPerEpoch:                32,
	SyncCommitteeSize:            512,
	EpochsPerSyncCommitteePeriod: 256,
	Forks: []ScheduledFork{
		{ForkPhase0, mustVersion("0x00000000"), 0},
		{ForkAltair, mustVersion("0x01000000"), 74240},
		{ForkBellatrix, mustVersion("0x02000000"), 144896},
		{ForkCapella, mustVersion("0x03000000"), 194048},
		{ForkDeneb, mustVersion("0x04000000"), 269568},
	},
}

var gnosisSpec = &NetworkSpec{
	Name:                         "gnosis",
	GenesisTime:                  time.Unix(1638993340, 0),
	GenesisValidatorsRoot:        mustRoot("0xf5dcb5564e829aab27264b9becd5dfaa017085611224cb3036f573368dbb9d47"),
	SecondsPerSlot:               5,
	SlotsPerEpoch:                16,
	SyncCommitteeSize:            512,
	EpochsPerSyncCommitteePeriod: 512,
	Forks: []ScheduledFork{
		{ForkPhase0, mustVersion("0x00000064"), 0},
		{ForkAltair, mustVersion("0x01000064"), 512},
		{ForkBellatrix, mustVersion("0x02000064"), 385536},
		{ForkCapella, mustVersion("0x03000064"), 648704},
		{ForkDeneb, mustVersion("0x04000064"), 889856},
	},
}

var holeskySpec = &NetworkSpec{
	Name:                         "holesky",
	GenesisTime:                  time.Unix(1695902400, 0),
	GenesisValidatorsRoot:        mustRoot("0x9143aa7c615a7f7115e2b6aac319c03529df8242ae705fba9df39b79c59fa8b1"),
	SecondsPerSlot:               12,
	SlotsPerEpoch:                32,
	SyncCommitteeSize:            512,
	EpochsPerSyncCommitteePeriod: 256,
	Forks: []ScheduledFork{
		{ForkPhase0, mustVersion("0x01017000"), 0},
		{ForkAltair, mustVersion("0x02017000"), 0},
		{ForkBellatrix, mustVersion("0x03017000"), 0},
		{ForkCapella, mustVersion("0x04017000"), 256},
		{ForkDeneb, mustVersion("0x05017000"), 29696},
	},
}

// ForNetwork returns the built-in spec for a known network name.
func ForNetwork(name string) (*NetworkSpec, error) {
	switch name {
	case "mainnet":
		return mainnetSpec, nil
	case "gnosis":
		return gnosisSpec, nil
	case "holesky":
		return holeskySpec, nil
	default:
		return nil, errors.Errorf("unknown network %s", name)
	}
}

func (s *NetworkSpec) SlotDuration() time.Duration {
	return time.Duration(s.SecondsPerSlot) * time.Second
}

func (s *NetworkSpec) SlotAt(t time.Time) phase0.Slot {
	if t.Before(s.GenesisTime) {
		return 0
	}
	return phase0.Slot(t.Sub(s.GenesisTime) / s.SlotDuration())
}

func (s *NetworkSpec) EpochAt(slot phase0.Slot) phase0.Epoch {
	return phase0.Epoch(uint64(slot) / s.SlotsPerEpoch)
}

func (s *NetworkSpec) FirstSlotOfEpoch(epoch phase0.Epoch) phase0.Slot {
	return phase0.Slot(uint64(epoch) * s.SlotsPerEpoch)
}

func (s *NetworkSpec) SlotStartTime(slot phase0.Slot) time.Time {
	return s.GenesisTime.Add(time.Duration(slot) * s.SlotDuration())
}

// SlotDeadline returns the wall time num/den of the way through a slot.
func (s *NetworkSpec) SlotDeadline(slot phase0.Slot, num, den uint64) time.Time {
	offset := time.Duration(num) * s.SlotDuration() / time.Duration(den)
	return s.SlotStartTime(slot).Add(offset)
}

func (s *NetworkSpec) SyncPeriodAt(epoch phase0.Epoch) uint64 {
	return uint64(epoch) / s.EpochsPerSyncCommitteePeriod
}

func (s *NetworkSpec) FirstEpochOfSyncPeriod(period uint64) phase0.Epoch {
	return phase0.Epoch(period * s.EpochsPerSyncCommitteePeriod)
}

// ForkAt returns the fork active at the given epoch, in the shape the
// remote signer expects (previous version, current version, activation epoch).
func (s *NetworkSpec) ForkAt(epoch phase0.Epoch) *phase0.Fork {
	current := s.Forks[0]
	previous := s.Forks[0]
	for _, f := range s.Forks {
		if f.Epoch > epoch {
			break
		}
		previous = current
		current = f
	}
	return &phase0.Fork{
		PreviousVersion: previous.Version,
		CurrentVersion:  current.Version,
		Epoch:           current.Epoch,
	}
}

func (s *NetworkSpec) ForkVersionAt(epoch phase0.Epoch) phase0.Version {
	return s.ForkAt(epoch).CurrentVersion
}

// Fingerprint summarizes the constants every connected beacon node must share.
func (s *NetworkSpec) Fingerprint() string {
	return fmt.Sprintf("%d/%d/%#x", s.SecondsPerSlot, s.SlotsPerEpoch, s.Forks[0].Version)
}

// MatchesRemote compares the local fingerprint against the config reported
// by a beacon node on /eth/v1/config/spec.
func (s *NetworkSpec) MatchesRemote(remote map[string]any) error {
	if err := matchUint(remote, "SECONDS_PER_SLOT", s.SecondsPerSlot); err != nil {
		return err
	}
	if err := matchUint(remote, "SLOTS_PER_EPOCH", s.SlotsPerEpoch); err != nil {
		return err
	}
	if raw, ok := remote["GENESIS_FORK_VERSION"]; ok {
		if remoteVersion, ok := raw.(phase0.Version); ok && remoteVersion != s.Forks[0].Version {
			return errors.Errorf("GENESIS_FORK_VERSION mismatch: local %#x, remote %#x", s.Forks[0].Version, remoteVersion)
		}
		if remoteBytes, ok := raw.([]byte); ok && len(remoteBytes) == 4 {
			var v phase0.Version
			copy(v[:], remoteBytes)
			if v != s.Forks[0].Version {
				return errors.Errorf("GENESIS_FORK_VERSION mismatch: local %#x, remote %#x", s.Forks[0].Version, v)
			}
		}
	}
	return nil
}

func matchUint(remote map[string]any, key string, local uint64) error {
	raw, ok := remote[key]
	if !ok {
		log.Warnf("beacon node spec is missing %s", key)
		return nil
	}
	var remoteVal uint64
	switch v := raw.(type) {
	case uint64:
		remoteVal = v
	case time.Duration:
		remoteVal = uint64(v / time.Second)
	default:
		return nil
	}
	if remoteVal != local {
		return errors.Errorf("%s mismatch: local %d, remote %d", key, local, remoteVal)
	}
	return nil
}
