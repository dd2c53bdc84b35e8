package spec_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"

	"github.com/serenita-org/vero/pkg/spec"
)

func mainnet(t *testing.T) *spec.NetworkSpec {
	t.Helper()
	s, err := spec.ForNetwork("mainnet")
	if err != nil {
		t.Fatalf("ForNetwork: %s", err)
	}
	return s
}

func TestEpochAt(t *testing.T) {
	s := mainnet(t)

	tests := []struct {
		name  string
		slot  phase0.Slot
		epoch phase0.Epoch
	}{
		{
			name:  "Genesis",
			slot:  0,
			epoch: 0,
		},
		{
			name:  "Slot 31",
			slot:  31,
			epoch: 0,
		},
		{
			name:  "Slot 32",
			slot:  32,
			epoch: 1,
		},
		{
			name:  "Slot 100",
			slot:  100,
			epoch: 3,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			epoch := s.EpochAt(test.slot)
			if epoch != test.epoch {
				t.Errorf("EpochAt() returned %d, expected %d", epoch, test.epoch)
			}
		})
	}
}

func TestSlotTimes(t *testing.T) {
	s := mainnet(t)

	start := s.SlotStartTime(1)
	if start.Sub(s.GenesisTime) != 12*time.Second {
		t.Errorf("slot 1 does not start 12s after genesis")
	}

	if s.SlotAt(start) != 1 {
		t.Errorf("SlotAt(start of slot 1) = %d", s.SlotAt(start))
	}
	if s.SlotAt(start.Add(11*time.Second)) != 1 {
		t.Errorf("SlotAt(end of slot 1) = %d", s.SlotAt(start.Add(11*time.Second)))
	}
	if s.SlotAt(s.GenesisTime.Add(-time.Hour)) != 0 {
		t.Errorf("pre-genesis times must map to slot 0")
	}

	deadline := s.SlotDeadline(1, 1, 3)
	if deadline.Sub(start) != 4*time.Second {
		t.Errorf("1/3 deadline is %s after slot start, expected 4s", deadline.Sub(start))
	}
}

func TestForkAt(t *testing.T) {
	s := mainnet(t)

	genesis := s.ForkAt(0)
	if genesis.CurrentVersion != genesis.PreviousVersion {
		t.Errorf("genesis fork has differing previous/current versions")
	}

	altair := s.ForkAt(74240)
	if altair.Epoch != 74240 {
		t.Errorf("altair activation epoch %d", altair.Epoch)
	}
	if altair.PreviousVersion == altair.CurrentVersion {
		t.Errorf("altair fork versions not distinct")
	}

	// one epoch before activation still reports phase0
	phase0Fork := s.ForkAt(74239)
	if phase0Fork.CurrentVersion != genesis.CurrentVersion {
		t.Errorf("fork before altair activation is not phase0")
	}

	deneb := s.ForkAt(300000)
	if deneb.CurrentVersion != s.ForkVersionAt(300000) {
		t.Errorf("ForkVersionAt disagrees with ForkAt")
	}
}

func TestGnosisTiming(t *testing.T) {
	s, err := spec.ForNetwork("gnosis")
	if err != nil {
		t.Fatalf("ForNetwork: %s", err)
	}
	if s.SecondsPerSlot != 5 || s.SlotsPerEpoch != 16 {
		t.Errorf("unexpected gnosis timing: %d/%d", s.SecondsPerSlot, s.SlotsPerEpoch)
	}
	if s.EpochAt(16) != 1 {
		t.Errorf("gnosis slot 16 is not epoch 1")
	}
}

func TestUnknownNetwork(t *testing.T) {
	if _, err := spec.ForNetwork("testnet-42"); err == nil {
		t.Errorf("unknown network accepted")
	}
}

func TestMatchesRemote(t *testing.T) {
	s := mainnet(t)

	ok := map[string]any{
		"SECONDS_PER_SLOT": 12 * time.Second,
		"SLOTS_PER_EPOCH":  uint64(32),
	}
	if err := s.MatchesRemote(ok); err != nil {
		t.Errorf("matching remote spec rejected: %s", err)
	}

	bad := map[string]any{
		"SECONDS_PER_SLOT": 5 * time.Second,
		"SLOTS_PER_EPOCH":  uint64(32),
	}
	if err := s.MatchesRemote(bad); err == nil {
		t.Errorf("mismatching SECONDS_PER_SLOT accepted")
	}
}

func TestFromYAML(t *testing.T) {
	content := `CONFIG_NAME: devnet
GENESIS_TIME: 1700000000
SECONDS_PER_SLOT: 6
SLOTS_PER_EPOCH: 8
GENESIS_FORK_VERSION: "0x10000000"
ALTAIR_FORK_VERSION: "0x11000000"
ALTAIR_FORK_EPOCH: "4"
DENEB_FORK_VERSION: "0x14000000"
DENEB_FORK_EPOCH: "18446744073709551615"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("unable to write config: %s", err)
	}

	s, err := spec.FromYAML(path)
	if err != nil {
		t.Fatalf("FromYAML: %s", err)
	}
	if s.Name != "devnet" || s.SecondsPerSlot != 6 || s.SlotsPerEpoch != 8 {
		t.Errorf("unexpected parsed spec: %+v", s)
	}
	if len(s.Forks) != 2 {
		t.Errorf("expected phase0+altair (deneb unscheduled), got %d forks", len(s.Forks))
	}
	if s.EpochAt(16) != 2 {
		t.Errorf("slots per epoch not applied: epoch(16) = %d", s.EpochAt(16))
	}
}

func TestSyncPeriods(t *testing.T) {
	s := mainnet(t)
	if s.SyncPeriodAt(255) != 0 || s.SyncPeriodAt(256) != 1 {
		t.Errorf("sync period boundary wrong")
	}
	if s.FirstEpochOfSyncPeriod(1) != 256 {
		t.Errorf("first epoch of period 1 = %d", s.FirstEpochOfSyncPeriod(1))
	}
}
