package spec

import (
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// yaml keys of a consensus-layer config file, plus the genesis anchors a
// validator client additionally needs for a custom network.
type rawNetworkConfig struct {
	ConfigName                   string `yaml:"CONFIG_NAME"`
	MinGenesisTime               uint64 `yaml:"MIN_GENESIS_TIME"`
	GenesisDelay                 uint64 `yaml:"GENESIS_DELAY"`
	GenesisTime                  uint64 `yaml:"GENESIS_TIME"`
	GenesisValidatorsRoot        string `yaml:"GENESIS_VALIDATORS_ROOT"`
	SecondsPerSlot               uint64 `yaml:"SECONDS_PER_SLOT"`
	SlotsPerEpoch                uint64 `yaml:"SLOTS_PER_EPOCH"`
	SyncCommitteeSize            uint64 `yaml:"SYNC_COMMITTEE_SIZE"`
	EpochsPerSyncCommitteePeriod uint64 `yaml:"EPOCHS_PER_SYNC_COMMITTEE_PERIOD"`

	GenesisForkVersion   string `yaml:"GENESIS_FORK_VERSION"`
	AltairForkVersion    string `yaml:"ALTAIR_FORK_VERSION"`
	AltairForkEpoch      string `yaml:"ALTAIR_FORK_EPOCH"`
	BellatrixForkVersion string `yaml:"BELLATRIX_FORK_VERSION"`
	BellatrixForkEpoch   string `yaml:"BELLATRIX_FORK_EPOCH"`
	CapellaForkVersion   string `yaml:"CAPELLA_FORK_VERSION"`
	CapellaForkEpoch     string `yaml:"CAPELLA_FORK_EPOCH"`
	DenebForkVersion     string `yaml:"DENEB_FORK_VERSION"`
	DenebForkEpoch       string `yaml:"DENEB_FORK_EPOCH"`
}

// FromYAML builds a NetworkSpec from a consensus-spec style config file.
func FromYAML(path string) (*NetworkSpec, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read network config")
	}

	var raw rawNetworkConfig
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, errors.Wrap(err, "unable to parse network config")
	}

	if raw.SecondsPerSlot == 0 || raw.SlotsPerEpoch == 0 {
		return nil, errors.Errorf("network config %s is missing SECONDS_PER_SLOT or SLOTS_PER_EPOCH", path)
	}
	if raw.GenesisForkVersion == "" {
		return nil, errors.Errorf("network config %s is missing GENESIS_FORK_VERSION", path)
	}

	genesisTime := raw.GenesisTime
	if genesisTime == 0 {
		genesisTime = raw.MinGenesisTime + raw.GenesisDelay
	}

	s := &NetworkSpec{
		Name:                         raw.ConfigName,
		GenesisTime:                  time.Unix(int64(genesisTime), 0),
		SecondsPerSlot:               raw.SecondsPerSlot,
		SlotsPerEpoch:                raw.SlotsPerEpoch,
		SyncCommitteeSize:            raw.SyncCommitteeSize,
		EpochsPerSyncCommitteePeriod: raw.EpochsPerSyncCommitteePeriod,
	}
	if s.SyncCommitteeSize == 0 {
		s.SyncCommitteeSize = 512
	}
	if s.EpochsPerSyncCommitteePeriod == 0 {
		s.EpochsPerSyncCommitteePeriod = 256
	}
	if raw.GenesisValidatorsRoot != "" {
		rootBytes, err := hex.DecodeString(strings.TrimPrefix(raw.GenesisValidatorsRoot, "0x"))
		if err != nil || len(rootBytes) != 32 {
			return nil, errors.Errorf("bad GENESIS_VALIDATORS_ROOT in %s", path)
		}
		copy(s.GenesisValidatorsRoot[:], rootBytes)
	}

	genesisVersion, err := parseVersion(raw.GenesisForkVersion)
	if err != nil {
		return nil, errors.Wrapf(err, "bad GENESIS_FORK_VERSION in %s", path)
	}
	s.Forks = append(s.Forks, ScheduledFork{ForkPhase0, genesisVersion, 0})
	for _, f := range []struct {
		name    ForkName
		version string
		epoch   string
	}{
		{ForkAltair, raw.AltairForkVersion, raw.AltairForkEpoch},
		{ForkBellatrix, raw.BellatrixForkVersion, raw.BellatrixForkEpoch},
		{ForkCapella, raw.CapellaForkVersion, raw.CapellaForkEpoch},
		{ForkDeneb, raw.DenebForkVersion, raw.DenebForkEpoch},
	} {
		if f.version == "" || f.epoch == "" {
			continue
		}
		epoch, err := strconv.ParseUint(f.epoch, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad %s fork epoch", f.name)
		}
		// FAR_FUTURE_EPOCH marks a fork not yet scheduled
		if epoch == ^uint64(0) {
			continue
		}
		version, err := parseVersion(f.version)
		if err != nil {
			return nil, errors.Wrapf(err, "bad %s fork version", f.name)
		}
		s.Forks = append(s.Forks, ScheduledFork{f.name, version, phase0.Epoch(epoch)})
	}

	return s, nil
}

func parseVersion(s string) (phase0.Version, error) {
	var v phase0.Version
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(raw) != 4 {
		return v, errors.Errorf("bad fork version %q", s)
	}
	copy(v[:], raw)
	return v, nil
}
