package duties

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/attestantio/go-eth2-client/spec/phase0"

	localspec "github.com/serenita-org/vero/pkg/spec"
)

// IsAggregator implements the attestation aggregator lottery: the validator
// aggregates when the hash of its selection proof lands on the committee's
// modulo.
func IsAggregator(selectionProof phase0.BLSSignature, committeeLength uint64) bool {
	modulo := committeeLength / localspec.TargetAggregatorsPerCommittee
	if modulo < 1 {
		modulo = 1
	}
	return hashMod(selectionProof, modulo)
}

// IsSyncAggregator is the analogous lottery for sync committee contribution
// aggregators, with a fixed modulo derived from the sync committee shape.
func IsSyncAggregator(syncCommitteeSize uint64, selectionProof phase0.BLSSignature) bool {
	modulo := syncCommitteeSize / localspec.SyncCommitteeSubnetCount / localspec.TargetAggregatorsPerSyncSubcommittee
	if modulo < 1 {
		modulo = 1
	}
	return hashMod(selectionProof, modulo)
}

func hashMod(signature phase0.BLSSignature, modulo uint64) bool {
	digest := sha256.Sum256(signature[:])
	return binary.LittleEndian.Uint64(digest[0:8])%modulo == 0
}

// SubcommitteeIndex maps a position in the sync committee to its subnet.
func SubcommitteeIndex(syncCommitteeSize uint64, position uint64) uint64 {
	return position / (syncCommitteeSize / localspec.SyncCommitteeSubnetCount)
}
