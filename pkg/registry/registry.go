package registry

import (
	"encoding/hex"
	"strings"
	"sync"

	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/bellatrix"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField(
	"module", "registry",
)

// Validator is one managed identity. The private key lives in the remote
// signer; only duty-relevant attributes are kept here.
type Validator struct {
	Pubkey   phase0.BLSPubKey
	Index    phase0.ValidatorIndex
	HasIndex bool
	Status   apiv1.ValidatorState

	FeeRecipient bellatrix.ExecutionAddress
	Graffiti     [32]byte
	GasLimit     uint64

	// set for keys added through the keymanager after startup; these skip
	// the doppelganger guard until the next process start
	AddedAtRuntime bool
}

func (v *Validator) Active() bool {
	return v.HasIndex && v.Status.IsActive()
}

// Registry is the set of managed validators, keyed by pubkey. Reads return
// copies; writes (chain refresh, keymanager mutations) take the write lock.
type Registry struct {
	m          sync.RWMutex
	validators map[phase0.BLSPubKey]*Validator

	defaultFeeRecipient bellatrix.ExecutionAddress
	defaultGraffiti     [32]byte
	defaultGasLimit     uint64
}

func NewRegistry(feeRecipient bellatrix.ExecutionAddress, graffiti [32]byte, gasLimit uint64) *Registry {
	return &Registry{
		validators:          make(map[phase0.BLSPubKey]*Validator),
		defaultFeeRecipient: feeRecipient,
		defaultGraffiti:     graffiti,
		defaultGasLimit:     gasLimit,
	}
}

// Add inserts a new validator with the registry defaults. Adding an already
// known pubkey is a no-op.
func (r *Registry) Add(pubkey phase0.BLSPubKey, atRuntime bool) {
	r.m.Lock()
	defer r.m.Unlock()
	if _, ok := r.validators[pubkey]; ok {
		return
	}
	r.validators[pubkey] = &Validator{
		Pubkey:         pubkey,
		Status:         apiv1.ValidatorStateUnknown,
		FeeRecipient:   r.defaultFeeRecipient,
		Graffiti:       r.defaultGraffiti,
		GasLimit:       r.defaultGasLimit,
		AddedAtRuntime: atRuntime,
	}
}

func (r *Registry) Remove(pubkey phase0.BLSPubKey) {
	r.m.Lock()
	defer r.m.Unlock()
	delete(r.validators, pubkey)
}

// UpdateFromChain folds the chain's view (index + status) into the registry.
// An index, once learned, never re-binds to a different pubkey.
func (r *Registry) UpdateFromChain(chainView map[phase0.ValidatorIndex]*apiv1.Validator) {
	r.m.Lock()
	defer r.m.Unlock()
	for index, chainValidator := range chainView {
		if chainValidator == nil || chainValidator.Validator == nil {
			continue
		}
		local, ok := r.validators[chainValidator.Validator.PublicKey]
		if !ok {
			continue
		}
		if local.HasIndex && local.Index != index {
			log.Errorf("refusing index change for %s: %d -> %d",
				local.Pubkey.String(), local.Index, index)
			continue
		}
		local.Index = index
		local.HasIndex = true
		local.Status = chainValidator.Status
	}
}

func (r *Registry) SetFeeRecipient(pubkey phase0.BLSPubKey, feeRecipient bellatrix.ExecutionAddress) error {
	r.m.Lock()
	defer r.m.Unlock()
	v, ok := r.validators[pubkey]
	if !ok {
		return errors.Errorf("unknown validator %s", pubkey.String())
	}
	v.FeeRecipient = feeRecipient
	return nil
}

func (r *Registry) SetGraffiti(pubkey phase0.BLSPubKey, graffiti [32]byte) error {
	r.m.Lock()
	defer r.m.Unlock()
	v, ok := r.validators[pubkey]
	if !ok {
		return errors.Errorf("unknown validator %s", pubkey.String())
	}
	v.Graffiti = graffiti
	return nil
}

func (r *Registry) SetGasLimit(pubkey phase0.BLSPubKey, gasLimit uint64) error {
	r.m.Lock()
	defer r.m.Unlock()
	v, ok := r.validators[pubkey]
	if !ok {
		return errors.Errorf("unknown validator %s", pubkey.String())
	}
	v.GasLimit = gasLimit
	return nil
}

// Get returns a copy.
func (r *Registry) Get(pubkey phase0.BLSPubKey) (Validator, bool) {
	r.m.RLock()
	defer r.m.RUnlock()
	v, ok := r.validators[pubkey]
	if !ok {
		return Validator{}, false
	}
	return *v, true
}

// ByIndex returns a copy of the validator with the given chain index.
func (r *Registry) ByIndex(index phase0.ValidatorIndex) (Validator, bool) {
	r.m.RLock()
	defer r.m.RUnlock()
	for _, v := range r.validators {
		if v.HasIndex && v.Index == index {
			return *v, true
		}
	}
	return Validator{}, false
}

// Snapshot returns a copy of every managed validator.
func (r *Registry) Snapshot() []Validator {
	r.m.RLock()
	defer r.m.RUnlock()
	out := make([]Validator, 0, len(r.validators))
	for _, v := range r.validators {
		out = append(out, *v)
	}
	return out
}

func (r *Registry) Pubkeys() []phase0.BLSPubKey {
	r.m.RLock()
	defer r.m.RUnlock()
	out := make([]phase0.BLSPubKey, 0, len(r.validators))
	for pubkey := range r.validators {
		out = append(out, pubkey)
	}
	return out
}

// ActiveIndices lists the chain indices of every active validator.
func (r *Registry) ActiveIndices() []phase0.ValidatorIndex {
	r.m.RLock()
	defer r.m.RUnlock()
	out := make([]phase0.ValidatorIndex, 0, len(r.validators))
	for _, v := range r.validators {
		if v.Active() {
			out = append(out, v.Index)
		}
	}
	return out
}

// KnownIndices lists the chain indices of every validator with one assigned.
func (r *Registry) KnownIndices() []phase0.ValidatorIndex {
	r.m.RLock()
	defer r.m.RUnlock()
	out := make([]phase0.ValidatorIndex, 0, len(r.validators))
	for _, v := range r.validators {
		if v.HasIndex {
			out = append(out, v.Index)
		}
	}
	return out
}

// HasIndex reports whether the given chain index belongs to a managed
// validator. Used on the slashing detector's fast path.
func (r *Registry) HasIndex(index phase0.ValidatorIndex) bool {
	_, ok := r.ByIndex(index)
	return ok
}

func (r *Registry) Len() int {
	r.m.RLock()
	defer r.m.RUnlock()
	return len(r.validators)
}

// CountByStatus powers the validator_count{status} metric.
func (r *Registry) CountByStatus() map[string]int {
	r.m.RLock()
	defer r.m.RUnlock()
	out := make(map[string]int)
	for _, v := range r.validators {
		out[v.Status.String()]++
	}
	return out
}

// ParseGraffiti pads a UTF-8 string into the 32-byte graffiti field.
func ParseGraffiti(s string) ([32]byte, error) {
	var graffiti [32]byte
	if len(s) > 32 {
		return graffiti, errors.Errorf("graffiti %q longer than 32 bytes", s)
	}
	copy(graffiti[:], s)
	return graffiti, nil
}

// ParseFeeRecipient decodes a 0x-prefixed 20-byte execution address.
func ParseFeeRecipient(s string) (bellatrix.ExecutionAddress, error) {
	var addr bellatrix.ExecutionAddress
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return addr, errors.Wrapf(err, "bad fee recipient %q", s)
	}
	if len(raw) != 20 {
		return addr, errors.Errorf("fee recipient %q is not 20 bytes", s)
	}
	copy(addr[:], raw)
	return addr, nil
}
