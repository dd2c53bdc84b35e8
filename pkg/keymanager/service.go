package keymanager

import (
	"context"

	"github.com/attestantio/go-eth2-client/spec/bellatrix"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"

	"github.com/serenita-org/vero/pkg/registry"
	"github.com/serenita-org/vero/pkg/signer"
)

// ExitSubmitter is the slice of the coordinator used for voluntary exits.
type ExitSubmitter interface {
	SubmitVoluntaryExit(ctx context.Context, exit *phase0.SignedVoluntaryExit) error
}

// Service applies keymanager operations to the validator registry and the
// persisted remote-key store. The HTTP surface lives elsewhere; these are
// its effects.
type Service struct {
	store    *Store
	registry *registry.Registry
	signer   *signer.RemoteSigner
	exits    ExitSubmitter
}

func NewService(store *Store, reg *registry.Registry, remoteSigner *signer.RemoteSigner, exits ExitSubmitter) *Service {
	return &Service{
		store:    store,
		registry: reg,
		signer:   remoteSigner,
		exits:    exits,
	}
}

// LoadPersistedKeys inserts every stored remote key into the registry at
// start-up.
func (s *Service) LoadPersistedKeys() error {
	for _, key := range s.store.List() {
		pubkey, err := parsePubkey(key.Pubkey)
		if err != nil {
			return err
		}
		s.registry.Add(pubkey, false)
	}
	return nil
}

// ImportRemoteKey registers a new key at runtime. The key bypasses the
// doppelganger guard for this process lifetime; the next start-up covers it.
func (s *Service) ImportRemoteKey(pubkeyHex string, signerURL string) error {
	pubkey, err := parsePubkey(pubkeyHex)
	if err != nil {
		return err
	}
	if err := s.store.Add(RemoteKey{Pubkey: pubkeyHex, URL: signerURL}); err != nil {
		return err
	}
	s.registry.Add(pubkey, true)
	log.Infof("imported remote key %s", pubkeyHex)
	return nil
}

// DeleteRemoteKey removes a key from the registry and the persisted store.
func (s *Service) DeleteRemoteKey(pubkeyHex string) error {
	pubkey, err := parsePubkey(pubkeyHex)
	if err != nil {
		return err
	}
	if err := s.store.Delete(pubkeyHex); err != nil {
		return err
	}
	s.registry.Remove(pubkey)
	log.Infof("deleted remote key %s", pubkeyHex)
	return nil
}

func (s *Service) SetFeeRecipient(pubkeyHex string, feeRecipient bellatrix.ExecutionAddress) error {
	pubkey, err := parsePubkey(pubkeyHex)
	if err != nil {
		return err
	}
	return s.registry.SetFeeRecipient(pubkey, feeRecipient)
}

func (s *Service) SetGraffiti(pubkeyHex string, graffiti [32]byte) error {
	pubkey, err := parsePubkey(pubkeyHex)
	if err != nil {
		return err
	}
	return s.registry.SetGraffiti(pubkey, graffiti)
}

func (s *Service) SetGasLimit(pubkeyHex string, gasLimit uint64) error {
	pubkey, err := parsePubkey(pubkeyHex)
	if err != nil {
		return err
	}
	return s.registry.SetGasLimit(pubkey, gasLimit)
}

// SignVoluntaryExit produces and broadcasts a one-shot signed exit for a
// managed validator.
func (s *Service) SignVoluntaryExit(ctx context.Context, pubkeyHex string, epoch phase0.Epoch) error {
	pubkey, err := parsePubkey(pubkeyHex)
	if err != nil {
		return err
	}
	validator, ok := s.registry.Get(pubkey)
	if !ok {
		return errors.Errorf("unknown validator %s", pubkeyHex)
	}
	if !validator.HasIndex {
		return errors.Errorf("validator %s has no chain index yet", pubkeyHex)
	}

	exit := &phase0.VoluntaryExit{
		Epoch:          epoch,
		ValidatorIndex: validator.Index,
	}
	signature, err := s.signer.SignVoluntaryExit(ctx, pubkey, exit)
	if err != nil {
		return errors.Wrap(err, "unable to sign voluntary exit")
	}

	signed := &phase0.SignedVoluntaryExit{
		Message:   exit,
		Signature: signature,
	}
	if err := s.exits.SubmitVoluntaryExit(ctx, signed); err != nil {
		return errors.Wrap(err, "unable to broadcast voluntary exit")
	}
	log.Warnf("voluntary exit broadcast for validator %d", validator.Index)
	return nil
}

func parsePubkey(pubkeyHex string) (phase0.BLSPubKey, error) {
	var pubkey phase0.BLSPubKey
	if err := pubkey.UnmarshalJSON([]byte(`"` + pubkeyHex + `"`)); err != nil {
		return pubkey, errors.Wrapf(err, "bad pubkey %s", pubkeyHex)
	}
	return pubkey, nil
}
