package scheduler

import (
	"context"
	"time"

	"github.com/attestantio/go-eth2-client/api"
	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	eth2spec "github.com/attestantio/go-eth2-client/spec"
)

// registerValidators signs and publishes builder registrations for every
// active validator. Runs once per epoch when the external builder is in use.
func (s *Scheduler) registerValidators(ctx context.Context) {
	registrations := make([]*api.VersionedSignedValidatorRegistration, 0)
	now := time.Now()

	for _, validator := range s.registry.Snapshot() {
		if !validator.Active() {
			continue
		}
		registration := &apiv1.ValidatorRegistration{
			FeeRecipient: validator.FeeRecipient,
			GasLimit:     validator.GasLimit,
			Timestamp:    now,
			Pubkey:       validator.Pubkey,
		}
		signature, err := s.signer.SignValidatorRegistration(ctx, validator.Pubkey, registration)
		if err != nil {
			log.Errorf("registration signing for %s failed: %s", validator.Pubkey.String(), err)
			continue
		}
		registrations = append(registrations, &api.VersionedSignedValidatorRegistration{
			Version: eth2spec.BuilderVersionV1,
			V1: &apiv1.SignedValidatorRegistration{
				Message:   registration,
				Signature: signature,
			},
		})
	}

	if len(registrations) == 0 {
		return
	}
	if err := s.pool.SubmitValidatorRegistrations(ctx, registrations); err != nil {
		log.Errorf("validator registration submission failed: %s", err)
		return
	}
	log.Infof("published %d validator registrations", len(registrations))
}
