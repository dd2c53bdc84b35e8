package doppelganger

import (
	"context"
	"testing"

	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"
)

type fakeLiveness struct {
	data []*apiv1.ValidatorLiveness
	err  error
}

func (f *fakeLiveness) ValidatorLiveness(_ context.Context, _ phase0.Epoch, _ []phase0.ValidatorIndex) ([]*apiv1.ValidatorLiveness, error) {
	return f.data, f.err
}

func TestAnyLive(t *testing.T) {
	tests := []struct {
		name string
		data []*apiv1.ValidatorLiveness
		want bool
	}{
		{
			name: "all quiet",
			data: []*apiv1.ValidatorLiveness{
				{Index: 1, IsLive: false},
				{Index: 2, IsLive: false},
			},
			want: false,
		},
		{
			name: "one live",
			data: []*apiv1.ValidatorLiveness{
				{Index: 1, IsLive: false},
				{Index: 2, IsLive: true},
			},
			want: true,
		},
		{
			name: "empty response",
			data: nil,
			want: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			index, live := anyLive(test.data)
			if live != test.want {
				t.Errorf("anyLive() = %v, expected %v", live, test.want)
			}
			if live && index != 2 {
				t.Errorf("anyLive() reported index %d, expected 2", index)
			}
		})
	}
}

func TestCheckEpochDetects(t *testing.T) {
	g := &Guard{
		provider: &fakeLiveness{data: []*apiv1.ValidatorLiveness{{Index: 7, IsLive: true}}},
	}

	err := g.checkEpoch(context.Background(), 10, []phase0.ValidatorIndex{7})
	if !errors.Is(err, ErrDetected) {
		t.Fatalf("expected ErrDetected, got %v", err)
	}
}

func TestCheckEpochQuiet(t *testing.T) {
	g := &Guard{
		provider: &fakeLiveness{data: []*apiv1.ValidatorLiveness{{Index: 7, IsLive: false}}},
	}

	if err := g.checkEpoch(context.Background(), 10, []phase0.ValidatorIndex{7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckEpochToleratesProviderErrors(t *testing.T) {
	g := &Guard{
		provider: &fakeLiveness{err: errors.New("all beacon nodes down")},
	}

	// an unreachable endpoint must not be treated as a detection
	if err := g.checkEpoch(context.Background(), 10, []phase0.ValidatorIndex{7}); err != nil {
		t.Fatalf("provider error surfaced as detection: %v", err)
	}
}

func TestDisabledGuardReturnsImmediately(t *testing.T) {
	g := &Guard{enabled: false}
	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("disabled guard returned error: %v", err)
	}
}
