package scheduler

import (
	"testing"
	"time"
)

func TestShutdownDelay(t *testing.T) {
	slot := 12 * time.Second

	tests := []struct {
		name         string
		hasProposal  bool
		wantProposal time.Duration
		wantDrain    time.Duration
	}{
		{
			name:         "imminent proposal",
			hasProposal:  true,
			wantProposal: 36 * time.Second,
			wantDrain:    18 * time.Second,
		},
		{
			name:         "no proposal",
			hasProposal:  false,
			wantProposal: 0,
			wantDrain:    18 * time.Second,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			proposal, drain := shutdownDelay(test.hasProposal, slot)
			if proposal != test.wantProposal {
				t.Errorf("proposal budget %s, expected %s", proposal, test.wantProposal)
			}
			if drain != test.wantDrain {
				t.Errorf("drain budget %s, expected %s", drain, test.wantDrain)
			}
		})
	}
}

func TestShutdownDelayGnosisTiming(t *testing.T) {
	// 5s slots: 15s proposal budget, 7.5s drain budget
	proposal, drain := shutdownDelay(true, 5*time.Second)
	if proposal != 15*time.Second {
		t.Errorf("proposal budget %s, expected 15s", proposal)
	}
	if drain != 7500*time.Millisecond {
		t.Errorf("drain budget %s, expected 7.5s", drain)
	}
}
