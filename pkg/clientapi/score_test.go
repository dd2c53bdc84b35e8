package clientapi

import (
	"context"
	"testing"
	"time"

	"github.com/attestantio/go-eth2-client/api"
	"github.com/pkg/errors"
)

func TestClassifyOutcome(t *testing.T) {
	slow := 4 * time.Second

	tests := []struct {
		name    string
		elapsed time.Duration
		err     error
		want    callOutcome
	}{
		{
			name:    "fast success",
			elapsed: 200 * time.Millisecond,
			want:    outcomeSuccess,
		},
		{
			name:    "slow success",
			elapsed: 5 * time.Second,
			want:    outcomeSlowSuccess,
		},
		{
			name:    "deadline miss",
			elapsed: 4 * time.Second,
			err:     context.DeadlineExceeded,
			want:    outcomeTimeout,
		},
		{
			name:    "wrapped deadline miss",
			elapsed: 4 * time.Second,
			err:     errors.Wrap(context.DeadlineExceeded, "attestation data"),
			want:    outcomeTimeout,
		},
		{
			name:    "server error",
			elapsed: time.Second,
			err:     &api.Error{StatusCode: 503},
			want:    outcomeServerError,
		},
		{
			name:    "client error counts as connection problem",
			elapsed: time.Second,
			err:     errors.New("connection refused"),
			want:    outcomeConnError,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := classifyOutcome(test.elapsed, test.err, slow)
			if got != test.want {
				t.Errorf("classifyOutcome() returned %d, expected %d", got, test.want)
			}
		})
	}
}

func TestScoreOrdering(t *testing.T) {
	// one outcome of each kind, applied to fresh scores, must preserve
	// success > slow success > timeout > 5xx > connection refused
	outcomes := []callOutcome{
		outcomeSuccess,
		outcomeSlowSuccess,
		outcomeTimeout,
		outcomeServerError,
		outcomeConnError,
	}

	// start below max so the success bonus is visible
	prev := ScoreMax + 1
	for _, outcome := range outcomes {
		s := NewScore("test", 12*time.Second)
		s.score.Store(ScoreMax / 2)
		s.apply(outcome)
		if s.Value() >= prev {
			t.Fatalf("outcome %d did not rank below its predecessor: %d >= %d", outcome, s.Value(), prev)
		}
		prev = s.Value()
	}
}

func TestScoreMonotoneOnSuccess(t *testing.T) {
	s := NewScore("test", 12*time.Second)
	s.score.Store(10)

	last := s.Value()
	for i := 0; i < 100; i++ {
		s.apply(outcomeSuccess)
		if s.Value() < last {
			t.Fatalf("success lowered score from %d to %d", last, s.Value())
		}
		last = s.Value()
	}
	if s.Value() != ScoreMax {
		t.Errorf("score did not recover to max, got %d", s.Value())
	}
}

func TestScoreClamped(t *testing.T) {
	s := NewScore("test", 12*time.Second)
	for i := 0; i < 50; i++ {
		s.apply(outcomeConnError)
	}
	if s.Value() != 0 {
		t.Errorf("score not clamped at 0, got %d", s.Value())
	}
	for i := 0; i < 200; i++ {
		s.apply(outcomeSuccess)
	}
	if s.Value() != ScoreMax {
		t.Errorf("score not clamped at max, got %d", s.Value())
	}
}
