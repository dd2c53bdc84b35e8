package clientapi

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/attestantio/go-eth2-client/api"
	"github.com/pkg/errors"
)

// Score constants. The magnitudes are tunable; what matters is the order
// of outcomes: success > slow success > timeout > 5xx > connection refused.
const (
	ScoreMax          = 100
	degradedThreshold = 20

	bonusSuccess       = 2
	bonusSlowSuccess   = 1
	penaltyTimeout     = 4
	penaltyServerError = 8
	penaltyConnError   = 12
)

type callOutcome int8

const (
	outcomeSuccess callOutcome = iota
	outcomeSlowSuccess
	outcomeTimeout
	outcomeServerError
	outcomeConnError
)

// Score is the running health score of one upstream (beacon node or remote
// signer). Written only by the owning client, read by anyone.
type Score struct {
	name          string
	slowThreshold time.Duration
	score         atomic.Int64
	lastSuccessNs atomic.Int64
}

func NewScore(name string, slotDuration time.Duration) *Score {
	s := &Score{
		name:          name,
		slowThreshold: slotDuration / 3,
	}
	s.score.Store(ScoreMax)
	return s
}

func (s *Score) Value() int {
	return int(s.score.Load())
}

func (s *Score) LastSuccess() time.Time {
	ns := s.lastSuccessNs.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (s *Score) apply(outcome callOutcome) {
	var delta int64
	switch outcome {
	case outcomeSuccess:
		delta = bonusSuccess
	case outcomeSlowSuccess:
		delta = bonusSlowSuccess
	case outcomeTimeout:
		delta = -penaltyTimeout
	case outcomeServerError:
		delta = -penaltyServerError
	case outcomeConnError:
		delta = -penaltyConnError
	}

	for {
		old := s.score.Load()
		next := old + delta
		if next > ScoreMax {
			next = ScoreMax
		}
		if next < 0 {
			next = 0
		}
		if s.score.CompareAndSwap(old, next) {
			break
		}
	}

	if outcome == outcomeSuccess || outcome == outcomeSlowSuccess {
		s.lastSuccessNs.Store(time.Now().UnixNano())
	}
}

// Observe classifies one finished call and folds it into the score.
func (s *Score) Observe(start time.Time, err error) {
	s.apply(classifyOutcome(time.Since(start), err, s.slowThreshold))
}

func classifyOutcome(elapsed time.Duration, err error, slowThreshold time.Duration) callOutcome {
	if err == nil {
		if elapsed > slowThreshold {
			return outcomeSlowSuccess
		}
		return outcomeSuccess
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return outcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return outcomeTimeout
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 500 {
		return outcomeServerError
	}
	return outcomeConnError
}
