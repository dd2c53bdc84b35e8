package events

import (
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/serenita-org/vero/pkg/utils"
)

var SlashingDetected = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: strings.ToLower(utils.CliName),
	Name:      "slashing_detected",
	Help:      "1 once a slashing involving a managed validator has been observed",
})

func init() {
	prometheus.MustRegister(SlashingDetected)
}

// SafetyLatch is the process-wide slashing interlock. It is write-once:
// once set it stays set until the process exits. Every duty executor reads
// it on its fast path before requesting a signature.
type SafetyLatch struct {
	detected atomic.Bool
	// ----DANGER----disable-slashing-detection
	disabled bool
}

func NewSafetyLatch(detectionDisabled bool) *SafetyLatch {
	if detectionDisabled {
		log.Error("slashing detection is DISABLED - the process will keep signing after observing a slashing")
	}
	return &SafetyLatch{disabled: detectionDisabled}
}

// Set latches the flag. With detection disabled the event is logged but the
// latch stays open.
func (l *SafetyLatch) Set(reason string) {
	if l.disabled {
		log.Errorf("slashing detected (%s) but detection is disabled, duties continue", reason)
		return
	}
	if l.detected.CompareAndSwap(false, true) {
		SlashingDetected.Set(1)
		log.Errorf("SLASHING DETECTED (%s) - all duties are frozen", reason)
	}
}

func (l *SafetyLatch) Detected() bool {
	return l.detected.Load()
}
