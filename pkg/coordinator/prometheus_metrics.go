package coordinator

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/serenita-org/vero/pkg/utils"
)

var (
	AttestationConsensusTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: strings.ToLower(utils.CliName),
		Name:      "attestation_consensus_time_seconds",
		Help:      "Time to reach threshold agreement on attestation data",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2, 4, 8},
	})
	AttestationConsensusFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: strings.ToLower(utils.CliName),
		Name:      "attestation_consensus_failures_total",
		Help:      "Slots where the attestation consensus threshold was not reached in time",
	})
)

func init() {
	prometheus.MustRegister(AttestationConsensusTime)
	prometheus.MustRegister(AttestationConsensusFailures)
}
