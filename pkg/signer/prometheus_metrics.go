package signer

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/serenita-org/vero/pkg/metrics"
	"github.com/serenita-org/vero/pkg/utils"
)

var (
	modName    = "signer"
	modDetails = "health of the remote signer"

	RemoteSignerScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: strings.ToLower(utils.CliName),
		Name:      "remote_signer_score",
		Help:      "Running health score of the remote signer (0-100)",
	})
)

func (s *RemoteSigner) GetPrometheusMetrics() *metrics.MetricsModule {
	metricsMod := metrics.NewMetricsModule(
		modName,
		modDetails,
	)
	metricsMod.AddIndvMetric(s.scoreMetric())
	return metricsMod
}

func (s *RemoteSigner) scoreMetric() *metrics.IndvMetrics {
	initFn := func() error {
		prometheus.MustRegister(RemoteSignerScore)
		return nil
	}

	updateFn := func() (interface{}, error) {
		score := s.Score()
		RemoteSignerScore.Set(float64(score))
		return score, nil
	}

	indvMetr, err := metrics.NewIndvMetrics(
		"remote_signer_score",
		initFn,
		updateFn,
	)
	if err != nil {
		log.Error(errors.Wrap(err, "unable to init remote_signer_score"))
		return nil
	}

	return indvMetr
}
