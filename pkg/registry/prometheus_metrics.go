package registry

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/serenita-org/vero/pkg/metrics"
	"github.com/serenita-org/vero/pkg/utils"
)

var (
	modName    = "validators"
	modDetails = "managed validator set"

	ValidatorCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: strings.ToLower(utils.CliName),
		Name:      "validator_count",
		Help:      "Number of managed validators by chain status",
	}, []string{"status"})
)

func (r *Registry) GetPrometheusMetrics() *metrics.MetricsModule {
	metricsMod := metrics.NewMetricsModule(
		modName,
		modDetails,
	)
	metricsMod.AddIndvMetric(r.countMetric())
	return metricsMod
}

func (r *Registry) countMetric() *metrics.IndvMetrics {
	initFn := func() error {
		prometheus.MustRegister(ValidatorCount)
		return nil
	}

	updateFn := func() (interface{}, error) {
		counts := r.CountByStatus()
		ValidatorCount.Reset()
		for status, count := range counts {
			ValidatorCount.WithLabelValues(status).Set(float64(count))
		}
		return counts, nil
	}

	indvMetr, err := metrics.NewIndvMetrics(
		"validator_count",
		initFn,
		updateFn,
	)
	if err != nil {
		log.Error(errors.Wrap(err, "unable to init validator_count"))
		return nil
	}

	return indvMetr
}
