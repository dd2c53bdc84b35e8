package clientapi

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/serenita-org/vero/pkg/metrics"
	"github.com/serenita-org/vero/pkg/utils"
)

var (
	modName    = "beacon_nodes"
	modDetails = "health of the connected beacon nodes"

	BeaconNodeScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: strings.ToLower(utils.CliName),
		Name:      "beacon_node_score",
		Help:      "Running health score of each beacon node (0-100)",
	}, []string{"node"})
)

// NodeSetMetrics exports the score of every configured node.
func NodeSetMetrics(nodes []*BeaconNode) *metrics.MetricsModule {
	metricsMod := metrics.NewMetricsModule(
		modName,
		modDetails,
	)
	metricsMod.AddIndvMetric(nodeScores(nodes))
	return metricsMod
}

func nodeScores(nodes []*BeaconNode) *metrics.IndvMetrics {
	initFn := func() error {
		prometheus.MustRegister(BeaconNodeScore)
		return nil
	}

	updateFn := func() (interface{}, error) {
		scores := make(map[string]int, len(nodes))
		for _, node := range nodes {
			score := node.Score()
			scores[node.Name] = score
			BeaconNodeScore.WithLabelValues(node.Name).Set(float64(score))
		}
		return scores, nil
	}

	indvMetr, err := metrics.NewIndvMetrics(
		"beacon_node_score",
		initFn,
		updateFn,
	)
	if err != nil {
		log.Error(errors.Wrap(err, "unable to init beacon_node_score"))
		return nil
	}

	return indvMetr
}
