package scheduler

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/serenita-org/vero/pkg/utils"
)

var DutySubmissionTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: strings.ToLower(utils.CliName),
	Name:      "duty_submission_time_seconds",
	Help:      "Time from duty start to accepted submission, by duty kind",
	Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8, 12},
}, []string{"duty"})

func init() {
	prometheus.MustRegister(DutySubmissionTime)
}
