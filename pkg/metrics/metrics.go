package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	log = logrus.WithField(
		"module", "metrics",
	)

	updateInterval = 15 * time.Second
)

// IndvMetrics is a single exported value: an init hook that registers the
// collector and an update hook that refreshes it.
type IndvMetrics struct {
	name     string
	initFn   func() error
	updateFn func() (interface{}, error)
}

func NewIndvMetrics(name string, initFn func() error, updateFn func() (interface{}, error)) (*IndvMetrics, error) {
	if initFn == nil || updateFn == nil {
		return nil, errors.Errorf("metric %s is missing an init or update function", name)
	}
	return &IndvMetrics{
		name:     name,
		initFn:   initFn,
		updateFn: updateFn,
	}, nil
}

// MetricsModule groups the individual metrics of one component.
type MetricsModule struct {
	name    string
	details string
	metrics []*IndvMetrics
}

func NewMetricsModule(name string, details string) *MetricsModule {
	return &MetricsModule{
		name:    name,
		details: details,
		metrics: make([]*IndvMetrics, 0),
	}
}

func (m *MetricsModule) AddIndvMetric(metric *IndvMetrics) {
	if metric == nil {
		return
	}
	m.metrics = append(m.metrics, metric)
}

func (m *MetricsModule) init() {
	for _, metric := range m.metrics {
		if err := metric.initFn(); err != nil {
			log.Error(errors.Wrapf(err, "unable to init metric %s/%s", m.name, metric.name))
		}
	}
}

func (m *MetricsModule) update() {
	for _, metric := range m.metrics {
		value, err := metric.updateFn()
		if err != nil {
			log.Error(errors.Wrapf(err, "unable to update metric %s/%s", m.name, metric.name))
			continue
		}
		log.Tracef("updated metric %s/%s: %v", m.name, metric.name, value)
	}
}

// PrometheusMetrics exposes /metrics and keeps the registered modules fresh.
type PrometheusMetrics struct {
	ctx     context.Context
	address string
	port    int
	modules []*MetricsModule
}

func NewPrometheusMetrics(ctx context.Context, address string, port int) *PrometheusMetrics {
	return &PrometheusMetrics{
		ctx:     ctx,
		address: address,
		port:    port,
		modules: make([]*MetricsModule, 0),
	}
}

func (p *PrometheusMetrics) AddMetricsModule(mod *MetricsModule) {
	if mod == nil {
		return
	}
	p.modules = append(p.modules, mod)
}

func (p *PrometheusMetrics) Start() {
	for _, mod := range p.modules {
		mod.init()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", p.address, p.port),
		Handler: mux,
	}

	go func() {
		log.Infof("serving prometheus metrics at %s/metrics", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(errors.Wrap(err, "metrics endpoint stopped"))
		}
	}()

	go func() {
		ticker := time.NewTicker(updateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, mod := range p.modules {
					mod.update()
				}
			case <-p.ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
				return
			}
		}
	}()
}
