package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bgricker/matchpipe/internal/report"
)

const namespace = "matchpipe"

// Result label values for the cycles counter.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultAborted = "aborted"
)

// Prometheus mirrors the accumulator into a dedicated registry.
type Prometheus struct {
	registry *prometheus.Registry

	cycles              *prometheus.CounterVec
	cycleDuration       prometheus.Histogram
	stageDuration       *prometheus.HistogramVec
	stageFailures       *prometheus.CounterVec
	records             prometheus.Counter
	consecutiveFailures prometheus.Gauge
	lastSuccess         prometheus.Gauge
}

// NewPrometheus registers the pipeline collectors on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Pipeline cycles completed, by result.",
			},
			[]string{"result"},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Wall-clock time of a pipeline cycle.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall-clock time of a single stage.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"stage"},
		),
		stageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Stage invocations that failed.",
			},
			[]string{"stage"},
		),
		records: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Records reported by successful cycles.",
			},
		),
		consecutiveFailures: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "consecutive_failures",
				Help:      "Current run of failed cycles.",
			},
		),
		lastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful cycle.",
			},
		),
	}
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) observe(res report.CycleResult) {
	switch {
	case res.Success:
		p.cycles.WithLabelValues(ResultSuccess).Inc()
		if res.Records > 0 {
			p.records.Add(float64(res.Records))
		}
		p.lastSuccess.Set(float64(res.StartedAt.Add(res.TotalTime).Unix()))
	case res.Aborted:
		p.cycles.WithLabelValues(ResultAborted).Inc()
	default:
		p.cycles.WithLabelValues(ResultFailed).Inc()
	}
	p.cycleDuration.Observe(res.TotalTime.Seconds())
	for _, o := range res.Stages {
		p.stageDuration.WithLabelValues(o.Name).Observe(o.Duration.Seconds())
		if !o.Success {
			p.stageFailures.WithLabelValues(o.Name).Inc()
		}
	}
}
