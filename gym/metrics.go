package gym

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	instances prometheus.Gauge
	steps     *prometheus.CounterVec
	episodes  *prometheus.CounterVec
}

// newMetrics registers the server metrics on reg, each server gets its own registry
func newMetrics(reg *prometheus.Registry) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gym_requests_total",
				Help: "Total number of requests by route and status code",
			},
			[]string{"route", "code"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gym_request_duration_seconds",
				Help:    "Duration of requests by route",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"route"},
		),
		instances: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "gym_instances",
				Help: "Number of live environment instances",
			},
		),
		steps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gym_steps_total",
				Help: "Total number of steps taken by environment id",
			},
			[]string{"env_id"},
		),
		episodes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gym_episodes_total",
				Help: "Total number of finished episodes by environment id",
			},
			[]string{"env_id"},
		),
	}
}
