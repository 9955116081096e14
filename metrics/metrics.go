// Package metrics exposes migration runs as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/root-talis/henka/v2"
	"github.com/root-talis/henka/v2/migration"
)

const (
	namespace = "henka"

	LabelSuccess = "success"
	LabelFailure = "failure"
)

// RunnerMetrics holds metrics of executed migrations.
type RunnerMetrics struct {
	Migrations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Runs       *prometheus.CounterVec
}

func NewRunnerMetrics() *RunnerMetrics {
	return &RunnerMetrics{
		Migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Count of executed migrations",
		}, []string{"direction", "result"}),

		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "migration_duration_seconds",
			Help:      "Histogram of times spent executing successful migrations",
			Buckets:   prometheus.ExponentialBuckets(1e-3, 5, 8),
		}, []string{"direction"}),

		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Count of migration batches handed to the runner",
		}, []string{"direction", "result"}),
	}
}

func (rm *RunnerMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		rm.Migrations,
		rm.Duration,
		rm.Runs,
	}
}

// Register adds all collectors to reg.
func (rm *RunnerMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range rm.PrometheusCollectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Instrument wraps next so every batch it runs is recorded in rm. The failed
// unit of a batch, if any, is counted once with the failure label.
func Instrument[DB any](rm *RunnerMetrics, next henka.Runner[DB]) henka.Runner[DB] {
	return func(ctx context.Context, args henka.RunArgs[DB]) (migration.Report, error) {
		report, err := next(ctx, args)

		direction := args.Direction.String()
		for _, info := range report {
			rm.Migrations.WithLabelValues(direction, LabelSuccess).Inc()
			rm.Duration.WithLabelValues(direction).Observe(info.Duration.Seconds())
		}

		result := LabelSuccess
		if err != nil {
			result = LabelFailure
			rm.Migrations.WithLabelValues(direction, LabelFailure).Inc()
		}
		rm.Runs.WithLabelValues(direction, result).Inc()

		return report, err
	}
}
