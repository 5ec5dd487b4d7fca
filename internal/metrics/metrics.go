// Package metrics provides Prometheus metrics for a pipeline run.
//
// A batch run has no scrape endpoint, so the metrics are kept on a private
// registry and written to a node-exporter textfile when the run ends.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rewired-gh/reappoint/internal/classifier"
	"github.com/rewired-gh/reappoint/internal/models"
)

const namespace = "reappoint"

// Pipeline stages timed by the stage duration histogram
const (
	StageLoad      = "load"
	StageClassify  = "classify"
	StageAggregate = "aggregate"
	StageTrend     = "trend"
	StageStore     = "store"
)

// Recorder owns the metrics of one run.
type Recorder struct {
	registry *prometheus.Registry

	recordsIngested       prometheus.Counter
	reappointments        prometheus.Counter
	invalidYears          prometheus.Counter
	sentinelSubstitutions prometheus.Counter

	trendFitted      prometheus.Gauge
	trendSlope       prometheus.Gauge
	trendPValue      prometheus.Gauge
	trendRSquared    prometheus.Gauge
	trendSignificant prometheus.Gauge

	stageDuration *prometheus.HistogramVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}
	auto := promauto.With(r.registry)

	r.recordsIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_ingested_total",
		Help:      "Total number of appointment records read from the input",
	})
	r.reappointments = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reappointments_total",
		Help:      "Total number of records classified as reappointments",
	})
	r.invalidYears = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invalid_years_total",
		Help:      "Total number of records with a missing, unparseable or out-of-range year",
	})
	r.sentinelSubstitutions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sentinel_substitutions_total",
		Help:      "Total number of empty identity fields replaced by a sentinel",
	})

	r.trendFitted = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trend_fitted",
		Help:      "1 when the run produced a trend, 0 otherwise",
	})
	r.trendSlope = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trend_slope",
		Help:      "Fitted change in reappointment proportion per year",
	})
	r.trendPValue = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trend_p_value",
		Help:      "Two-tailed p-value of the trend slope",
	})
	r.trendRSquared = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trend_r_squared",
		Help:      "Coefficient of determination of the trend",
	})
	r.trendSignificant = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trend_significant",
		Help:      "1 when the trend slope is significant at the configured alpha",
	})

	r.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of each pipeline stage in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"stage"})

	return r
}

// ObserveClassification records the outcome of the classifier.
func (r *Recorder) ObserveClassification(stats classifier.Stats) {
	r.recordsIngested.Add(float64(stats.Records))
	r.reappointments.Add(float64(stats.Reappointments))
	r.invalidYears.Add(float64(stats.InvalidYears))
	r.sentinelSubstitutions.Add(float64(stats.SentinelSubstitutions))
}

// ObserveTrend records the fitted trend; nil marks the trend as not fitted.
func (r *Recorder) ObserveTrend(result *models.TrendResult) {
	if result == nil {
		r.trendFitted.Set(0)
		return
	}
	r.trendFitted.Set(1)
	r.trendSlope.Set(result.Slope)
	r.trendPValue.Set(result.PValue)
	r.trendRSquared.Set(result.RSquared)
	if result.Significant {
		r.trendSignificant.Set(1)
	} else {
		r.trendSignificant.Set(0)
	}
}

// Time starts timing a stage; call ObserveDuration on the result when the
// stage ends.
func (r *Recorder) Time(stage string) *prometheus.Timer {
	return prometheus.NewTimer(r.stageDuration.WithLabelValues(stage))
}

// WriteTextfile writes the metrics in the text exposition format. The file
// is replaced atomically, as the node exporter textfile collector expects.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
