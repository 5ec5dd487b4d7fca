package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rewired-gh/reappoint/internal/classifier"
	"github.com/rewired-gh/reappoint/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readTextfile(t *testing.T, r *Recorder) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "textfile", "reappoint.prom")
	require.NoError(t, r.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRecorderClassification(t *testing.T) {
	r := New()
	r.ObserveClassification(classifier.Stats{
		Records:               300,
		Reappointments:        75,
		InvalidYears:          2,
		SentinelSubstitutions: 4,
	})

	out := readTextfile(t, r)
	assert.Contains(t, out, "reappoint_records_ingested_total 300\n")
	assert.Contains(t, out, "reappoint_reappointments_total 75\n")
	assert.Contains(t, out, "reappoint_invalid_years_total 2\n")
	assert.Contains(t, out, "reappoint_sentinel_substitutions_total 4\n")
}

func TestRecorderTrend(t *testing.T) {
	r := New()
	r.ObserveTrend(&models.TrendResult{Slope: 0.05, PValue: 0.25, RSquared: 0.5, Significant: false})

	out := readTextfile(t, r)
	assert.Contains(t, out, "reappoint_trend_fitted 1\n")
	assert.Contains(t, out, "reappoint_trend_slope 0.05\n")
	assert.Contains(t, out, "reappoint_trend_p_value 0.25\n")
	assert.Contains(t, out, "reappoint_trend_r_squared 0.5\n")
	assert.Contains(t, out, "reappoint_trend_significant 0\n")

	r.ObserveTrend(nil)
	out = readTextfile(t, r)
	assert.Contains(t, out, "reappoint_trend_fitted 0\n")
}

func TestRecorderStageDuration(t *testing.T) {
	r := New()
	r.Time(StageClassify).ObserveDuration()
	r.Time(StageTrend).ObserveDuration()

	families, err := r.registry.Gather()
	require.NoError(t, err)

	var stages []string
	for _, f := range families {
		if f.GetName() != "reappoint_stage_duration_seconds" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "stage" {
					stages = append(stages, l.GetValue())
				}
			}
			assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
		}
	}
	assert.ElementsMatch(t, []string{StageClassify, StageTrend}, stages)
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObserveClassification(classifier.Stats{Records: 10})

	assert.Contains(t, readTextfile(t, a), "reappoint_records_ingested_total 10\n")
	assert.Contains(t, readTextfile(t, b), "reappoint_records_ingested_total 0\n")
}
