package trend

import (
	"errors"
	"math"
	"testing"

	"github.com/rewired-gh/reappoint/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(start int, values ...float64) []Point {
	points := make([]Point, len(values))
	for i, v := range values {
		points[i] = Point{Year: start + i, Value: v}
	}
	return points
}

func TestFitPerfectLine(t *testing.T) {
	var points []Point
	for x := 0; x < 10; x++ {
		points = append(points, Point{Year: 2013 + x, Value: 2*float64(x) + 1})
	}

	r, err := Fit(points, DefaultOptions())
	require.NoError(t, err)

	assert.InDelta(t, 2.0, r.Slope, 1e-9)
	assert.InDelta(t, 1.0, r.Intercept, 1e-9)
	assert.InDelta(t, 1.0, r.RSquared, 1e-9)
	assert.InDelta(t, 1.0, r.Correlation, 1e-9)
	assert.InDelta(t, 0.0, r.PValue, 1e-9)
	assert.Equal(t, 2013, r.BaseYear)
	assert.Equal(t, 8, r.DegreesOfFreedom)
	assert.Equal(t, models.DirectionIncreasing, r.Direction)
	assert.True(t, r.Significant)
	assert.Equal(t, models.EffectLarge, r.EffectSize)
	assert.InDelta(t, 2.0, r.ConfidenceInterval.Lower, 1e-6)
	assert.InDelta(t, 2.0, r.ConfidenceInterval.Upper, 1e-6)
	assert.Equal(t, models.AutocorrelationUndefined, r.Diagnostics.Autocorrelation)
	assert.False(t, r.Diagnostics.NormalityTested)
	for _, e := range r.Residuals {
		assert.InDelta(t, 0.0, e, 1e-9)
	}
	require.NoError(t, r.Validate())
}

func TestFitFlatSeries(t *testing.T) {
	r, err := Fit(series(2013, 0.3, 0.3, 0.3, 0.3, 0.3), DefaultOptions())
	require.NoError(t, err)

	assert.InDelta(t, 0.0, r.Slope, 1e-12)
	assert.InDelta(t, 0.3, r.Intercept, 1e-12)
	assert.Equal(t, models.DirectionNoChange, r.Direction)
	assert.False(t, r.Significant)
	assert.Equal(t, 1.0, r.PValue)
	assert.Equal(t, 0.0, r.RSquared)
	assert.Equal(t, models.EffectNegligible, r.EffectSize)
	assert.Equal(t, []float64{0.3, 0.3, 0.3, 0.3, 0.3}, r.PredictedValues)
	require.NoError(t, r.Validate())
}

func TestFitAnnualScenario(t *testing.T) {
	// 2013: 20/100, 2014: 25/100, 2015: 30/100
	r, err := Fit(series(2013, 0.20, 0.25, 0.30), DefaultOptions())
	require.NoError(t, err)

	assert.InDelta(t, 0.05, r.Slope, 1e-9)
	assert.InDelta(t, 0.20, r.Intercept, 1e-9)
	assert.Equal(t, models.DirectionIncreasing, r.Direction)
	assert.Equal(t, 1, r.DegreesOfFreedom)
	assert.InDelta(t, 0.10, r.TotalChange(), 1e-9)
}

func TestFitNoisySeries(t *testing.T) {
	r, err := Fit(series(2013, 0.10, 0.14, 0.13, 0.18, 0.17, 0.22), DefaultOptions())
	require.NoError(t, err)

	assert.InDelta(t, 0.0211428571, r.Slope, 1e-9)
	assert.InDelta(t, 0.1038095238, r.Intercept, 1e-9)
	assert.InDelta(t, 0.9357846781, r.Correlation, 1e-9)
	assert.InDelta(t, 0.8756929638, r.RSquared, 1e-9)
	assert.InDelta(t, 0.0039829569, r.StandardError, 1e-9)
	assert.InDelta(t, 5.3083319084, r.TStatistic, 1e-6)
	assert.InDelta(t, 0.0060530120, r.PValue, 1e-6)
	assert.InDelta(t, 0.0100843960, r.ConfidenceInterval.Lower, 1e-6)
	assert.InDelta(t, 0.0322013183, r.ConfidenceInterval.Upper, 1e-6)
	assert.Equal(t, 0.95, r.ConfidenceInterval.Level)
	assert.Equal(t, 4, r.DegreesOfFreedom)
	assert.True(t, r.Significant)
	assert.Equal(t, models.EffectLarge, r.EffectSize)

	// Alternating residuals: strong negative autocorrelation
	assert.InDelta(t, 3.5667728498, r.Diagnostics.DurbinWatson, 1e-6)
	assert.Equal(t, models.AutocorrelationNegative, r.Diagnostics.Autocorrelation)
	assert.Empty(t, r.Diagnostics.Outliers)
	assert.True(t, r.Diagnostics.NormalityTested)
	assert.InDelta(t, 0.7687849715, r.Diagnostics.JarqueBera, 1e-6)
	assert.InDelta(t, 0.6808641452, r.Diagnostics.NormalityPValue, 1e-6)

	require.NoError(t, r.Validate())
}

func TestFitSignificanceRespectsAlpha(t *testing.T) {
	opts := DefaultOptions()
	opts.Alpha = 0.001

	r, err := Fit(series(2013, 0.10, 0.14, 0.13, 0.18, 0.17, 0.22), opts)
	require.NoError(t, err)
	assert.False(t, r.Significant)
	assert.Equal(t, models.DirectionIncreasing, r.Direction)
}

func TestFitDecreasing(t *testing.T) {
	r, err := Fit(series(2013, 0.40, 0.36, 0.33, 0.27, 0.25), DefaultOptions())
	require.NoError(t, err)
	assert.Less(t, r.Slope, 0.0)
	assert.Equal(t, models.DirectionDecreasing, r.Direction)
	assert.Less(t, r.Correlation, 0.0)
	assert.Less(t, r.ConfidenceInterval.Upper, 0.0)
}

func TestFitOutlier(t *testing.T) {
	r, err := Fit(series(0, 0.20, 0.21, 0.22, 0.23, 0.24, 0.40, 0.26, 0.27), DefaultOptions())
	require.NoError(t, err)

	require.Len(t, r.Diagnostics.Outliers, 1)
	assert.Equal(t, 5, r.Diagnostics.Outliers[0].Year)
	assert.InDelta(t, 2.22, r.Diagnostics.Outliers[0].Standardized, 0.01)

	opts := DefaultOptions()
	opts.OutlierZ = 3
	r, err = Fit(series(0, 0.20, 0.21, 0.22, 0.23, 0.24, 0.40, 0.26, 0.27), opts)
	require.NoError(t, err)
	assert.Empty(t, r.Diagnostics.Outliers)
}

func TestFitUnsortedInput(t *testing.T) {
	points := []Point{{2015, 0.30}, {2013, 0.20}, {2014, 0.25}}
	r, err := Fit(points, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []int{2013, 2014, 2015}, r.Years)
	assert.InDelta(t, 0.05, r.Slope, 1e-9)
	// Input untouched
	assert.Equal(t, 2015, points[0].Year)
}

func TestFitErrors(t *testing.T) {
	tests := []struct {
		name    string
		points  []Point
		wantErr error
	}{
		{name: "no points", points: nil, wantErr: ErrInsufficientData},
		{name: "two points", points: series(2013, 0.1, 0.2), wantErr: ErrInsufficientData},
		{name: "single year", points: []Point{{2013, 0.1}, {2013, 0.2}, {2013, 0.3}}, wantErr: ErrDegenerateRegression},
		{name: "nan value", points: series(2013, 0.1, math.NaN(), 0.3), wantErr: ErrInvalidPoint},
		{name: "infinite value", points: series(2013, 0.1, math.Inf(1), 0.3), wantErr: ErrInvalidPoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Fit(tt.points, DefaultOptions())
			require.Error(t, err)
			assert.Nil(t, r)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestFitZeroOptionsUseDefaults(t *testing.T) {
	r, err := Fit(series(2013, 0.10, 0.14, 0.13, 0.18, 0.17, 0.22), Options{})
	require.NoError(t, err)
	assert.True(t, r.Significant)
	assert.Equal(t, models.EffectLarge, r.EffectSize)
}

func TestEffectLabel(t *testing.T) {
	th := DefaultOptions().Effect
	tests := []struct {
		r2   float64
		want string
	}{
		{0, models.EffectNegligible},
		{0.009, models.EffectNegligible},
		{0.01, models.EffectSmall},
		{0.089, models.EffectSmall},
		{0.09, models.EffectMedium},
		{0.249, models.EffectMedium},
		{0.25, models.EffectLarge},
		{0.9, models.EffectLarge},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EffectLabel(tt.r2, th), "EffectLabel(%v)", tt.r2)
	}

	custom := EffectThresholds{Negligible: 0.1, Small: 0.2, Medium: 0.3}
	assert.Equal(t, models.EffectNegligible, EffectLabel(0.05, custom))
}

func TestDirection(t *testing.T) {
	assert.Equal(t, models.DirectionIncreasing, Direction(0.01))
	assert.Equal(t, models.DirectionDecreasing, Direction(-0.01))
	assert.Equal(t, models.DirectionNoChange, Direction(0))
	assert.Equal(t, models.DirectionNoChange, Direction(1e-15))
}

func TestDurbinWatson(t *testing.T) {
	assert.Equal(t, 0.0, DurbinWatson([]float64{0, 0, 0}))
	// Perfectly alternating residuals: Σ(2e)² over (n-1) pairs / n·e²
	assert.InDelta(t, 3.0, DurbinWatson([]float64{1, -1, 1, -1}), 1e-12)
	// Slowly drifting residuals: strong positive autocorrelation
	dw := DurbinWatson([]float64{-2, -1, 0, 1, 2})
	assert.InDelta(t, 0.4, dw, 1e-12)

	assert.Equal(t, models.AutocorrelationPositive, AutocorrelationLabel(dw, 1.5, 2.5))
	assert.Equal(t, models.AutocorrelationNegative, AutocorrelationLabel(3.0, 1.5, 2.5))
	assert.Equal(t, models.AutocorrelationNone, AutocorrelationLabel(2.0, 1.5, 2.5))
}

func TestJarqueBera(t *testing.T) {
	_, _, ok := JarqueBera([]float64{1, 2})
	assert.False(t, ok)
	_, _, ok = JarqueBera([]float64{1, 1, 1, 1})
	assert.False(t, ok)

	// Symmetric sample: zero skew, excess kurtosis of a two-point distribution is -2
	jb, p, ok := JarqueBera([]float64{-1, 1, -1, 1, -1, 1})
	require.True(t, ok)
	assert.InDelta(t, 1.0, jb, 1e-12) // 6/6 · (0 + 4/4)
	assert.InDelta(t, math.Exp(-0.5), p, 1e-9)
}

func TestConfidenceInterval95(t *testing.T) {
	ci := ConfidenceInterval95(1, 0.5, 10)
	// t_{0.975,10} = 2.228138852
	assert.InDelta(t, 1-2.228138852*0.5, ci.Lower, 1e-6)
	assert.InDelta(t, 1+2.228138852*0.5, ci.Upper, 1e-6)

	ci = ConfidenceInterval95(1, 0, 10)
	assert.Equal(t, 1.0, ci.Lower)
	assert.Equal(t, 1.0, ci.Upper)
}
