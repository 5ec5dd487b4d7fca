// Package trend fits a simple linear regression of reappointment proportion
// on year and classifies the resulting trend.
//
// Years are centered at their minimum, so the intercept is the fitted value
// in the first observed year:
//
//	x_i   = year_i - min(year)
//	slope = Σ(x-x̄)(y-ȳ) / Σ(x-x̄)²
//	int   = ȳ - slope·x̄
//	se    = sqrt(Σe² / (n-2)) / sqrt(Σ(x-x̄)²)
//	p     = 2·P(T_{n-2} > |slope/se|)
//	CI95  = slope ± t_{0.975, n-2}·se
//
// The companion diagnostics (Durbin–Watson, standardized-residual outliers,
// Jarque–Bera normality) describe the residuals and never gate the verdict.
package trend

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rewired-gh/reappoint/internal/models"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MinPoints is the smallest number of points a trend can be fitted on.
const MinPoints = 3

// slopeEpsilon separates a flat trend from floating-point noise.
const slopeEpsilon = 1e-12

var (
	// ErrInsufficientData is returned when fewer than MinPoints points are given.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDegenerateRegression is returned when every point has the same year.
	ErrDegenerateRegression = errors.New("degenerate regression: zero variance in year")
	// ErrInvalidPoint is returned for a non-finite value.
	ErrInvalidPoint = errors.New("invalid point")
)

// Point is one (year, proportion) observation.
type Point struct {
	Year  int
	Value float64
}

// EffectThresholds are the r² cut-offs between effect size labels.
type EffectThresholds struct {
	Negligible float64 // below: negligible
	Small      float64 // below: small
	Medium     float64 // below: medium, otherwise large
}

// Options configures significance and diagnostic thresholds.
type Options struct {
	Alpha             float64
	Effect            EffectThresholds
	DurbinWatsonLower float64
	DurbinWatsonUpper float64
	OutlierZ          float64
}

// DefaultOptions returns conventional thresholds: α = 0.05, Cohen-style r²
// cut-offs 0.01/0.09/0.25, Durbin–Watson band [1.5, 2.5] and |z| > 2 outliers.
func DefaultOptions() Options {
	return Options{
		Alpha:             0.05,
		Effect:            EffectThresholds{Negligible: 0.01, Small: 0.09, Medium: 0.25},
		DurbinWatsonLower: 1.5,
		DurbinWatsonUpper: 2.5,
		OutlierZ:          2.0,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Alpha <= 0 {
		o.Alpha = d.Alpha
	}
	if o.Effect == (EffectThresholds{}) {
		o.Effect = d.Effect
	}
	if o.DurbinWatsonLower == 0 && o.DurbinWatsonUpper == 0 {
		o.DurbinWatsonLower, o.DurbinWatsonUpper = d.DurbinWatsonLower, d.DurbinWatsonUpper
	}
	if o.OutlierZ <= 0 {
		o.OutlierZ = d.OutlierZ
	}
	return o
}

// Fit regresses Value on Year by ordinary least squares.
// Zero-valued options fall back to DefaultOptions.
//
// Points are sorted by year (stable) before fitting; Residuals,
// PredictedValues and Years of the result follow that order.
func Fit(points []Point, opts Options) (*models.TrendResult, error) {
	opts = opts.withDefaults()
	n := len(points)
	if n < MinPoints {
		return nil, fmt.Errorf("%w: need at least %d points, got %d", ErrInsufficientData, MinPoints, n)
	}

	sorted := make([]Point, n)
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Year < sorted[j].Year })

	for _, p := range sorted {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return nil, fmt.Errorf("%w: year %d has non-finite value %v", ErrInvalidPoint, p.Year, p.Value)
		}
	}

	baseYear := sorted[0].Year
	if sorted[n-1].Year == baseYear {
		return nil, fmt.Errorf("%w: all %d points are in %d", ErrDegenerateRegression, n, baseYear)
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	years := make([]int, n)
	flat := true
	for i, p := range sorted {
		xs[i] = float64(p.Year - baseYear)
		ys[i] = p.Value
		years[i] = p.Year
		if p.Value != sorted[0].Value {
			flat = false
		}
	}

	xMean := stat.Mean(xs, nil)
	yMean := stat.Mean(ys, nil)
	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - xMean
		sxx += dx * dx
		sxy += dx * (ys[i] - yMean)
	}

	df := n - 2
	result := &models.TrendResult{
		BaseYear:         baseYear,
		DegreesOfFreedom: df,
		Years:            years,
		Residuals:        make([]float64, n),
		PredictedValues:  make([]float64, n),
	}

	if flat {
		// Exactly constant series: slope and residuals are zero by construction.
		result.Intercept = sorted[0].Value
		for i := range result.PredictedValues {
			result.PredictedValues[i] = sorted[0].Value
		}
		result.PValue = 1
		result.ConfidenceInterval = ConfidenceInterval95(0, 0, df)
		result.Direction = models.DirectionNoChange
		result.EffectSize = EffectLabel(0, opts.Effect)
		result.Diagnostics = diagnose(result, 0, opts)
		return result, nil
	}

	slope := sxy / sxx
	intercept := yMean - slope*xMean

	var sse float64
	for i := range xs {
		pred := intercept + slope*xs[i]
		result.PredictedValues[i] = pred
		result.Residuals[i] = ys[i] - pred
		sse += result.Residuals[i] * result.Residuals[i]
	}

	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		r = 0
	}
	r = math.Max(-1, math.Min(1, r))

	se := math.Sqrt(sse/float64(df)) / math.Sqrt(sxx)

	result.Slope = slope
	result.Intercept = intercept
	result.Correlation = r
	result.RSquared = r * r
	result.StandardError = se
	result.TStatistic, result.PValue = tTest(slope, se, df)
	result.ConfidenceInterval = ConfidenceInterval95(slope, se, df)
	result.Direction = Direction(slope)
	result.Significant = result.PValue < opts.Alpha
	result.EffectSize = EffectLabel(result.RSquared, opts.Effect)
	result.Diagnostics = diagnose(result, sse, opts)

	return result, nil
}

// tTest returns the t statistic and two-tailed p-value for H0: slope = 0.
// A zero standard error (perfect fit) gives p = 0 for a non-zero slope and a
// t statistic saturated at ±MaxFloat64 so results stay serializable.
func tTest(slope, se float64, df int) (float64, float64) {
	if se == 0 {
		if math.Abs(slope) <= slopeEpsilon {
			return 0, 1
		}
		return math.Copysign(math.MaxFloat64, slope), 0
	}
	t := slope / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	p := 2 * dist.Survival(math.Abs(t))
	return t, math.Max(0, math.Min(1, p))
}

// ConfidenceInterval95 returns estimate ± t_{0.975, df}·se.
func ConfidenceInterval95(estimate, se float64, df int) models.ConfidenceInterval {
	ci := models.ConfidenceInterval{Level: 0.95, Lower: estimate, Upper: estimate}
	if se == 0 || df < 1 {
		return ci
	}
	tCrit := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}.Quantile(0.975)
	ci.Lower = estimate - tCrit*se
	ci.Upper = estimate + tCrit*se
	return ci
}

// Direction labels a slope as increasing, decreasing or no change.
func Direction(slope float64) string {
	switch {
	case slope > slopeEpsilon:
		return models.DirectionIncreasing
	case slope < -slopeEpsilon:
		return models.DirectionDecreasing
	default:
		return models.DirectionNoChange
	}
}

// EffectLabel maps r² to an effect size label.
func EffectLabel(rSquared float64, th EffectThresholds) string {
	switch {
	case rSquared < th.Negligible:
		return models.EffectNegligible
	case rSquared < th.Small:
		return models.EffectSmall
	case rSquared < th.Medium:
		return models.EffectMedium
	default:
		return models.EffectLarge
	}
}
