package trend

import (
	"math"

	"github.com/rewired-gh/reappoint/internal/models"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// residualFloor treats a residual sum of squares below it as an exact fit.
const residualFloor = 1e-24

// diagnose computes the residual diagnostics of a fitted result.
func diagnose(r *models.TrendResult, sse float64, opts Options) models.Diagnostics {
	d := models.Diagnostics{
		Autocorrelation: models.AutocorrelationUndefined,
		Outliers:        []models.Outlier{},
	}
	if sse <= residualFloor {
		return d
	}

	d.DurbinWatson = DurbinWatson(r.Residuals)
	d.Autocorrelation = AutocorrelationLabel(d.DurbinWatson, opts.DurbinWatsonLower, opts.DurbinWatsonUpper)

	sigma := math.Sqrt(sse / float64(r.DegreesOfFreedom))
	for i, e := range r.Residuals {
		z := e / sigma
		if math.Abs(z) > opts.OutlierZ {
			d.Outliers = append(d.Outliers, models.Outlier{Year: r.Years[i], Residual: e, Standardized: z})
		}
	}

	if jb, p, ok := JarqueBera(r.Residuals); ok {
		d.NormalityTested = true
		d.JarqueBera = jb
		d.NormalityPValue = p
	}
	return d
}

// DurbinWatson returns Σ(e_i - e_{i-1})² / Σe_i². Values near 2 indicate no
// first-order autocorrelation. It returns 0 when every residual is zero.
func DurbinWatson(residuals []float64) float64 {
	var num, den float64
	for i, e := range residuals {
		den += e * e
		if i > 0 {
			diff := e - residuals[i-1]
			num += diff * diff
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// AutocorrelationLabel interprets a Durbin–Watson statistic: below lower is
// positive autocorrelation, above upper is negative, otherwise none.
func AutocorrelationLabel(dw, lower, upper float64) string {
	switch {
	case dw < lower:
		return models.AutocorrelationPositive
	case dw > upper:
		return models.AutocorrelationNegative
	default:
		return models.AutocorrelationNone
	}
}

// JarqueBera tests residual normality with JB = n/6·(S² + K²/4), where S is
// the skewness and K the excess kurtosis computed from population moments.
// The p-value comes from a χ² distribution with 2 degrees of freedom.
// ok is false when fewer than 3 residuals are given or they have no spread.
func JarqueBera(residuals []float64) (jb, p float64, ok bool) {
	n := len(residuals)
	if n < 3 {
		return 0, 0, false
	}
	m2 := stat.Moment(2, residuals, nil)
	if m2 <= residualFloor {
		return 0, 0, false
	}
	m3 := stat.Moment(3, residuals, nil)
	m4 := stat.Moment(4, residuals, nil)

	skew := m3 / math.Pow(m2, 1.5)
	kurt := m4/(m2*m2) - 3
	jb = float64(n) / 6 * (skew*skew + kurt*kurt/4)
	p = distuv.ChiSquared{K: 2}.Survival(jb)
	return jb, p, true
}
