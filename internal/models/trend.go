package models

import (
	"errors"
	"math"
)

// Trend directions
const (
	DirectionIncreasing = "increasing"
	DirectionDecreasing = "decreasing"
	DirectionNoChange   = "no change"
)

// Effect size labels derived from r²
const (
	EffectNegligible = "negligible"
	EffectSmall      = "small"
	EffectMedium     = "medium"
	EffectLarge      = "large"
)

// Autocorrelation labels derived from the Durbin–Watson statistic
const (
	AutocorrelationPositive  = "positive"
	AutocorrelationNegative  = "negative"
	AutocorrelationNone      = "none"
	AutocorrelationUndefined = "undefined"
)

// ConfidenceInterval is a two-sided interval around an estimate
type ConfidenceInterval struct {
	Level float64 `json:"level" yaml:"level"`
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
}

// Outlier is an observation whose standardized residual exceeds the configured bound
type Outlier struct {
	Year         int     `json:"year" yaml:"year"`
	Residual     float64 `json:"residual" yaml:"residual"`
	Standardized float64 `json:"standardized" yaml:"standardized"`
}

// Diagnostics are companion checks on the regression residuals.
// None of them gate the trend verdict.
type Diagnostics struct {
	DurbinWatson    float64   `json:"durbin_watson" yaml:"durbin_watson"`
	Autocorrelation string    `json:"autocorrelation" yaml:"autocorrelation"`
	Outliers        []Outlier `json:"outliers" yaml:"outliers"`
	NormalityTested bool      `json:"normality_tested" yaml:"normality_tested"`
	JarqueBera      float64   `json:"jarque_bera" yaml:"jarque_bera"`
	NormalityPValue float64   `json:"normality_p_value" yaml:"normality_p_value"`
}

// TrendResult is a simple linear regression of reappointment proportion on year.
//
// Intercept is the fitted value at BaseYear (the first observed year), since
// the regression is computed on years centered at their minimum.
type TrendResult struct {
	Slope              float64            `json:"slope" yaml:"slope"`
	Intercept          float64            `json:"intercept" yaml:"intercept"`
	BaseYear           int                `json:"base_year" yaml:"base_year"`
	Correlation        float64            `json:"correlation" yaml:"correlation"`
	RSquared           float64            `json:"r_squared" yaml:"r_squared"`
	PValue             float64            `json:"p_value" yaml:"p_value"`
	StandardError      float64            `json:"standard_error" yaml:"standard_error"`
	TStatistic         float64            `json:"t_statistic" yaml:"t_statistic"`
	ConfidenceInterval ConfidenceInterval `json:"confidence_interval" yaml:"confidence_interval"`
	DegreesOfFreedom   int                `json:"degrees_of_freedom" yaml:"degrees_of_freedom"`
	Years              []int              `json:"years" yaml:"years"`
	Residuals          []float64          `json:"residuals" yaml:"residuals"`
	PredictedValues    []float64          `json:"predicted_values" yaml:"predicted_values"`
	Direction          string             `json:"direction" yaml:"direction"`
	Significant        bool               `json:"significant" yaml:"significant"`
	EffectSize         string             `json:"effect_size" yaml:"effect_size"`
	Diagnostics        Diagnostics        `json:"diagnostics" yaml:"diagnostics"`
}

// TotalChange returns the fitted change in proportion between the first and last year.
func (t *TrendResult) TotalChange() float64 {
	if len(t.PredictedValues) < 2 {
		return 0
	}
	return t.PredictedValues[len(t.PredictedValues)-1] - t.PredictedValues[0]
}

// Validate checks the internal consistency of a fitted result
func (t *TrendResult) Validate() error {
	n := len(t.Years)
	if n < 3 {
		return errors.New("trend must cover at least 3 years")
	}
	if len(t.Residuals) != n || len(t.PredictedValues) != n {
		return errors.New("residuals and predicted values must have one entry per year")
	}
	if t.DegreesOfFreedom != n-2 {
		return errors.New("degrees of freedom must equal n-2")
	}
	for _, v := range []float64{t.Slope, t.Intercept, t.PValue, t.StandardError, t.RSquared} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("regression statistics must be finite")
		}
	}
	if t.PValue < 0 || t.PValue > 1 {
		return errors.New("p-value must be between 0.0 and 1.0")
	}
	if t.RSquared < 0 || t.RSquared > 1+1e-9 {
		return errors.New("r squared must be between 0.0 and 1.0")
	}
	switch t.Direction {
	case DirectionIncreasing, DirectionDecreasing, DirectionNoChange:
	default:
		return errors.New("direction must be 'increasing', 'decreasing' or 'no change'")
	}
	return nil
}
