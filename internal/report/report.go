// Package report renders pipeline results for people and for other tools.
//
// The text format is a console summary; JSON and YAML carry the same data
// in machine-readable form.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rewired-gh/reappoint/internal/aggregate"
	"github.com/rewired-gh/reappoint/internal/classifier"
	"github.com/rewired-gh/reappoint/internal/models"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrUnknownFormat is returned for a format other than text, json or yaml.
var ErrUnknownFormat = errors.New("unknown report format")

// Report collects whatever stages ran. Nil or empty sections are omitted.
type Report struct {
	Run            *models.RunSummary        `json:"run,omitempty" yaml:"run,omitempty"`
	Classification *classifier.Stats         `json:"classification,omitempty" yaml:"classification,omitempty"`
	Annual         []models.AnnualProportion `json:"annual,omitempty" yaml:"annual,omitempty"`
	Undated        *aggregate.Counts         `json:"undated,omitempty" yaml:"undated,omitempty"`
	Top            []models.TopOrganization  `json:"top_organizations,omitempty" yaml:"top_organizations,omitempty"`
	Trend          *models.TrendResult       `json:"trend,omitempty" yaml:"trend,omitempty"`
	TrendError     string                    `json:"trend_error,omitempty" yaml:"trend_error,omitempty"`
}

// Render writes r to w in the given format.
func Render(w io.Writer, format string, r *Report) error {
	switch strings.ToLower(format) {
	case FormatText, "":
		_, err := io.WriteString(w, Text(r))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// RenderRuns writes a run listing to w in the given format.
func RenderRuns(w io.Writer, format string, runs []models.RunSummary) error {
	switch strings.ToLower(format) {
	case FormatText, "":
		_, err := io.WriteString(w, RunsText(runs))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(runs); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// RunsText returns one line per run, newest first as given.
func RunsText(runs []models.RunSummary) string {
	if len(runs) == 0 {
		return "No stored runs\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-36s  %-19s  %8s  %14s  %s\n", "ID", "Started", "Records", "Reappointments", "Trend")
	for _, r := range runs {
		status := "fitted"
		if r.TrendError != "" {
			status = "failed: " + r.TrendError
		}
		fmt.Fprintf(&b, "%-36s  %-19s  %8d  %14d  %s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Records, r.Reappointments, status)
	}
	return b.String()
}

// Text returns the console rendering of r.
func Text(r *Report) string {
	var b strings.Builder

	b.WriteString(strings.Repeat("=", 80) + "\n")
	b.WriteString("REAPPOINTMENT ANALYSIS\n")
	b.WriteString(strings.Repeat("=", 80) + "\n")

	if r.Run != nil {
		fmt.Fprintf(&b, "Run: %s (started %s)\n", r.Run.ID, r.Run.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "Input: %s\n", r.Run.Input)
	}

	if s := r.Classification; s != nil {
		section(&b, "CLASSIFICATION")
		fmt.Fprintf(&b, "  Records:                %d\n", s.Records)
		fmt.Fprintf(&b, "  Distinct identities:    %d (%d seen once)\n", s.Groups, s.Singletons)
		fmt.Fprintf(&b, "  Reappointments:         %d (%s)\n", s.Reappointments, percent(models.Rate(s.Reappointments, s.Records)))
		fmt.Fprintf(&b, "  Invalid years:          %d\n", s.InvalidYears)
		fmt.Fprintf(&b, "  Sentinel substitutions: %d (%d rows unidentifiable)\n", s.SentinelSubstitutions, s.Unidentifiable)
		fmt.Fprintf(&b, "  Source flag agreement:  %d agree, %d disagree, %d unknown\n",
			s.Source.Agree, s.Source.Disagree, s.Source.Unknown)
	}

	if len(r.Annual) > 0 || r.Undated != nil {
		section(&b, "ANNUAL PROPORTIONS")
		fmt.Fprintf(&b, "  %-6s %14s %16s %12s\n", "Year", "Appointments", "Reappointments", "Proportion")
		for _, y := range r.Annual {
			fmt.Fprintf(&b, "  %-6d %14d %16d %12s\n", y.Year, y.TotalAppointments, y.TotalReappointments, percent(y.Proportion))
		}
		if r.Undated != nil && r.Undated.Appointments > 0 {
			fmt.Fprintf(&b, "  Undated: %d appointments, %d reappointments\n", r.Undated.Appointments, r.Undated.Reappointments)
		}
	}

	if len(r.Top) > 0 {
		section(&b, "HIGHEST REAPPOINTMENT RATE BY YEAR")
		for _, t := range r.Top {
			fmt.Fprintf(&b, "  %d  %s: %d/%d (%s)\n", t.Year, t.Organization, t.Reappointments, t.Appointments, percent(t.Rate))
		}
	}

	if r.Trend != nil {
		writeTrend(&b, r.Trend)
	} else if r.TrendError != "" {
		section(&b, "TREND")
		fmt.Fprintf(&b, "  Not fitted: %s\n", r.TrendError)
	}

	return b.String()
}

func writeTrend(b *strings.Builder, t *models.TrendResult) {
	section(b, "TREND")

	verdict := "not significant"
	if t.Significant {
		verdict = "significant"
	}
	first, last := t.BaseYear, t.BaseYear
	if len(t.Years) > 0 {
		first, last = t.Years[0], t.Years[len(t.Years)-1]
	}

	fmt.Fprintf(b, "  Direction:    %s (%s, %s)\n", t.Direction, verdict, pValue(t.PValue))
	fmt.Fprintf(b, "  Slope:        %s per year, 95%% CI [%s, %s]\n",
		pp(t.Slope), pp(t.ConfidenceInterval.Lower), pp(t.ConfidenceInterval.Upper))
	fmt.Fprintf(b, "  Intercept:    %s in %d\n", percent(t.Intercept), t.BaseYear)
	fmt.Fprintf(b, "  Total change: %s from %d to %d\n", pp(t.TotalChange()), first, last)
	fmt.Fprintf(b, "  Fit:          r = %.3f, R² = %.3f (%s effect)\n", t.Correlation, t.RSquared, t.EffectSize)
	fmt.Fprintf(b, "  t-test:       t = %s, df = %d, SE = %.5f\n", tStat(t.TStatistic), t.DegreesOfFreedom, t.StandardError)

	d := t.Diagnostics
	b.WriteString("\n  Diagnostics:\n")
	if d.Autocorrelation == models.AutocorrelationUndefined {
		b.WriteString("    Durbin–Watson: undefined (exact fit)\n")
	} else {
		fmt.Fprintf(b, "    Durbin–Watson: %.3f (%s autocorrelation)\n", d.DurbinWatson, d.Autocorrelation)
	}
	if len(d.Outliers) == 0 {
		b.WriteString("    Outliers:      none\n")
	} else {
		parts := make([]string, len(d.Outliers))
		for i, o := range d.Outliers {
			parts[i] = fmt.Sprintf("%d (z = %.2f)", o.Year, o.Standardized)
		}
		fmt.Fprintf(b, "    Outliers:      %s\n", strings.Join(parts, ", "))
	}
	if d.NormalityTested {
		fmt.Fprintf(b, "    Jarque–Bera:   %.3f (%s)\n", d.JarqueBera, pValue(d.NormalityPValue))
	} else {
		b.WriteString("    Jarque–Bera:   not tested\n")
	}
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "\n%s\n%s\n", title, strings.Repeat("-", 80))
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func pp(v float64) string {
	return fmt.Sprintf("%+.2f pp", v*100)
}

func pValue(p float64) string {
	if p < 0.0001 {
		return "p < 0.0001"
	}
	return fmt.Sprintf("p = %.4f", p)
}

func tStat(t float64) string {
	switch {
	case t > 1e300:
		return "+∞"
	case t < -1e300:
		return "-∞"
	}
	return fmt.Sprintf("%.3f", t)
}
