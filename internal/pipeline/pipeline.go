// Package pipeline runs the reappointment analysis end to end.
//
// A run loads the yearly tables, classifies every appointment, aggregates
// the classified rows per year and per organization, and fits a linear
// trend to the annual reappointment proportions. Stage outputs are written
// as CSV files; the run summary, aggregates and trend are persisted when a
// store is configured.
//
// A failed trend fit does not discard the run: the aggregates are still
// written and stored, and the failure is recorded on the run summary.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/reappoint/internal/aggregate"
	"github.com/rewired-gh/reappoint/internal/classifier"
	"github.com/rewired-gh/reappoint/internal/logger"
	"github.com/rewired-gh/reappoint/internal/metrics"
	"github.com/rewired-gh/reappoint/internal/models"
	"github.com/rewired-gh/reappoint/internal/report"
	"github.com/rewired-gh/reappoint/internal/storage"
	"github.com/rewired-gh/reappoint/internal/table"
	"github.com/rewired-gh/reappoint/internal/trend"
)

// Notifier delivers the outcome of a run.
type Notifier interface {
	SendTrend(run *models.RunSummary, result *models.TrendResult) error
}

// Settings configures the stages.
type Settings struct {
	Table              table.Options
	Classifier         classifier.Options
	Trend              trend.Options
	TopMinAppointments int
	// OutputDir receives the stage CSV files; empty skips writing them.
	OutputDir string
}

// StageError reports the stage a run failed in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result holds everything a run produced.
type Result struct {
	Run            models.RunSummary
	Records        []models.AppointmentRecord
	Classification classifier.Stats
	Summary        aggregate.Summary
	OrgYear        []models.OrgYearStat
	Top            []models.TopOrganization
	Trend          *models.TrendResult
}

// Report converts the result for rendering.
func (r *Result) Report() *report.Report {
	run := r.Run
	stats := r.Classification
	undated := r.Summary.Undated
	return &report.Report{
		Run:            &run,
		Classification: &stats,
		Annual:         r.Summary.Years,
		Undated:        &undated,
		Top:            r.Top,
		Trend:          r.Trend,
		TrendError:     r.Run.TrendError,
	}
}

// Pipeline runs the stages with optional persistence and notification.
type Pipeline struct {
	settings Settings
	storage  *storage.Storage
	notifier Notifier
	metrics  *metrics.Recorder
	now      func() time.Time
}

// New creates a Pipeline. store and notifier may be nil; a nil recorder
// gets a private one.
func New(settings Settings, store *storage.Storage, notifier Notifier, rec *metrics.Recorder) *Pipeline {
	if rec == nil {
		rec = metrics.New()
	}
	return &Pipeline{
		settings: settings,
		storage:  store,
		notifier: notifier,
		metrics:  rec,
		now:      time.Now,
	}
}

// Run executes every stage on input, a CSV file or a directory of yearly
// files. When only the trend stage fails, the returned Result is complete
// apart from Trend and the error is a *StageError for the trend stage.
func (p *Pipeline) Run(ctx context.Context, input string) (*Result, error) {
	startTime := p.now()
	res := &Result{Run: models.RunSummary{
		ID:        uuid.New().String(),
		StartedAt: startTime.UTC(),
		Input:     input,
	}}
	logger.Info("Starting run %s on %s", res.Run.ID, input)

	timer := p.metrics.Time(metrics.StageLoad)
	records, err := table.Load(input, p.settings.Table)
	timer.ObserveDuration()
	if err != nil {
		return nil, &StageError{Stage: metrics.StageLoad, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timer = p.metrics.Time(metrics.StageClassify)
	res.Records, res.Classification = classifier.Classify(records, p.settings.Classifier)
	timer.ObserveDuration()
	p.metrics.ObserveClassification(res.Classification)
	logger.Info("Classified %d records: %d reappointments, %d invalid years",
		res.Classification.Records, res.Classification.Reappointments, res.Classification.InvalidYears)

	timer = p.metrics.Time(metrics.StageAggregate)
	res.Summary = aggregate.Annual(res.Records)
	res.OrgYear = aggregate.ByOrganization(res.Records)
	res.Top = aggregate.TopByYear(res.OrgYear, p.settings.TopMinAppointments)
	timer.ObserveDuration()
	logger.Info("Aggregated %d years, %d organization-years", len(res.Summary.Years), len(res.OrgYear))

	if p.settings.OutputDir != "" {
		if err := WriteClassified(p.settings.OutputDir, res.Records); err != nil {
			return nil, &StageError{Stage: metrics.StageClassify, Err: err}
		}
		if err := WriteAggregates(p.settings.OutputDir, res.Summary.Years, res.OrgYear, res.Top); err != nil {
			return nil, &StageError{Stage: metrics.StageAggregate, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var trendErr error
	timer = p.metrics.Time(metrics.StageTrend)
	res.Trend, err = trend.Fit(aggregate.Points(res.Summary.Years), p.settings.Trend)
	timer.ObserveDuration()
	if err != nil {
		trendErr = &StageError{Stage: metrics.StageTrend, Err: err}
		res.Run.TrendError = err.Error()
		logger.Warn("Trend not fitted: %v", err)
	} else {
		logger.Info("Trend %s: slope %.5f per year, p=%.4g, R²=%.3f",
			res.Trend.Direction, res.Trend.Slope, res.Trend.PValue, res.Trend.RSquared)
	}
	p.metrics.ObserveTrend(res.Trend)

	res.Run.Records = res.Classification.Records
	res.Run.Reappointments = res.Classification.Reappointments
	res.Run.InvalidYears = res.Classification.InvalidYears
	res.Run.Organizations = countOrganizations(res.OrgYear)

	if p.storage != nil {
		timer = p.metrics.Time(metrics.StageStore)
		err := p.store(ctx, res)
		timer.ObserveDuration()
		if err != nil {
			return nil, &StageError{Stage: metrics.StageStore, Err: err}
		}
	}

	if p.notifier != nil {
		if err := p.notifier.SendTrend(&res.Run, res.Trend); err != nil {
			logger.Warn("Failed to send run notification: %v", err)
		}
	}

	logger.Info("Run %s completed in %v", res.Run.ID, p.now().Sub(startTime))
	return res, trendErr
}

func (p *Pipeline) store(ctx context.Context, res *Result) error {
	if err := p.storage.SaveRun(ctx, &res.Run); err != nil {
		return err
	}
	if err := p.storage.SaveAnnual(ctx, res.Run.ID, res.Summary.Years); err != nil {
		return err
	}
	if err := p.storage.SaveOrgYear(ctx, res.Run.ID, res.OrgYear); err != nil {
		return err
	}
	if res.Trend != nil {
		if err := p.storage.SaveTrend(ctx, res.Run.ID, res.Trend); err != nil {
			return err
		}
	}

	removed, err := p.storage.RotateRuns(ctx)
	if err != nil {
		logger.Warn("Failed to rotate runs: %v", err)
	} else if removed > 0 {
		logger.Debug("Rotated %d old run(s)", removed)
	}
	return nil
}

func countOrganizations(stats []models.OrgYearStat) int {
	seen := make(map[string]struct{})
	for _, s := range stats {
		seen[s.Organization] = struct{}{}
	}
	return len(seen)
}

// WriteClassified writes the classified records into dir.
func WriteClassified(dir string, records []models.AppointmentRecord) error {
	return table.WriteFile(filepath.Join(dir, table.ClassifiedFile), func(w io.Writer) error {
		return table.WriteRecords(w, records)
	})
}

// WriteAggregates writes the annual, organization-year and top tables
// into dir.
func WriteAggregates(dir string, years []models.AnnualProportion, orgYear []models.OrgYearStat, top []models.TopOrganization) error {
	if err := table.WriteFile(filepath.Join(dir, table.AnnualFile), func(w io.Writer) error {
		return table.WriteAnnual(w, years)
	}); err != nil {
		return err
	}
	if err := table.WriteFile(filepath.Join(dir, table.OrgYearFile), func(w io.Writer) error {
		return table.WriteOrgYear(w, orgYear)
	}); err != nil {
		return err
	}
	return table.WriteFile(filepath.Join(dir, table.TopFile), func(w io.Writer) error {
		return table.WriteTop(w, top)
	})
}

// Load rebuilds the report of a stored run. The top organizations are
// derived again from the stored organization-year rows.
func Load(ctx context.Context, store *storage.Storage, id string, topMinAppointments int) (*report.Report, error) {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	years, err := store.GetAnnual(ctx, id)
	if err != nil {
		return nil, err
	}
	r := &report.Report{Run: run, Annual: years, TrendError: run.TrendError}

	orgYear, err := store.GetOrgYear(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Top = aggregate.TopByYear(orgYear, topMinAppointments)

	if run.TrendError == "" {
		if r.Trend, err = store.GetTrend(ctx, id); err != nil {
			return nil, err
		}
	}
	return r, nil
}
