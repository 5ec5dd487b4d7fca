package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rewired-gh/reappoint/internal/classifier"
	"github.com/rewired-gh/reappoint/internal/config"
	"github.com/rewired-gh/reappoint/internal/logger"
	"github.com/rewired-gh/reappoint/internal/report"
	"github.com/rewired-gh/reappoint/internal/table"
	"github.com/rewired-gh/reappoint/internal/trend"
	"github.com/spf13/cobra"
)

// app holds the state shared by all subcommands
type app struct {
	configPath string
	logLevel   string
	format     string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "reappoint",
		Short: "Measure reappointment trends in government appointment records",
		Long: `reappoint reads yearly government appointment tables, decides which
appointments are reappointments of someone appointed earlier to the same
position in the same organization, and tests whether the share of
reappointments changes over the years.

Stages can run one at a time (classify, aggregate, trend) or all together (run).`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to configuration file (optional)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&a.format, "format", "", "Report format: text, json, yaml")

	rootCmd.AddCommand(a.classifyCmd())
	rootCmd.AddCommand(a.aggregateCmd())
	rootCmd.AddCommand(a.trendCmd())
	rootCmd.AddCommand(a.runCmd())
	rootCmd.AddCommand(a.runsCmd())

	return rootCmd
}

// setup loads and validates configuration, then initializes logging.
// Flags override the file and environment.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.format != "" {
		cfg.Output.Format = a.format
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if a.configPath != "" {
		logger.Info("Configuration loaded from %s", a.configPath)
	}
	a.cfg = cfg
	return nil
}

func (a *app) tableOptions() table.Options {
	opts := table.Options{
		Pattern: a.cfg.Input.Pattern,
		MinYear: a.cfg.Classifier.MinYear,
		MaxYear: a.cfg.Classifier.MaxYear,
	}
	if r := []rune(a.cfg.Input.Delimiter); len(r) == 1 {
		opts.Delimiter = r[0]
	}
	return opts
}

func (a *app) classifierOptions() classifier.Options {
	return classifier.Options{
		UnknownName:         a.cfg.Classifier.UnknownName,
		UnknownPosition:     a.cfg.Classifier.UnknownPosition,
		UnknownOrganization: a.cfg.Classifier.UnknownOrganization,
	}
}

func (a *app) trendOptions() trend.Options {
	return trend.Options{
		Alpha: a.cfg.Trend.Alpha,
		Effect: trend.EffectThresholds{
			Negligible: a.cfg.Trend.NegligibleR2,
			Small:      a.cfg.Trend.SmallR2,
			Medium:     a.cfg.Trend.MediumR2,
		},
		DurbinWatsonLower: a.cfg.Trend.DurbinWatsonLower,
		DurbinWatsonUpper: a.cfg.Trend.DurbinWatsonUpper,
		OutlierZ:          a.cfg.Trend.OutlierZ,
	}
}

// outputPath resolves a stage file inside dir, or inside output.dir when
// dir is empty.
func (a *app) outputPath(dir, name string) string {
	if dir == "" {
		dir = a.cfg.Output.Dir
	}
	return filepath.Join(dir, name)
}

func (a *app) render(w io.Writer, r *report.Report) error {
	return report.Render(w, a.cfg.Output.Format, r)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
