package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/rewired-gh/reappoint/internal/aggregate"
	"github.com/rewired-gh/reappoint/internal/classifier"
	"github.com/rewired-gh/reappoint/internal/logger"
	"github.com/rewired-gh/reappoint/internal/metrics"
	"github.com/rewired-gh/reappoint/internal/models"
	"github.com/rewired-gh/reappoint/internal/pipeline"
	"github.com/rewired-gh/reappoint/internal/report"
	"github.com/rewired-gh/reappoint/internal/storage"
	"github.com/rewired-gh/reappoint/internal/table"
	"github.com/rewired-gh/reappoint/internal/telegram"
	"github.com/rewired-gh/reappoint/internal/trend"
	"github.com/spf13/cobra"
)

var errStorageDisabled = errors.New("storage is disabled (storage.enabled = false)")

// stdinInput makes classify read a single table from standard input.
const stdinInput = "-"

func (a *app) classifyCmd() *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Mark each appointment as a first appointment or a reappointment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				input = a.cfg.Input.Path
			}
			if output == "" {
				output = a.outputPath("", table.ClassifiedFile)
			}

			var records []models.AppointmentRecord
			var err error
			if input == stdinInput {
				records, err = table.Read(cmd.InOrStdin(), "stdin", a.tableOptions())
			} else {
				records, err = table.Load(input, a.tableOptions())
			}
			if err != nil {
				return err
			}
			classified, stats := classifier.Classify(records, a.classifierOptions())
			if err := table.WriteFile(output, func(w io.Writer) error {
				return table.WriteRecords(w, classified)
			}); err != nil {
				return err
			}
			logger.Info("Wrote %d classified records to %s", len(classified), output)

			return a.render(cmd.OutOrStdout(), &report.Report{Classification: &stats})
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Appointment CSV file or directory, - for stdin (default input.path)")
	cmd.Flags().StringVar(&output, "output", "", "Classified CSV to write (default <output.dir>/"+table.ClassifiedFile+")")
	return cmd
}

func (a *app) aggregateCmd() *cobra.Command {
	var input, outputDir string

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Count appointments and reappointments per year and organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				input = a.outputPath("", table.ClassifiedFile)
			}
			if outputDir == "" {
				outputDir = a.cfg.Output.Dir
			}

			opts := a.tableOptions()
			opts.TrustFlag = true
			records, err := table.Load(input, opts)
			if err != nil {
				return err
			}

			summary := aggregate.Annual(records)
			orgYear := aggregate.ByOrganization(records)
			top := aggregate.TopByYear(orgYear, a.cfg.Aggregate.TopMinAppointments)
			if err := pipeline.WriteAggregates(outputDir, summary.Years, orgYear, top); err != nil {
				return err
			}
			logger.Info("Wrote aggregates for %d years to %s", len(summary.Years), outputDir)

			return a.render(cmd.OutOrStdout(), &report.Report{
				Annual:  summary.Years,
				Undated: &summary.Undated,
				Top:     top,
			})
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Classified CSV (default <output.dir>/"+table.ClassifiedFile+")")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for the aggregate CSVs (default output.dir)")
	return cmd
}

func (a *app) trendCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Fit a linear trend to the annual reappointment proportions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				input = a.outputPath("", table.AnnualFile)
			}

			years, err := table.ReadAnnualFile(input)
			if err != nil {
				return err
			}
			result, err := trend.Fit(aggregate.Points(years), a.trendOptions())
			if err != nil {
				return fmt.Errorf("failed to fit trend: %w", err)
			}

			return a.render(cmd.OutOrStdout(), &report.Report{Annual: years, Trend: result})
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Annual proportions CSV (default <output.dir>/"+table.AnnualFile+")")
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	var input, outputDir string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage and store the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				input = a.cfg.Input.Path
			}
			if outputDir == "" {
				outputDir = a.cfg.Output.Dir
			}

			var store *storage.Storage
			if a.cfg.Storage.Enabled {
				s, err := storage.New(a.cfg.Storage.DBPath, a.cfg.Storage.MaxRuns)
				if err != nil {
					return fmt.Errorf("failed to initialize storage: %w", err)
				}
				defer s.Close()
				store = s
				logger.Debug("Storage initialized at %s", a.cfg.Storage.DBPath)
			}

			var notifier pipeline.Notifier
			if a.cfg.Telegram.Enabled {
				client, err := telegram.NewClient(
					a.cfg.Telegram.BotToken,
					a.cfg.Telegram.ChatID,
					a.cfg.Telegram.MaxRetries,
					a.cfg.Telegram.RetryDelayBase,
				)
				if err != nil {
					return fmt.Errorf("failed to initialize Telegram client: %w", err)
				}
				notifier = client
				logger.Info("Telegram client initialized successfully")
			} else {
				logger.Debug("Telegram notifications disabled")
			}

			rec := metrics.New()
			p := pipeline.New(pipeline.Settings{
				Table:              a.tableOptions(),
				Classifier:         a.classifierOptions(),
				Trend:              a.trendOptions(),
				TopMinAppointments: a.cfg.Aggregate.TopMinAppointments,
				OutputDir:          outputDir,
			}, store, notifier, rec)

			res, runErr := p.Run(cmd.Context(), input)

			if path := a.cfg.Metrics.TextfilePath; path != "" {
				if err := rec.WriteTextfile(path); err != nil {
					logger.Warn("Failed to write metrics: %v", err)
				}
			}
			if res != nil {
				if err := a.render(cmd.OutOrStdout(), res.Report()); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Appointment CSV file or directory (default input.path)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for the stage CSVs (default output.dir)")
	return cmd
}

func (a *app) runsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored runs, or show the report of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Storage.Enabled {
				return errStorageDisabled
			}
			store, err := storage.New(a.cfg.Storage.DBPath, a.cfg.Storage.MaxRuns)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer store.Close()

			if len(args) == 1 {
				r, err := pipeline.Load(cmd.Context(), store, args[0], a.cfg.Aggregate.TopMinAppointments)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), r)
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return report.RenderRuns(cmd.OutOrStdout(), a.cfg.Output.Format, runs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list (0 lists all)")
	return cmd
}
