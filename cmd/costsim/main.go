// Command costsim evaluates declarative cost/income models: single-period
// reports, multi-period simulations, model validation, stored-run
// inspection, and an HTTP serving mode.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/02loveslollipop/companyOperationSimulator/internal/api"
	"github.com/02loveslollipop/companyOperationSimulator/internal/config"
	"github.com/02loveslollipop/companyOperationSimulator/internal/engine"
	"github.com/02loveslollipop/companyOperationSimulator/internal/model"
	"github.com/02loveslollipop/companyOperationSimulator/internal/persistence"
	"github.com/02loveslollipop/companyOperationSimulator/internal/report"
)

func main() {
	var verbose bool
	var seed int64

	root := &cobra.Command{
		Use:           "costsim",
		Short:         "Deterministic financial simulation over declarative cost models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().Int64Var(&seed, "seed", engine.DefaultOptions().Seed, "seed for $random sampling")

	root.AddCommand(
		newValidateCmd(),
		newReportCmd(&seed),
		newSimulateCmd(&seed),
		newServeCmd(&seed),
		newRunsCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadModel reads, decodes, and builds the model at path.
func loadModel(path string) (*model.Model, error) {
	doc, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	m, err := model.Build(doc)
	if err != nil {
		return nil, err
	}
	slog.Debug("model built",
		"path", path,
		"constants", len(m.Consts),
		"variables", len(m.Variables),
		"cost_categories", len(m.Costs),
	)
	return m, nil
}

// parseOverrides turns repeated --set name=value flags into an override map.
func parseOverrides(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	overrides := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("override %q: want name=value", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("override %q: %w", pair, err)
		}
		overrides[strings.TrimSpace(name)] = v
	}
	return overrides, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <model-file>",
		Short: "Check a model document for structural and formula errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadModel(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}
}

func newReportCmd(seed *int64) *cobra.Command {
	var sets []string
	var outDir, format string

	cmd := &cobra.Command{
		Use:   "report <model-file>",
		Short: "Evaluate a single period and print or save the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			overrides, err := parseOverrides(sets)
			if err != nil {
				return err
			}

			opts := engine.DefaultOptions()
			opts.Seed = *seed
			rep, err := engine.New(m, opts).Report(overrides)
			if err != nil {
				return err
			}
			rep.Timestamp = time.Now()

			if outDir != "" {
				return saveReports(outDir, "report", []*report.Report{rep})
			}
			switch format {
			case "json":
				return report.WriteJSON(cmd.OutOrStdout(), rep)
			case "csv":
				return report.WriteCSV(cmd.OutOrStdout(), rep)
			case "table":
				printReport(cmd, rep)
				return nil
			}
			return fmt.Errorf("unknown format %q (want table, json, or csv)", format)
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "override a global, name=value (repeatable)")
	cmd.Flags().StringVar(&outDir, "out", "", "write the report to this directory instead of stdout")
	cmd.Flags().StringVar(&format, "format", "table", "stdout format: table, json, or csv")
	return cmd
}

func newSimulateCmd(seed *int64) *cobra.Command {
	var sets []string
	var periods int
	var outDir, dbPath string
	var skipInitial bool

	cmd := &cobra.Command{
		Use:   "simulate <model-file>",
		Short: "Evolve global variables over N periods and report each one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			overrides, err := parseOverrides(sets)
			if err != nil {
				return err
			}

			opts := engine.DefaultOptions()
			opts.Seed = *seed
			opts.IncludeInitial = !skipInitial
			reports, err := engine.New(m, opts).Simulate(periods, overrides)
			if err != nil {
				return err
			}
			now := time.Now()
			for _, rep := range reports {
				rep.Timestamp = now
			}

			if dbPath != "" {
				db, err := persistence.Open(dbPath)
				if err != nil {
					return err
				}
				defer db.Close()
				runID, err := db.SaveRun(filepath.Base(args[0]), *seed, reports)
				if err != nil {
					return err
				}
				slog.Info("run saved", "run_id", runID, "db", dbPath)
			}

			if outDir != "" {
				return saveReports(outDir, "simulation", reports)
			}
			printSimulation(cmd, reports)
			return nil
		},
	}
	cmd.Flags().IntVarP(&periods, "periods", "p", 12, "number of periods to simulate")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "override a global, name=value (repeatable)")
	cmd.Flags().StringVar(&outDir, "out", "", "write JSON and CSV report files to this directory")
	cmd.Flags().StringVar(&dbPath, "db", "", "also persist the run to this SQLite database")
	cmd.Flags().BoolVar(&skipInitial, "skip-initial", false, "start reporting after the first update instead of the initial state")
	return cmd
}

func newServeCmd(seed *int64) *cobra.Command {
	var port int
	var dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := &api.Server{Port: port, Seed: *seed}
			if dbPath != "" {
				db, err := persistence.Open(dbPath)
				if err != nil {
					return err
				}
				defer db.Close()
				srv.DB = db
			}
			return srv.Start()
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "listen port")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database for the run endpoints")
	return cmd
}

func newRunsCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List simulation runs stored in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := persistence.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			runs, err := db.ListRuns()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no stored runs")
				return nil
			}
			for _, run := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  seed=%d  periods=%d\n",
					run.ID, run.CreatedAt, run.ModelName, run.Seed, run.Periods)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "costsim.db", "SQLite database to read")
	cmd.MarkFlagRequired("db")
	return cmd
}

// saveReports writes each report as JSON and CSV files named after the run
// kind, timestamp, and period.
func saveReports(dir, kind string, reports []*report.Report) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	stamp := time.Now().Format("20060102_150405")
	for _, rep := range reports {
		base := filepath.Join(dir, fmt.Sprintf("%s_%s_p%03d", kind, stamp, rep.Period))

		jf, err := os.Create(base + ".json")
		if err != nil {
			return err
		}
		if err := report.WriteJSON(jf, rep); err != nil {
			jf.Close()
			return err
		}
		jf.Close()

		cf, err := os.Create(base + ".csv")
		if err != nil {
			return err
		}
		if err := report.WriteCSV(cf, rep); err != nil {
			cf.Close()
			return err
		}
		cf.Close()
	}
	slog.Info("reports written", "dir", dir, "count", len(reports))
	return nil
}

func money(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 2)
}

// printReport renders one period's breakdown.
func printReport(cmd *cobra.Command, rep *report.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Period %d\n\n", rep.Period)
	for _, cat := range rep.Costs {
		fmt.Fprintf(out, "cost / %s\n", cat.Name)
		for _, res := range cat.Resources {
			fmt.Fprintf(out, "  %-40s %16s\n", res.Name, money(res.Value))
		}
	}
	for _, cat := range rep.Income {
		fmt.Fprintf(out, "income / %s\n", cat.Name)
		for _, res := range cat.Resources {
			fmt.Fprintf(out, "  %-40s %16s\n", res.Name, money(res.Value))
		}
	}
	fmt.Fprintf(out, "\n%-42s %16s\n", "total cost", money(rep.TotalCost))
	fmt.Fprintf(out, "%-42s %16s\n", "total income", money(rep.TotalIncome))
	fmt.Fprintf(out, "%-42s %16s\n", "net result", money(rep.NetResult))
}

// printSimulation renders the per-period totals plus run aggregates.
func printSimulation(cmd *cobra.Command, reports []*report.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-8s %18s %18s %18s\n", "period", "total cost", "total income", "net result")
	var sumCost, sumIncome float64
	for _, rep := range reports {
		fmt.Fprintf(out, "%-8d %18s %18s %18s\n",
			rep.Period, money(rep.TotalCost), money(rep.TotalIncome), money(rep.NetResult))
		sumCost += rep.TotalCost
		sumIncome += rep.TotalIncome
	}
	fmt.Fprintf(out, "\n%-8s %18s %18s %18s\n", "total",
		money(sumCost), money(sumIncome), money(sumIncome-sumCost))
}
