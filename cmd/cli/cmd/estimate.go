package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"storage-cost/core/engine"
	"storage-cost/core/types"
	"storage-cost/internal/config"
)

var (
	estimateFile    string
	estimateFormat  string
	estimateRecord  bool
	estimateActuals string
	estimateOffline bool
	showDetails     bool
	estimateMetrics bool
)

// estimateCmd prices a batch of storage resources
var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate costs for storage resources",
	Long: `Estimate classifies each resource into its billing permutation, prices
every component and totals the billing window.

Resources are read from a JSON or YAML document holding either a list of
resources or an object with a "resources" list. Items fail independently;
the command exits non-zero when any item failed.

Examples:
  storage-cost estimate -f volumes.yaml
  storage-cost estimate -f volumes.json --format json
  storage-cost estimate -f volumes.yaml --actuals billed.json --record`,
	RunE: runEstimate,
}

func init() {
	estimateCmd.Flags().StringVarP(&estimateFile, "file", "f", "", "resources document (JSON or YAML, - for stdin)")
	estimateCmd.Flags().StringVar(&estimateFormat, "format", formatTable, "output format (table, json, yaml)")
	estimateCmd.Flags().BoolVar(&estimateRecord, "record", false, "append each daily cost to the history store")
	estimateCmd.Flags().StringVar(&estimateActuals, "actuals", "", "billed amounts to reconcile against (JSON or YAML)")
	estimateCmd.Flags().BoolVar(&estimateOffline, "offline", false, "do not query the retail prices API")
	estimateCmd.Flags().BoolVar(&showDetails, "details", false, "show per-component costs")
	estimateCmd.Flags().BoolVar(&estimateMetrics, "metrics", false, "write collected metrics to stderr")
}

// estimateReport is the rendered output of a batch
type estimateReport struct {
	Results  []engine.Result `json:"results" yaml:"results"`
	Total    decimal.Decimal `json:"total" yaml:"total"`
	Currency types.Currency  `json:"currency" yaml:"currency"`
	Failed   int             `json:"failed" yaml:"failed"`
}

func runEstimate(cmd *cobra.Command, args []string) error {
	if err := requireFlag("file", estimateFile); err != nil {
		return err
	}
	resources, err := loadResources(estimateFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cfg := config.Get()
	rt, err := newRuntime(ctx, cfg, runtimeOptions{offline: estimateOffline})
	if err != nil {
		return err
	}
	defer rt.Close()

	var opts []engine.Option
	if estimateActuals != "" {
		actuals, err := loadActuals(estimateActuals, cmd.InOrStdin())
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithActuals(actuals))
	}

	results := rt.engine(estimateRecord, opts...).EstimateBatch(ctx, resources)
	report := estimateReport{
		Results:  results,
		Total:    engine.BatchTotal(results),
		Currency: types.Currency(cfg.Pricing.Currency),
	}
	for _, r := range results {
		if r.Err != nil {
			report.Failed++
		}
	}

	if err := render(cmd.OutOrStdout(), estimateFormat, report, func(w io.Writer) {
		printEstimates(w, report, cfg.Engine.PeriodHours)
	}); err != nil {
		return err
	}
	if estimateMetrics {
		if err := rt.writeMetrics(os.Stderr); err != nil {
			return err
		}
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d resources failed", report.Failed, len(results))
	}
	return nil
}

func printEstimates(w io.Writer, report estimateReport, periodHours int) {
	boxTop(w, "STORAGE COST ESTIMATE")

	for _, r := range report.Results {
		label := r.ResourceID
		if r.Estimate != nil {
			label += " " + r.Estimate.Permutation
		}
		switch {
		case r.Err != nil && r.Estimate == nil:
			boxRow(w, label, "failed")
			boxRow(w, "  └─ "+r.Error, "")
			continue
		case r.Err != nil:
			boxRow(w, label, string(r.Estimate.Status))
			boxRow(w, "  └─ "+r.Error, "")
			continue
		}

		est := r.Estimate
		boxRow(w, label, money(est.Totals.TotalForPeriod))
		if showDetails {
			for _, c := range est.Components {
				boxRow(w, "  └─ "+string(c.Type), money(c.CostForPeriod))
			}
			boxRow(w, "     per day", "$"+est.Totals.PerDay.StringFixed(4))
			boxRow(w, fmt.Sprintf("     confidence %.0f%% (%s)", est.Confidence.Percent(), est.Status), "")
		}
	}

	boxRule(w)
	boxRow(w, fmt.Sprintf("TOTAL FOR %d HOURS", periodHours), money(report.Total))
	if report.Failed > 0 {
		boxRow(w, "FAILED RESOURCES", fmt.Sprintf("%d", report.Failed))
	}
	boxBottom(w)
}
