package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"storage-cost/adapters/storage"
	"storage-cost/core/forecast"
	"storage-cost/internal/config"
	"storage-cost/internal/errors"
	"storage-cost/internal/logging"
)

var (
	forecastFile     string
	forecastResource string
	forecastWindow   int
	forecastFormat   string
)

// forecastCmd projects daily cost history forward
var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast future cost from daily history",
	Long: `Forecast projects a series of daily costs over the configured horizon
and reports a low/mid/high band, the trend and a confidence score.

History comes from a file (-f) or from the costs recorded by
"estimate --record" in the configured store (--resource).

Examples:
  storage-cost forecast -f history.json
  storage-cost forecast --resource vol-1 --window 60`,
	RunE: runForecast,
}

func init() {
	forecastCmd.Flags().StringVarP(&forecastFile, "file", "f", "", "history document (JSON or YAML, - for stdin)")
	forecastCmd.Flags().StringVar(&forecastResource, "resource", "", "forecast the recorded history of this resource")
	forecastCmd.Flags().IntVar(&forecastWindow, "window", 30, "days of recorded history to use with --resource")
	forecastCmd.Flags().StringVar(&forecastFormat, "format", formatTable, "output format (table, json, yaml)")
	forecastCmd.MarkFlagsMutuallyExclusive("file", "resource")
}

// forecastReport is the rendered output of a forecast
type forecastReport struct {
	ResourceID string `json:"resourceId,omitempty" yaml:"resourceId,omitempty"`
	forecast.CostForecast `yaml:",inline"`
}

func runForecast(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	fc := newForecaster(cfg.Forecast)

	var report forecastReport
	switch {
	case forecastFile != "":
		id, daily, err := loadHistory(forecastFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
		report = forecastReport{ResourceID: id, CostForecast: fc.Forecast(daily)}

	case forecastResource != "":
		ctx := cmd.Context()
		store, err := storage.Open(ctx, cfg.Store, logging.Named("cli"))
		if err != nil {
			return err
		}
		defer store.Close()

		f, err := fc.ForecastResource(ctx, store, forecastResource, forecastWindow)
		if err != nil {
			return err
		}
		report = forecastReport{ResourceID: forecastResource, CostForecast: f}

	default:
		return errors.Config("one of --file or --resource is required")
	}

	return render(cmd.OutOrStdout(), forecastFormat, report, func(w io.Writer) {
		printForecast(w, report)
	})
}

func printForecast(w io.Writer, r forecastReport) {
	title := "COST FORECAST"
	if r.ResourceID != "" {
		title += " " + r.ResourceID
	}
	boxTop(w, truncate(title, boxWidth-2))

	boxRow(w, fmt.Sprintf("Next %d days (low)", r.HorizonDays), money(r.LowEstimate))
	boxRow(w, fmt.Sprintf("Next %d days (mid)", r.HorizonDays), money(r.MidEstimate))
	boxRow(w, fmt.Sprintf("Next %d days (high)", r.HorizonDays), money(r.HighEstimate))
	boxRule(w)
	boxRow(w, "Trend", string(r.Trend))
	boxRow(w, "Daily growth", fmt.Sprintf("%.2f%%", r.DailyGrowthRatePercent))
	boxRow(w, "Mean daily cost", "$"+r.Mean.StringFixed(4))
	boxRow(w, "Coefficient of variation", fmt.Sprintf("%.4f", r.CoefficientOfVariation))
	boxRow(w, fmt.Sprintf("Confidence (%d samples)", r.Samples), fmt.Sprintf("%.1f%%", r.ConfidencePercent))
	if r.LowConfidence {
		boxRow(w, "Series too short for trend detection", "")
	}
	boxBottom(w)
}
