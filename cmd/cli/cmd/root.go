// Package cmd provides the CLI commands for storage-cost.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"storage-cost/internal/config"
	"storage-cost/internal/logging"
)

// Version is stamped at build time
var Version = "0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "storage-cost",
	Short: "Estimate and forecast cloud storage costs",
	Long: `storage-cost classifies file share, NAS volume and block disk
configurations into billing permutations, prices them from the retail
prices API and projects daily cost history forward.

Examples:
  storage-cost estimate -f volumes.yaml
  storage-cost estimate -f volumes.json --format json --record
  storage-cost forecast --resource vol-1
  storage-cost catalogue --family NasVolume
  storage-cost pricing get --region eastus --family FileShare --tier hot --role capacity`,
	SilenceUsage: true,
}

// Execute runs the CLI. Interrupts cancel in-flight price fetches and
// stop scheduling batch items.
func Execute() error {
	defer logging.Sync()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(forecastCmd)
	rootCmd.AddCommand(catalogueCmd)
	rootCmd.AddCommand(pricingCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	config.Set(cfg)

	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
	if verbose {
		logging.SetLevel(zapcore.DebugLevel)
	}
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "storage-cost version %s\n", Version)
	},
}

// configCmd prints the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return render(cmd.OutOrStdout(), "yaml", config.Get(), nil)
	},
}
