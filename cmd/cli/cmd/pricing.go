package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"storage-cost/core/permutation"
	"storage-cost/core/pricing"
	"storage-cost/core/types"
	"storage-cost/internal/config"
	"storage-cost/internal/errors"
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Inspect and manage resolved unit prices",
	Long: `Pricing commands resolve single unit prices through the same cache,
store and fallback chain the estimator uses, and manage persisted entries.`,
}

var pricingGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Resolve one unit price",
	Example: `  storage-cost pricing get --region eastus --family FileShare --tier hot --role capacity
  storage-cost pricing get --region westeurope --family nas --tier premium --cool --role coolCapacity`,
	RunE: runPricingGet,
}

var pricingInvalidateCmd = &cobra.Command{
	Use:   "invalidate <meter-key>",
	Short: "Drop a cached and persisted price",
	Args:  cobra.ExactArgs(1),
	RunE:  runPricingInvalidate,
}

var pricingSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "List the meter keys the fallback snapshot covers",
	RunE:  runPricingSnapshot,
}

var (
	pricingRegion     string
	pricingFamily     string
	pricingTier       string
	pricingRedundancy string
	pricingRole       string
	pricingCool       bool
	pricingDouble     bool
	pricingOffline    bool
	pricingFormat     string
)

func init() {
	pricingCmd.PersistentFlags().StringVar(&pricingRegion, "region", "", "region (e.g. eastus or \"East US\")")

	pricingGetCmd.Flags().StringVar(&pricingFamily, "family", "", "storage family")
	pricingGetCmd.Flags().StringVar(&pricingTier, "tier", "", "tier or SKU")
	pricingGetCmd.Flags().StringVar(&pricingRedundancy, "redundancy", "", "redundancy (LRS, ZRS, GRS, GZRS)")
	pricingGetCmd.Flags().StringVar(&pricingRole, "role", string(types.RoleCapacity), "meter role")
	pricingGetCmd.Flags().BoolVar(&pricingCool, "cool", false, "cool access enabled")
	pricingGetCmd.Flags().BoolVar(&pricingDouble, "double-encryption", false, "double encryption enabled")
	pricingGetCmd.Flags().BoolVar(&pricingOffline, "offline", false, "do not query the retail prices API")
	pricingGetCmd.Flags().StringVar(&pricingFormat, "format", formatTable, "output format (table, json, yaml)")

	pricingCmd.AddCommand(pricingGetCmd)
	pricingCmd.AddCommand(pricingInvalidateCmd)
	pricingCmd.AddCommand(pricingSnapshotCmd)
}

// priceQuery is a classified price lookup
type priceQuery struct {
	perm permutation.Permutation
	role types.MeterRole
	tc   pricing.TierContext
}

func buildPriceQuery(family, tier, redundancy, role string, cool, double bool) (priceQuery, error) {
	f, ok := types.ParseFamily(family)
	if !ok {
		return priceQuery{}, errors.Newf(errors.TypeUnsupportedConfiguration, "unknown storage family %q", family)
	}
	var red types.Redundancy
	if redundancy != "" {
		if red, ok = types.ParseRedundancy(redundancy); !ok {
			return priceQuery{}, errors.Newf(errors.TypeUnsupportedConfiguration, "unknown redundancy %q", redundancy)
		}
	}
	r, ok := types.ParseMeterRole(role)
	if !ok {
		return priceQuery{}, errors.Newf(errors.TypeUnsupportedConfiguration, "unknown meter role %q", role)
	}

	perm, err := permutation.Classify(f, tier, cool, double, red)
	if err != nil {
		return priceQuery{}, err
	}
	if !perm.Allows(r) {
		return priceQuery{}, errors.Newf(errors.TypeUnsupportedConfiguration, "%s does not bill %s", perm.Code(), r)
	}
	return priceQuery{
		perm: perm,
		role: r,
		tc: pricing.TierContext{
			Family:     perm.Family,
			Tier:       perm.PriceTier,
			Redundancy: perm.Redundancy,
			Product:    perm.Product,
		},
	}, nil
}

func runPricingGet(cmd *cobra.Command, args []string) error {
	if err := requireFlag("region", pricingRegion); err != nil {
		return err
	}
	q, err := buildPriceQuery(pricingFamily, pricingTier, pricingRedundancy, pricingRole, pricingCool, pricingDouble)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := newRuntime(ctx, config.Get(), runtimeOptions{offline: pricingOffline})
	if err != nil {
		return err
	}
	defer rt.Close()

	price, err := rt.resolver.GetPrice(ctx, pricingRegion, q.role, q.tc)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), pricingFormat, price, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s in %s\n", q.perm, q.role, pricingRegion)
		fmt.Fprintf(w, "  %s %s per %s (%s)\n", price.Amount.String(), price.Currency, price.UnitOfMeasure, price.Basis)
		fmt.Fprintf(w, "  meter:   %s\n", price.MeterName)
		fmt.Fprintf(w, "  source:  %s\n", price.Source)
		if !price.ExpiresAt.IsZero() {
			fmt.Fprintf(w, "  expires: %s\n", price.ExpiresAt.Format("2006-01-02 15:04 MST"))
		}
	})
}

func runPricingInvalidate(cmd *cobra.Command, args []string) error {
	if err := requireFlag("region", pricingRegion); err != nil {
		return err
	}
	key, err := pricing.ParseMeterKey(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := newRuntime(ctx, config.Get(), runtimeOptions{offline: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.resolver.Invalidate(ctx, pricingRegion, key); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s in %s\n", key, pricingRegion)
	return nil
}

func runPricingSnapshot(cmd *cobra.Command, args []string) error {
	snap, err := loadSnapshot(config.Get().Pricing.SnapshotPath)
	if err != nil {
		return err
	}
	region := pricingRegion
	if region == "" {
		region = pricing.AnyRegion
	}
	out := cmd.OutOrStdout()
	for _, k := range snap.Keys(region) {
		fmt.Fprintln(out, k)
	}
	for _, reason := range snap.Rejected() {
		fmt.Fprintf(out, "rejected: %s\n", reason)
	}
	return nil
}
