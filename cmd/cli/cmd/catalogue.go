package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"storage-cost/core/permutation"
	"storage-cost/core/types"
	"storage-cost/internal/errors"
)

var (
	catalogueFamily string
	catalogueFormat string
)

// catalogueCmd lists the billing permutations
var catalogueCmd = &cobra.Command{
	Use:     "catalogue",
	Aliases: []string{"catalog"},
	Short:   "List billing permutations",
	Example: `  storage-cost catalogue
  storage-cost catalogue --family nas --format yaml`,
	RunE: runCatalogue,
}

func init() {
	catalogueCmd.Flags().StringVar(&catalogueFamily, "family", "", "only list one family (FileShare, NasVolume, BlockDisk or an alias)")
	catalogueCmd.Flags().StringVar(&catalogueFormat, "format", formatTable, "output format (table, json, yaml)")
}

func runCatalogue(cmd *cobra.Command, args []string) error {
	perms, err := cataloguePermutations(catalogueFamily)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), catalogueFormat, perms, func(w io.Writer) {
		printCatalogue(w, perms)
	})
}

func cataloguePermutations(family string) ([]permutation.Permutation, error) {
	if family == "" {
		return permutation.All(), nil
	}
	f, ok := types.ParseFamily(family)
	if !ok {
		return nil, errors.Newf(errors.TypeUnsupportedConfiguration, "unknown storage family %q", family)
	}
	return permutation.ByFamily(f), nil
}

func printCatalogue(w io.Writer, perms []permutation.Permutation) {
	fmt.Fprintf(w, "%-13s %-22s %-4s %-5s %-5s %-18s %s\n",
		"CODE", "TIER", "RED", "COOL", "DBL", "FORMULA", "MIN GiB")
	for _, p := range perms {
		red := string(p.Redundancy)
		if red == "" {
			red = "-"
		}
		fmt.Fprintf(w, "%-13s %-22s %-4s %-5t %-5t %-18s %d\n",
			p.Code(), truncate(p.Tier, 22), red, p.CoolAccess, p.DoubleEncryption, p.Formula, p.MinCapacityGiB)
	}
	fmt.Fprintf(w, "\n%d permutations\n", len(perms))
}
