// Package permutation - File share permutations
package permutation

import "storage-cost/core/types"

var fileShareProduct = types.ProductRef{ServiceName: "Storage", ProductName: "Files v2"}

// registerFileShare populates the file share permutations
func registerFileShare(c *Catalogue) {
	allRedundancy := []types.Redundancy{types.RedundancyLRS, types.RedundancyZRS, types.RedundancyGRS, types.RedundancyGZRS}
	localRedundancy := []types.Redundancy{types.RedundancyLRS, types.RedundancyZRS}

	id := 0
	next := func() int { id++; return id }

	// ============================================
	// PAY-AS-YOU-GO (billed on consumed capacity)
	// ============================================

	standard := []struct {
		tier, sku, priceTier string
		extra                []types.MeterRole
	}{
		{"TransactionOptimized", "Transaction Optimized", "transaction_optimized", nil},
		{"Hot", "Hot", "hot", nil},
		{"Cool", "Cool", "cool", roles(types.RoleRetrieval)},
	}
	for _, s := range standard {
		for _, red := range allRedundancy {
			optional := append(roles(types.RoleTransactions, types.RoleSnapshot, types.RoleEgress), s.extra...)
			product := fileShareProduct
			product.SkuName = s.sku + " " + string(red)
			c.register(Permutation{
				ID:                 next(),
				Family:             types.FamilyFileShare,
				Tier:               s.tier,
				Redundancy:         red,
				Formula:            FormulaSimpleCapacity,
				IncludedThroughput: None(),
				IncludedIOPS:       None(),
				RequiredMeters:     roles(types.RoleCapacity),
				OptionalMeters:     optional,
				// consumed capacity is billed from zero
				MinCapacityGiB: 0,
				MaxCapacityGiB: 102400,
				Product:        product,
				PriceTier:      s.priceTier,
			})
		}
	}

	// ============================================
	// PROVISIONED V1 (premium, SSD)
	// ============================================

	for _, red := range localRedundancy {
		c.register(Permutation{
			ID:                 next(),
			Family:             types.FamilyFileShare,
			Tier:               "Premium",
			Redundancy:         red,
			Provisioned:        true,
			Formula:            FormulaSimpleCapacity,
			IncludedThroughput: PerCapacity(100, "0.04"),
			IncludedIOPS:       PerCapacity(3000, "1"),
			RequiredMeters:     roles(types.RoleCapacity),
			OptionalMeters:     roles(types.RoleSnapshot),
			MinCapacityGiB:     100,
			MaxCapacityGiB:     102400,
			Product:            types.ProductRef{ServiceName: "Storage", ProductName: "Premium Files", SkuName: "Premium " + string(red)},
			PriceTier:          "premium",
		})
	}

	// ============================================
	// PROVISIONED V2 (capacity, IOPS and throughput provisioned separately)
	// ============================================

	for _, red := range localRedundancy {
		c.register(Permutation{
			ID:                 next(),
			Family:             types.FamilyFileShare,
			Tier:               "ProvisionedV2SSD",
			Redundancy:         red,
			Provisioned:        true,
			Formula:            FormulaUsagePerformance,
			IncludedThroughput: PerCapacity(100, "0.1"),
			IncludedIOPS:       PerCapacity(3000, "1"),
			RequiredMeters:     roles(types.RoleCapacity),
			OptionalMeters:     roles(types.RoleIOPS, types.RoleThroughput, types.RoleSnapshot),
			MinCapacityGiB:     32,
			MaxCapacityGiB:     262144,
			Product:            types.ProductRef{ServiceName: "Storage", ProductName: "Files Provisioned v2", SkuName: "SSD " + string(red)},
			PriceTier:          "provisioned_v2_ssd",
		})
	}
	for _, red := range allRedundancy {
		c.register(Permutation{
			ID:                 next(),
			Family:             types.FamilyFileShare,
			Tier:               "ProvisionedV2HDD",
			Redundancy:         red,
			Provisioned:        true,
			Formula:            FormulaUsagePerformance,
			IncludedThroughput: Flat(60),
			IncludedIOPS:       Flat(500),
			RequiredMeters:     roles(types.RoleCapacity),
			OptionalMeters:     roles(types.RoleIOPS, types.RoleThroughput, types.RoleSnapshot),
			MinCapacityGiB:     32,
			MaxCapacityGiB:     262144,
			Product:            types.ProductRef{ServiceName: "Storage", ProductName: "Files Provisioned v2", SkuName: "HDD " + string(red)},
			PriceTier:          "provisioned_v2_hdd",
		})
	}

	c.alias(types.FamilyFileShare, "Transaction_Optimized", "TransactionOptimized", types.RedundancyNone)
	c.alias(types.FamilyFileShare, "PremiumV1", "Premium", types.RedundancyNone)
	c.alias(types.FamilyFileShare, "ProvisionedV1", "Premium", types.RedundancyNone)
	c.alias(types.FamilyFileShare, "Premium_LRS", "Premium", types.RedundancyLRS)
	c.alias(types.FamilyFileShare, "Premium_ZRS", "Premium", types.RedundancyZRS)
	c.alias(types.FamilyFileShare, "PremiumV2", "ProvisionedV2SSD", types.RedundancyNone)
	c.alias(types.FamilyFileShare, "StandardV2", "ProvisionedV2HDD", types.RedundancyNone)
}
