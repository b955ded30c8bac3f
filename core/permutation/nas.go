// Package permutation - NAS volume permutations
package permutation

import "storage-cost/core/types"

// registerNASVolume populates the NAS volume permutations. NAS volumes have
// no redundancy axis; each service level comes plain, with cool access, or
// with double encryption.
func registerNASVolume(c *Catalogue) {
	levels := []struct {
		tier       string
		throughput BaselineRule
		formula    Formula
		required   []types.MeterRole
	}{
		// 16 MiB/s per TiB
		{"Standard", PerCapacity(0, "0.015625"), FormulaSimpleCapacity, roles(types.RoleCapacity)},
		// 64 MiB/s per TiB
		{"Premium", PerCapacity(0, "0.0625"), FormulaSimpleCapacity, roles(types.RoleCapacity)},
		// 128 MiB/s per TiB
		{"Ultra", PerCapacity(0, "0.125"), FormulaSimpleCapacity, roles(types.RoleCapacity)},
		{"Flexible", Flat(128), FormulaFlatBaseline, roles(types.RoleCapacity, types.RoleThroughput)},
	}

	id := 0
	for _, l := range levels {
		product := types.ProductRef{ServiceName: "Azure NetApp Files", ProductName: "Azure NetApp Files", SkuName: l.tier}
		base := Permutation{
			Family:             types.FamilyNASVolume,
			Tier:               l.tier,
			Provisioned:        true,
			Formula:            l.formula,
			IncludedThroughput: l.throughput,
			IncludedIOPS:       None(),
			OptionalMeters:     roles(types.RoleBackup, types.RoleSnapshot),
			MinCapacityGiB:     50,
			MaxCapacityGiB:     102400,
			Product:            product,
			PriceTier:          normalizeTier(l.tier),
		}

		id++
		plain := base
		plain.ID = id
		plain.RequiredMeters = l.required
		c.register(plain)

		id++
		cool := base
		cool.ID = id
		cool.CoolAccess = true
		cool.MinCapacityGiB = 2048
		if l.formula == FormulaSimpleCapacity {
			cool.Formula = FormulaCoolSplit
		}
		cool.RequiredMeters = append(append([]types.MeterRole(nil), l.required...),
			types.RoleCoolCapacity, types.RoleTiering, types.RoleRetrieval)
		c.register(cool)

		id++
		dbl := base
		dbl.ID = id
		dbl.DoubleEncryption = true
		dbl.RequiredMeters = l.required
		dbl.Product.SkuName = l.tier + " Double Encrypted"
		dbl.PriceTier = normalizeTier(l.tier) + "_double_encryption"
		c.register(dbl)
	}
}
