// Package permutation - Configuration classification
package permutation

import (
	"storage-cost/core/types"
	"storage-cost/internal/errors"
)

// Classify maps a storage configuration to exactly one permutation.
//
// Cool access and double encryption together always fail with
// INCOMPATIBLE_FLAGS. Tuples with no catalogue entry fail with
// UNSUPPORTED_CONFIGURATION. NAS volumes ignore redundancy. For the other
// families an empty redundancy means LRS unless the tier name implies one.
func Classify(family types.Family, tier string, coolAccess, doubleEncryption bool, redundancy types.Redundancy) (Permutation, error) {
	if coolAccess && doubleEncryption {
		return Permutation{}, errors.IncompatibleFlags("cool access and double encryption cannot both be enabled").
			WithContext("family", string(family)).
			WithContext("tier", tier)
	}
	if !family.IsValid() {
		return Permutation{}, errors.UnsupportedConfiguration("unknown storage family %q", family)
	}

	alias, ok := catalogue.aliases[family][normalizeTier(tier)]
	if !ok {
		return Permutation{}, errors.UnsupportedConfiguration("unrecognized %s tier %q", family, tier).
			WithContext("family", string(family))
	}

	red, err := resolveRedundancy(family, redundancy, alias.redundancy)
	if err != nil {
		return Permutation{}, err
	}

	i, ok := catalogue.byTuple[tupleKey{family, normalizeTier(alias.tier), coolAccess, doubleEncryption, red}]
	if !ok {
		return Permutation{}, errors.UnsupportedConfiguration("no %s permutation for tier %s, redundancy %q, coolAccess=%t, doubleEncryption=%t",
			family, alias.tier, red, coolAccess, doubleEncryption).
			WithContext("family", string(family)).
			WithContext("tier", alias.tier)
	}
	return catalogue.entries[i].clone(), nil
}

func resolveRedundancy(family types.Family, given, implied types.Redundancy) (types.Redundancy, error) {
	if family == types.FamilyNASVolume {
		return types.RedundancyNone, nil
	}

	red, ok := types.ParseRedundancy(string(given))
	if !ok {
		return "", errors.UnsupportedConfiguration("unknown redundancy %q", given)
	}
	switch {
	case implied != types.RedundancyNone && red != types.RedundancyNone && red != implied:
		return "", errors.UnsupportedConfiguration("redundancy %s conflicts with tier implying %s", red, implied)
	case implied != types.RedundancyNone:
		return implied, nil
	case red == types.RedundancyNone:
		return types.RedundancyLRS, nil
	default:
		return red, nil
	}
}
