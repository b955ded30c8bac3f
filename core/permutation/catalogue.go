// Package permutation - Catalogue registry
package permutation

import (
	"fmt"
	"sort"
	"strings"

	"storage-cost/core/types"
)

// tupleKey is the classification tuple a permutation is indexed by
type tupleKey struct {
	family     types.Family
	tier       string
	cool       bool
	dblEnc     bool
	redundancy types.Redundancy
}

type idKey struct {
	family types.Family
	id     int
}

// tierAlias maps an accepted tier spelling to the canonical tier, with the
// redundancy implied by SKU-style names such as "Premium_ZRS"
type tierAlias struct {
	tier       string
	redundancy types.Redundancy
}

// Catalogue is the immutable permutation table
type Catalogue struct {
	entries []Permutation
	byTuple map[tupleKey]int
	byID    map[idKey]int
	aliases map[types.Family]map[string]tierAlias
}

func newCatalogue() *Catalogue {
	return &Catalogue{
		byTuple: make(map[tupleKey]int),
		byID:    make(map[idKey]int),
		aliases: make(map[types.Family]map[string]tierAlias),
	}
}

// register adds a permutation. Duplicate tuples or IDs are programming
// errors in the static tables and panic at start-up.
func (c *Catalogue) register(p Permutation) {
	tk := tupleKey{p.Family, normalizeTier(p.Tier), p.CoolAccess, p.DoubleEncryption, p.Redundancy}
	if _, dup := c.byTuple[tk]; dup {
		panic(fmt.Sprintf("permutation: duplicate tuple for %s", p))
	}
	ik := idKey{p.Family, p.ID}
	if _, dup := c.byID[ik]; dup {
		panic(fmt.Sprintf("permutation: duplicate id %s", p.Code()))
	}
	if p.CoolAccess && p.DoubleEncryption {
		panic(fmt.Sprintf("permutation: %s combines cool access and double encryption", p.Code()))
	}
	if len(p.RequiredMeters) == 0 || p.RequiredMeters[0] != types.RoleCapacity {
		panic(fmt.Sprintf("permutation: %s must require capacity first", p.Code()))
	}

	c.entries = append(c.entries, p)
	c.byTuple[tk] = len(c.entries) - 1
	c.byID[ik] = len(c.entries) - 1
	c.alias(p.Family, p.Tier, p.Tier, types.RedundancyNone)
}

// alias registers an accepted spelling for a canonical tier
func (c *Catalogue) alias(family types.Family, spelling, tier string, implied types.Redundancy) {
	m, ok := c.aliases[family]
	if !ok {
		m = make(map[string]tierAlias)
		c.aliases[family] = m
	}
	m[normalizeTier(spelling)] = tierAlias{tier: tier, redundancy: implied}
}

// seal orders entries by family then ID and checks IDs are dense
func (c *Catalogue) seal() *Catalogue {
	sort.SliceStable(c.entries, func(i, j int) bool {
		fi, fj := familyOrder(c.entries[i].Family), familyOrder(c.entries[j].Family)
		if fi != fj {
			return fi < fj
		}
		return c.entries[i].ID < c.entries[j].ID
	})
	counts := make(map[types.Family]int)
	for i, p := range c.entries {
		counts[p.Family]++
		if p.ID != counts[p.Family] {
			panic(fmt.Sprintf("permutation: %s ids are not dense 1..N", p.Family))
		}
		c.byTuple[tupleKey{p.Family, normalizeTier(p.Tier), p.CoolAccess, p.DoubleEncryption, p.Redundancy}] = i
		c.byID[idKey{p.Family, p.ID}] = i
	}
	return c
}

func familyOrder(f types.Family) int {
	for i, known := range types.Families {
		if f == known {
			return i
		}
	}
	return len(types.Families)
}

// normalizeTier lowercases and strips everything but letters and digits
func normalizeTier(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var catalogue = buildCatalogue()

func buildCatalogue() *Catalogue {
	c := newCatalogue()
	registerFileShare(c)
	registerNASVolume(c)
	registerBlockDisk(c)
	return c.seal()
}

// All returns every permutation ordered by family and ID
func All() []Permutation {
	out := make([]Permutation, len(catalogue.entries))
	for i, p := range catalogue.entries {
		out[i] = p.clone()
	}
	return out
}

// ByFamily returns the permutations of one family ordered by ID
func ByFamily(family types.Family) []Permutation {
	var out []Permutation
	for _, p := range catalogue.entries {
		if p.Family == family {
			out = append(out, p.clone())
		}
	}
	return out
}

// ByID returns the permutation with the given family-scoped ID
func ByID(family types.Family, id int) (Permutation, bool) {
	i, ok := catalogue.byID[idKey{family, id}]
	if !ok {
		return Permutation{}, false
	}
	return catalogue.entries[i].clone(), true
}

// Count returns the number of permutations in a family
func Count(family types.Family) int {
	n := 0
	for _, p := range catalogue.entries {
		if p.Family == family {
			n++
		}
	}
	return n
}
