// Package types contains the shared value types of the storage cost engine.
// These types are used across all layers and must remain stable.
package types

import (
	"strings"
	"time"
)

// Family is a storage family with its own permutation catalogue
type Family string

const (
	FamilyFileShare Family = "FileShare"
	FamilyNASVolume Family = "NASVolume"
	FamilyBlockDisk Family = "BlockDisk"
)

// Families lists every supported family in catalogue order
var Families = []Family{FamilyFileShare, FamilyNASVolume, FamilyBlockDisk}

// String returns the string representation
func (f Family) String() string {
	return string(f)
}

// IsValid checks if the family is supported
func (f Family) IsValid() bool {
	switch f {
	case FamilyFileShare, FamilyNASVolume, FamilyBlockDisk:
		return true
	default:
		return false
	}
}

// Prefix returns the short lowercase prefix used in meter keys
func (f Family) Prefix() string {
	switch f {
	case FamilyFileShare:
		return "fs"
	case FamilyNASVolume:
		return "nas"
	case FamilyBlockDisk:
		return "disk"
	default:
		return ""
	}
}

// FamilyFromPrefix is the inverse of Family.Prefix
func FamilyFromPrefix(prefix string) (Family, bool) {
	for _, f := range Families {
		if f.Prefix() == prefix {
			return f, true
		}
	}
	return "", false
}

// ParseFamily accepts a family name case-insensitively, with a few aliases
func ParseFamily(s string) (Family, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fileshare", "file_share", "files", "fs":
		return FamilyFileShare, true
	case "nasvolume", "nas_volume", "nas", "netapp":
		return FamilyNASVolume, true
	case "blockdisk", "block_disk", "disk", "manageddisk":
		return FamilyBlockDisk, true
	default:
		return "", false
	}
}

// Redundancy is a replication option. The empty value means not applicable.
type Redundancy string

const (
	RedundancyNone Redundancy = ""
	RedundancyLRS  Redundancy = "LRS"
	RedundancyZRS  Redundancy = "ZRS"
	RedundancyGRS  Redundancy = "GRS"
	RedundancyGZRS Redundancy = "GZRS"
)

// String returns the string representation
func (r Redundancy) String() string {
	return string(r)
}

// ParseRedundancy normalizes a redundancy name; unknown values are returned
// uppercased with ok=false so callers can report them.
func ParseRedundancy(s string) (Redundancy, bool) {
	r := Redundancy(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RedundancyNone, RedundancyLRS, RedundancyZRS, RedundancyGRS, RedundancyGZRS:
		return r, true
	default:
		return r, false
	}
}

// MeterRole is the billing role of a meter and of the cost component it prices
type MeterRole string

const (
	RoleCapacity     MeterRole = "capacity"
	RoleCoolCapacity MeterRole = "coolCapacity"
	RoleThroughput   MeterRole = "throughput"
	RoleIOPS         MeterRole = "iops"
	RoleTiering      MeterRole = "tiering"
	RoleRetrieval    MeterRole = "retrieval"
	RoleTransactions MeterRole = "transactions"
	RoleEgress       MeterRole = "egress"
	RoleSnapshot     MeterRole = "snapshot"
	RoleBackup       MeterRole = "backup"

	// Per-operation meters. They price parts of the transactions component
	// and never appear as components of their own.
	RoleReadOperations  MeterRole = "readOperations"
	RoleWriteOperations MeterRole = "writeOperations"
	RoleListOperations  MeterRole = "listOperations"
)

// MeterRoles lists every role in presentation order
var MeterRoles = []MeterRole{
	RoleCapacity,
	RoleCoolCapacity,
	RoleThroughput,
	RoleIOPS,
	RoleTiering,
	RoleRetrieval,
	RoleTransactions,
	RoleEgress,
	RoleSnapshot,
	RoleBackup,
	RoleReadOperations,
	RoleWriteOperations,
	RoleListOperations,
}

// OperationRoles are the per-operation meters summed into RoleTransactions
var OperationRoles = []MeterRole{RoleReadOperations, RoleWriteOperations, RoleListOperations}

// PerOperation reports whether the role is priced per operation
func (r MeterRole) PerOperation() bool {
	switch r {
	case RoleTransactions, RoleReadOperations, RoleWriteOperations, RoleListOperations:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (r MeterRole) String() string {
	return string(r)
}

// IsValid checks if the role is one of the known roles
func (r MeterRole) IsValid() bool {
	for _, known := range MeterRoles {
		if r == known {
			return true
		}
	}
	return false
}

// Order returns the presentation index of the role, or len(MeterRoles)
func (r MeterRole) Order() int {
	for i, known := range MeterRoles {
		if r == known {
			return i
		}
	}
	return len(MeterRoles)
}

// ParseMeterRole matches a role name case-insensitively
func ParseMeterRole(s string) (MeterRole, bool) {
	for _, known := range MeterRoles {
		if strings.EqualFold(string(known), s) {
			return known, true
		}
	}
	return "", false
}

// ProductRef identifies a product in the retail price catalogue
type ProductRef struct {
	// ServiceName is the top-level service (e.g., "Storage", "Azure NetApp Files")
	ServiceName string `json:"serviceName" yaml:"serviceName"`

	// ProductName is the product within the service
	ProductName string `json:"productName" yaml:"productName"`

	// SkuName narrows the product to one SKU; empty matches all SKUs
	SkuName string `json:"skuName,omitempty" yaml:"skuName,omitempty"`
}

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now calls f
func (f ClockFunc) Now() time.Time {
	return f()
}
