// Package normalize - Historical metrics payload schema
package normalize

import (
	"bytes"

	"github.com/goccy/go-json"

	"storage-cost/internal/errors"
)

// MetricsSchemaVersion is the only historical metrics schema this package decodes
const MetricsSchemaVersion = 1

// HistoricalMetrics is the typed metrics payload attached to a discovered
// resource. Byte counts cover the billing window.
type HistoricalMetrics struct {
	// SchemaVersion must equal MetricsSchemaVersion
	SchemaVersion int `json:"schemaVersion"`

	// HotBytes is data resident in the hot tier
	HotBytes *int64 `json:"hotBytes,omitempty"`

	// CoolBytes is data resident in the cool tier
	CoolBytes *int64 `json:"coolBytes,omitempty"`

	// TieredInBytes is data moved from hot to cool during the window
	TieredInBytes *int64 `json:"tieredInBytes,omitempty"`

	// RetrievedBytes is data read back from the cool tier during the window
	RetrievedBytes *int64 `json:"retrievedBytes,omitempty"`

	// UsedBytes is the consumed capacity
	UsedBytes *int64 `json:"usedBytes,omitempty"`

	// PeakThroughputMiBps is the highest observed throughput
	PeakThroughputMiBps *float64 `json:"peakThroughputMiBps,omitempty"`

	// PeakIOPS is the highest observed IOPS
	PeakIOPS *float64 `json:"peakIOPS,omitempty"`
}

// ParseHistoricalMetrics decodes a metrics payload. An empty payload yields
// nil metrics and no error.
func ParseHistoricalMetrics(raw []byte) (*HistoricalMetrics, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var m HistoricalMetrics
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Parsing("decoding historical metrics", err)
	}
	if m.SchemaVersion != MetricsSchemaVersion {
		return nil, errors.Newf(errors.TypeParsing, "unsupported historical metrics schemaVersion %d", m.SchemaVersion)
	}

	for name, v := range map[string]*int64{
		"hotBytes":       m.HotBytes,
		"coolBytes":      m.CoolBytes,
		"tieredInBytes":  m.TieredInBytes,
		"retrievedBytes": m.RetrievedBytes,
		"usedBytes":      m.UsedBytes,
	} {
		if v != nil && *v < 0 {
			return nil, errors.Newf(errors.TypeParsing, "historical metrics %s is negative", name)
		}
	}
	if m.PeakThroughputMiBps != nil && *m.PeakThroughputMiBps < 0 {
		return nil, errors.New(errors.TypeParsing, "historical metrics peakThroughputMiBps is negative")
	}
	if m.PeakIOPS != nil && *m.PeakIOPS < 0 {
		return nil, errors.New(errors.TypeParsing, "historical metrics peakIOPS is negative")
	}
	return &m, nil
}

// HasSplit reports whether the payload carries a hot/cool split
func (m *HistoricalMetrics) HasSplit() bool {
	return m != nil && m.HotBytes != nil && m.CoolBytes != nil
}
