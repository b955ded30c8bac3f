package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"storage-cost/core/cost"
	"storage-cost/core/forecast"
	"storage-cost/core/normalize"
	"storage-cost/internal/errors"
)

// readDocument reads a JSON or YAML file and returns it as JSON. YAML goes
// through a generic tree so that json tags and raw JSON fields such as
// resource metrics decode the same way for both formats. "-" reads JSON
// from stdin.
func readDocument(path string, stdin io.Reader) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.TypeConfig, err, "reading %s", path)
	}
	return toJSON(path, data)
}

func toJSON(name string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.Parsing("yaml document "+name, err)
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, errors.Parsing("converting "+name+" to json", err)
		}
		return out, nil
	case ".json", "":
		return data, nil
	default:
		return nil, errors.Newf(errors.TypeParsing, "unsupported file type %q (want .json, .yaml or .yml)", filepath.Ext(name))
	}
}

func isArray(doc []byte) bool {
	doc = bytes.TrimSpace(doc)
	return len(doc) > 0 && doc[0] == '['
}

// resourceFile is the object form of a resources document
type resourceFile struct {
	Resources []normalize.ResourceConfig `json:"resources"`
}

// loadResources accepts either a bare list of resources or an object with
// a "resources" list
func loadResources(path string, stdin io.Reader) ([]normalize.ResourceConfig, error) {
	doc, err := readDocument(path, stdin)
	if err != nil {
		return nil, err
	}
	var resources []normalize.ResourceConfig
	if isArray(doc) {
		err = json.Unmarshal(doc, &resources)
	} else {
		var f resourceFile
		err = json.Unmarshal(doc, &f)
		resources = f.Resources
	}
	if err != nil {
		return nil, errors.Parsing("resources in "+path, err)
	}
	if len(resources) == 0 {
		return nil, errors.Newf(errors.TypeValidationFailed, "%s contains no resources", path)
	}
	return resources, nil
}

// loadActuals reads a list of billed amounts
func loadActuals(path string, stdin io.Reader) (cost.StaticActuals, error) {
	doc, err := readDocument(path, stdin)
	if err != nil {
		return nil, err
	}
	var actuals []cost.ActualCost
	if err := json.Unmarshal(doc, &actuals); err != nil {
		return nil, errors.Parsing("actual costs in "+path, err)
	}
	return cost.StaticActuals(actuals), nil
}

// historyFile is the object form of a history document
type historyFile struct {
	ResourceID string            `json:"resourceId"`
	Daily      []decimal.Decimal `json:"daily"`
	Samples    []forecast.Sample `json:"samples"`
}

// loadHistory reads daily costs, oldest first. A document is a bare list of
// amounts, or an object with either "daily" amounts or dated "samples".
func loadHistory(path string, stdin io.Reader) (string, []decimal.Decimal, error) {
	doc, err := readDocument(path, stdin)
	if err != nil {
		return "", nil, err
	}
	if isArray(doc) {
		var daily []decimal.Decimal
		if err := json.Unmarshal(doc, &daily); err != nil {
			return "", nil, errors.Parsing("history in "+path, err)
		}
		return "", daily, nil
	}

	var f historyFile
	if err := json.Unmarshal(doc, &f); err != nil {
		return "", nil, errors.Parsing("history in "+path, err)
	}
	if len(f.Samples) > 0 {
		if len(f.Daily) > 0 {
			return "", nil, errors.New(errors.TypeValidationFailed, "history sets both daily and samples")
		}
		samples := append([]forecast.Sample(nil), f.Samples...)
		sortSamples(samples)
		return f.ResourceID, forecast.Values(samples), nil
	}
	return f.ResourceID, f.Daily, nil
}

func sortSamples(samples []forecast.Sample) {
	slices.SortStableFunc(samples, func(a, b forecast.Sample) int {
		return a.Day.Compare(b.Day)
	})
}
