package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"storage-cost/internal/errors"
)

// Output formats
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// render writes v as JSON or YAML, or calls table for the table format.
// A nil table falls back to YAML.
func render(w io.Writer, format string, v any, table func(io.Writer)) error {
	switch format {
	case formatJSON:
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return errors.Wrap(errors.TypeInternal, "encoding json", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(errors.TypeInternal, "encoding yaml", err)
		}
		return enc.Close()
	case formatTable, "":
		if table == nil {
			return render(w, formatYAML, v, nil)
		}
		table(w)
		return nil
	default:
		return errors.Newf(errors.TypeConfig, "unknown output format %q (want table, json or yaml)", format)
	}
}

const boxWidth = 73

func boxTop(w io.Writer, title string) {
	fmt.Fprintln(w, "┌"+strings.Repeat("─", boxWidth)+"┐")
	pad := boxWidth - len(title)
	left := pad / 2
	fmt.Fprintln(w, "│"+strings.Repeat(" ", left)+title+strings.Repeat(" ", pad-left)+"│")
	boxRule(w)
}

func boxRule(w io.Writer) {
	fmt.Fprintln(w, "├"+strings.Repeat("─", boxWidth)+"┤")
}

func boxBottom(w io.Writer) {
	fmt.Fprintln(w, "└"+strings.Repeat("─", boxWidth)+"┘")
}

func boxRow(w io.Writer, label, value string) {
	fmt.Fprintf(w, "│ %-50s %20s │\n", truncate(label, 50), truncate(value, 20))
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
