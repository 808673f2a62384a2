// Package report defines the per-period output of the calculation engine
// and its JSON and CSV serialisations.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// Report is one period's computed costs, income, and net result, with the
// exact global values the period used. Timestamp is stamped by the caller
// (CLI, API, store); the engine itself is time-free so runs stay
// reproducible.
type Report struct {
	Timestamp time.Time
	Period    int
	Globals   map[string]float64
	Costs     []CategoryTotals
	Income    []CategoryTotals

	TotalCost   float64
	TotalIncome float64
	NetResult   float64
}

// CategoryTotals is one category's per-resource values, in declared order.
type CategoryTotals struct {
	Name      string
	Resources []ResourceTotal
}

// ResourceTotal is a single resource's contribution for the period.
type ResourceTotal struct {
	Name  string
	Value float64
}

// Lookup returns the value of the named resource in the named category.
func Lookup(cats []CategoryTotals, category, resource string) (float64, bool) {
	for _, c := range cats {
		if c.Name != category {
			continue
		}
		for _, r := range c.Resources {
			if r.Name == resource {
				return r.Value, true
			}
		}
	}
	return 0, false
}

// MarshalJSON writes the report in the document's serialisation shape:
// nested category → resource → value objects in declared order.
func (r *Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	writeKey := func(key string, first bool) {
		if !first {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(key)
		buf.Write(kb)
		buf.WriteByte(':')
	}

	writeKey("timestamp", true)
	tb, err := json.Marshal(r.Timestamp)
	if err != nil {
		return nil, err
	}
	buf.Write(tb)

	writeKey("period", false)
	fmt.Fprintf(&buf, "%d", r.Period)

	writeKey("global_vars", false)
	if err := writeGlobals(&buf, r.Globals); err != nil {
		return nil, err
	}

	writeKey("costs", false)
	if err := writeCategories(&buf, r.Costs); err != nil {
		return nil, err
	}

	writeKey("income", false)
	if err := writeCategories(&buf, r.Income); err != nil {
		return nil, err
	}

	writeKey("total_cost", false)
	writeNumber(&buf, r.TotalCost)
	writeKey("total_income", false)
	writeNumber(&buf, r.TotalIncome)
	writeKey("net_result", false)
	writeNumber(&buf, r.NetResult)

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeGlobals emits the snapshot with sorted keys so output is stable.
func writeGlobals(buf *bytes.Buffer, globals map[string]float64) error {
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)

	buf.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(name)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		writeNumber(buf, globals[name])
	}
	buf.WriteByte('}')
	return nil
}

func writeCategories(buf *bytes.Buffer, cats []CategoryTotals) error {
	buf.WriteByte('{')
	for i, cat := range cats {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(cat.Name)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteString(":{")
		for j, res := range cat.Resources {
			if j > 0 {
				buf.WriteByte(',')
			}
			rb, err := json.Marshal(res.Name)
			if err != nil {
				return err
			}
			buf.Write(rb)
			buf.WriteByte(':')
			writeNumber(buf, res.Value)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return nil
}

func writeNumber(buf *bytes.Buffer, v float64) {
	b, _ := json.Marshal(v)
	buf.Write(b)
}

// WriteJSON writes one report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteAllJSON writes a report sequence as one indented JSON array.
func WriteAllJSON(w io.Writer, reports []*Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

// WriteCSV writes one report as Category,Resource,Value rows: every cost
// line, every income line, then the three totals.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Category", "Resource", "Value"}); err != nil {
		return err
	}
	write := func(cats []CategoryTotals) error {
		for _, cat := range cats {
			for _, res := range cat.Resources {
				if err := cw.Write([]string{cat.Name, res.Name, formatValue(res.Value)}); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := write(r.Costs); err != nil {
		return err
	}
	if err := write(r.Income); err != nil {
		return err
	}
	for _, row := range [][]string{
		{"total", "total_cost", formatValue(r.TotalCost)},
		{"total", "total_income", formatValue(r.TotalIncome)},
		{"total", "net_result", formatValue(r.NetResult)},
	} {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatValue(v float64) string { return fmt.Sprintf("%g", v) }
