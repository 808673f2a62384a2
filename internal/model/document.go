package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is the raw configuration tree as authored: three top-level keys
// (global, cost, income) with expression strings still uncompiled. Category
// and preprocess maps preserve declared order, which the report format
// depends on.
type Document struct {
	Global GlobalsDoc  `json:"global"`
	Cost   CategoryMap `json:"cost"`
	Income IncomeDoc   `json:"income"`
}

// GlobalsDoc holds the global constant and variable declarations.
type GlobalsDoc struct {
	Const    map[string]float64 `json:"const"`
	Variable VariableMap        `json:"variable"`
}

// VariableDoc is one time-evolving global variable declaration.
type VariableDoc struct {
	Start      float64        `json:"start"`
	Max        *float64       `json:"max,omitempty"`
	Min        *float64       `json:"min,omitempty"`
	Period     int            `json:"period,omitempty"`
	GrowthRate *GrowthRateDoc `json:"growth_rate,omitempty"`
	Increment  *float64       `json:"increment,omitempty"`
}

// GrowthRateDoc is the declared growth law. Values is a number for linear,
// a list of coefficients for polynomial, or {k, r} for logistic.
type GrowthRateDoc struct {
	Type   string          `json:"type"`
	Values json.RawMessage `json:"values"`
}

// LogisticValues are the logistic law parameters.
type LogisticValues struct {
	K float64 `json:"k"`
	R float64 `json:"r"`
}

// CategoryDoc is a named group of resources.
type CategoryDoc struct {
	Description string        `json:"description"`
	Resource    []ResourceDoc `json:"resource"`
}

// ResourceDoc is one cost or income leaf.
type ResourceDoc struct {
	Name                string     `json:"name"`
	UseCase             string     `json:"use_case"`
	CalculationMethod   string     `json:"calculation_method"`
	BillingMethod       string     `json:"billing_method"`
	Unit                string     `json:"unit"`
	CalculationFunction CalcFnDoc  `json:"calculation_function"`
}

// CalcFnDoc is a calculation function as authored: either a bare expression
// string or a structured object with exactly one body form.
type CalcFnDoc struct {
	Direct     string        `json:"-"`
	IsDirect   bool          `json:"-"`
	Preprocess PreprocessMap `json:"preprocess,omitempty"`
	Result     string        `json:"result,omitempty"`
	Cases      []CaseDoc     `json:"cases,omitempty"`
	For        *ForDoc       `json:"for,omitempty"`
	Exec       []string      `json:"exec,omitempty"`
}

// CaseDoc is one condition/result pair.
type CaseDoc struct {
	Case   string `json:"case"`
	Result string `json:"result"`
}

// ForDoc is a bounded loop with an aggregation over per-iteration results.
type ForDoc struct {
	Iterator    string   `json:"iterator"`
	Aggregation string   `json:"aggregation"`
	Exec        []string `json:"exec"`
}

// UnmarshalJSON accepts either a formula string or the structured object.
func (f *CalcFnDoc) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f.Direct = s
		f.IsDirect = true
		return nil
	}
	type alias CalcFnDoc
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = CalcFnDoc(a)
	return nil
}

// MarshalJSON writes the direct form back as a bare string.
func (f CalcFnDoc) MarshalJSON() ([]byte, error) {
	if f.IsDirect {
		return json.Marshal(f.Direct)
	}
	type alias CalcFnDoc
	return json.Marshal(alias(f))
}

// IncomeDoc is the income branch: a category, or a bare resource list
// (normalised to one category at build).
type IncomeDoc struct {
	Categories []NamedCategory
	flat       bool
}

// UnmarshalJSON accepts a Category object, a resource array, or a mapping
// of named categories like the cost branch.
func (d *IncomeDoc) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var resources []ResourceDoc
		if err := json.Unmarshal(data, &resources); err != nil {
			return err
		}
		d.Categories = []NamedCategory{{Name: "income", Category: CategoryDoc{Description: "income", Resource: resources}}}
		d.flat = true
		return nil
	}

	// An object with a "resource" key is a single category; otherwise it
	// is a name → category mapping.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := probe["resource"]; ok {
		var cat CategoryDoc
		if err := json.Unmarshal(data, &cat); err != nil {
			return err
		}
		d.Categories = []NamedCategory{{Name: "income", Category: cat}}
		return nil
	}
	var cats CategoryMap
	if err := json.Unmarshal(data, &cats); err != nil {
		return err
	}
	d.Categories = cats
	return nil
}

// MarshalJSON writes a single unnamed category back in its original shape.
func (d IncomeDoc) MarshalJSON() ([]byte, error) {
	if d.flat && len(d.Categories) == 1 {
		return json.Marshal(d.Categories[0].Category.Resource)
	}
	if len(d.Categories) == 1 && d.Categories[0].Name == "income" {
		return json.Marshal(d.Categories[0].Category)
	}
	return json.Marshal(CategoryMap(d.Categories))
}

// NamedCategory pairs a category with its declared name.
type NamedCategory struct {
	Name     string
	Category CategoryDoc
}

// CategoryMap is an ordered name → category mapping. encoding/json maps
// drop key order, so decoding walks the token stream instead.
type CategoryMap []NamedCategory

// UnmarshalJSON decodes the object preserving key order.
func (m *CategoryMap) UnmarshalJSON(data []byte) error {
	return decodeOrdered(data, func(name string, raw json.RawMessage) error {
		var cat CategoryDoc
		if err := json.Unmarshal(raw, &cat); err != nil {
			return fmt.Errorf("category %q: %w", name, err)
		}
		*m = append(*m, NamedCategory{Name: name, Category: cat})
		return nil
	})
}

// MarshalJSON writes the categories back in declared order.
func (m CategoryMap) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(m), func(i int) (string, any) {
		return m[i].Name, m[i].Category
	})
}

// NamedVariable pairs a variable spec with its declared name.
type NamedVariable struct {
	Name     string
	Variable VariableDoc
}

// VariableMap is an ordered name → variable mapping.
type VariableMap []NamedVariable

// UnmarshalJSON decodes the object preserving key order.
func (m *VariableMap) UnmarshalJSON(data []byte) error {
	return decodeOrdered(data, func(name string, raw json.RawMessage) error {
		var v VariableDoc
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("variable %q: %w", name, err)
		}
		*m = append(*m, NamedVariable{Name: name, Variable: v})
		return nil
	})
}

// MarshalJSON writes the variables back in declared order.
func (m VariableMap) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(m), func(i int) (string, any) {
		return m[i].Name, m[i].Variable
	})
}

// PreprocessEntry is one named preprocess expression.
type PreprocessEntry struct {
	Name string
	Expr string
}

// PreprocessMap is an ordered name → expression mapping; entries bind in
// declared order and later entries see earlier ones.
type PreprocessMap []PreprocessEntry

// UnmarshalJSON decodes the object preserving key order.
func (m *PreprocessMap) UnmarshalJSON(data []byte) error {
	return decodeOrdered(data, func(name string, raw json.RawMessage) error {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			// Numeric preprocess values appear in real documents; keep
			// them as literal expressions.
			var n json.Number
			if err2 := json.Unmarshal(raw, &n); err2 != nil {
				return fmt.Errorf("preprocess %q: %w", name, err)
			}
			s = n.String()
		}
		*m = append(*m, PreprocessEntry{Name: name, Expr: s})
		return nil
	})
}

// MarshalJSON writes the entries back in declared order.
func (m PreprocessMap) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(m), func(i int) (string, any) {
		return m[i].Name, m[i].Expr
	})
}

// decodeOrdered walks one JSON object, invoking fn per key in stream order.
func decodeOrdered(data []byte, fn func(name string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, found %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token() // closing '}'
	return err
}

// marshalOrdered writes an object with keys in index order.
func marshalOrdered(n int, at func(i int) (string, any)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, val := at(i)
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
