package model

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

const sampleDoc = `{
  "global": {
    "const": {"price_per_seat": 12.5},
    "variable": {
      "users": {"start": 1000, "max": 50000, "growth_rate": {"type": "linear", "values": 0.08}},
      "month_from_startup": {"start": 1, "increment": 1},
      "stored_geocodes": {"start": 0, "growth_rate": {"type": "logistic", "values": {"k": 100000, "r": 0.4}}},
      "infra_units": {"start": 2, "growth_rate": {"type": "polynomial", "values": [2, 0.5]}}
    }
  },
  "cost": {
    "infrastructure": {
      "description": "cloud infrastructure",
      "resource": [
        {
          "name": "api_gateway",
          "use_case": "request routing",
          "calculation_method": "per request",
          "billing_method": "monthly",
          "unit": "USD",
          "calculation_function": "users * 0.002"
        },
        {
          "name": "geocoding",
          "use_case": "address lookup",
          "calculation_method": "tiered",
          "billing_method": "monthly",
          "unit": "USD",
          "calculation_function": {
            "preprocess": {"requests": "users * 3"},
            "cases": [
              {"case": "requests <= 100000", "result": "0"},
              {"case": "requests > 100000", "result": "(requests - 100000) * 0.005"}
            ]
          }
        }
      ]
    },
    "staff": {
      "description": "payroll",
      "resource": [
        {
          "name": "support",
          "use_case": "customer support",
          "calculation_method": "headcount",
          "billing_method": "monthly",
          "unit": "USD",
          "calculation_function": {
            "for": {
              "iterator": "users / 500",
              "aggregation": "sum",
              "exec": ["result = 3500"]
            }
          }
        }
      ]
    }
  },
  "income": {
    "description": "subscription revenue",
    "resource": [
      {
        "name": "subscriptions",
        "use_case": "saas seats",
        "calculation_method": "per seat",
        "billing_method": "monthly",
        "unit": "USD",
        "calculation_function": {
          "exec": ["gross = users * global.price_per_seat", "result = gross * 0.97"]
        }
      }
    ]
  }
}`

func decodeDoc(t *testing.T, src string) *Document {
	t.Helper()
	var doc Document
	if err := json.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	return &doc
}

func TestBuildSampleModel(t *testing.T) {
	m, err := Build(decodeDoc(t, sampleDoc))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if m.Consts["price_per_seat"] != 12.5 {
		t.Errorf("const price_per_seat = %v", m.Consts["price_per_seat"])
	}

	wantVars := []string{"users", "month_from_startup", "stored_geocodes", "infra_units"}
	if len(m.Variables) != len(wantVars) {
		t.Fatalf("variable count = %d, want %d", len(m.Variables), len(wantVars))
	}
	for i, name := range wantVars {
		if m.Variables[i].Name != name {
			t.Errorf("variable[%d] = %s, want %s (declared order)", i, m.Variables[i].Name, name)
		}
	}
	if m.Variables[0].Growth.Kind != GrowthLinear || m.Variables[0].Growth.Rate != 0.08 {
		t.Errorf("users growth = %+v", m.Variables[0].Growth)
	}
	if m.Variables[1].Growth.Kind != GrowthIncrement || m.Variables[1].Growth.Step != 1 {
		t.Errorf("month_from_startup growth = %+v", m.Variables[1].Growth)
	}
	if m.Variables[2].Growth.Kind != GrowthLogistic || m.Variables[2].Growth.K != 100000 {
		t.Errorf("stored_geocodes growth = %+v", m.Variables[2].Growth)
	}
	if m.Variables[3].Growth.Kind != GrowthPolynomial || len(m.Variables[3].Growth.Coefficients) != 2 {
		t.Errorf("infra_units growth = %+v", m.Variables[3].Growth)
	}

	if len(m.Costs) != 2 || m.Costs[0].Name != "infrastructure" || m.Costs[1].Name != "staff" {
		t.Fatalf("cost categories = %+v, want infrastructure then staff", m.Costs)
	}
	if len(m.Income) != 1 || len(m.Income[0].Resources) != 1 {
		t.Fatalf("income shape unexpected: %+v", m.Income)
	}

	// Body kinds.
	infra := m.Costs[0].Resources
	if infra[0].Fn.Kind != BodyDirect {
		t.Errorf("api_gateway body = %v, want direct", infra[0].Fn.Kind)
	}
	if infra[1].Fn.Kind != BodyCases || len(infra[1].Fn.Cases) != 2 {
		t.Errorf("geocoding body = %v with %d cases", infra[1].Fn.Kind, len(infra[1].Fn.Cases))
	}
	if len(infra[1].Fn.Preprocess) != 1 || infra[1].Fn.Preprocess[0].Name != "requests" {
		t.Errorf("geocoding preprocess = %+v", infra[1].Fn.Preprocess)
	}
	if m.Costs[1].Resources[0].Fn.Kind != BodyFor {
		t.Errorf("support body = %v, want for", m.Costs[1].Resources[0].Fn.Kind)
	}
	if m.Income[0].Resources[0].Fn.Kind != BodyExec {
		t.Errorf("subscriptions body = %v, want exec", m.Income[0].Resources[0].Fn.Kind)
	}
}

func TestBuildRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(doc string) string
		wantSub string
	}{
		{
			name:    "reserved const name",
			mutate:  func(d string) string { return strings.Replace(d, `"price_per_seat"`, `"random"`, 1) },
			wantSub: "reserved",
		},
		{
			name:    "const variable collision",
			mutate:  func(d string) string { return strings.Replace(d, `"month_from_startup":`, `"price_per_seat":`, 1) },
			wantSub: "collides",
		},
		{
			name:    "unknown growth type",
			mutate:  func(d string) string { return strings.Replace(d, `"linear"`, `"exponential"`, 1) },
			wantSub: "unsupported growth type",
		},
		{
			name:    "unknown aggregation",
			mutate:  func(d string) string { return strings.Replace(d, `"sum"`, `"median"`, 1) },
			wantSub: "aggregation",
		},
		{
			name:    "bad formula",
			mutate:  func(d string) string { return strings.Replace(d, `"users * 0.002"`, `"users * * 2"`, 1) },
			wantSub: "bad formula",
		},
		{
			name:    "loop without result",
			mutate:  func(d string) string { return strings.Replace(d, `"result = 3500"`, `"x = 3500"`, 1) },
			wantSub: "result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(decodeDoc(t, tt.mutate(sampleDoc)))
			if err == nil {
				t.Fatal("Build succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestIncomeFlatDocument(t *testing.T) {
	const doc = `{
	  "global": {"const": {"fee": 10}, "variable": {}},
	  "cost": {
	    "ops": {"description": "ops", "resource": [
	      {"name": "srv", "use_case": "", "calculation_method": "", "billing_method": "", "unit": "USD",
	       "calculation_function": "fee * 2"}
	    ]}
	  },
	  "income": [
	    {"name": "sales", "use_case": "", "calculation_method": "", "billing_method": "", "unit": "USD",
	     "calculation_function": "fee * 5"}
	  ]
	}`
	m, err := Build(decodeDoc(t, doc))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m.Income) != 1 || m.Income[0].Name != "income" {
		t.Fatalf("flat income not normalised: %+v", m.Income)
	}
	if m.Income[0].Resources[0].Name != "sales" {
		t.Errorf("income resource = %+v", m.Income[0].Resources[0])
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	doc := decodeDoc(t, sampleDoc)
	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	again := decodeDoc(t, string(out))

	m1, err := Build(doc)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := Build(again)
	if err != nil {
		t.Fatalf("re-parsed document failed to build: %v", err)
	}

	if len(m1.Variables) != len(m2.Variables) {
		t.Fatalf("variable count changed across round trip")
	}
	for i := range m1.Variables {
		if m1.Variables[i].Name != m2.Variables[i].Name {
			t.Errorf("variable order changed: %s vs %s", m1.Variables[i].Name, m2.Variables[i].Name)
		}
	}
	if len(m1.Costs) != len(m2.Costs) {
		t.Fatal("category count changed across round trip")
	}
	for i := range m1.Costs {
		if m1.Costs[i].Name != m2.Costs[i].Name {
			t.Errorf("category order changed: %s vs %s", m1.Costs[i].Name, m2.Costs[i].Name)
		}
	}
}

func TestGrowthLaws(t *testing.T) {
	approx := func(a, b float64) bool { return math.Abs(a-b) < 1e-9*math.Max(1, math.Abs(b)) }

	linear := Variable{Name: "v", Start: 100, Period: 1, Growth: Growth{Kind: GrowthLinear, Rate: 0.1}}
	if got := linear.Value(100, 0); got != 100 {
		t.Errorf("linear t=0 = %v, want 100", got)
	}
	if got := linear.Value(100, 12); !approx(got, 100*math.Pow(1.1, 12)) {
		t.Errorf("linear t=12 = %v", got)
	}

	poly := Variable{Name: "v", Start: 0, Period: 1, Growth: Growth{Kind: GrowthPolynomial, Coefficients: []float64{2, 3, 1}}}
	if got := poly.Value(0, 4); got != 2+3*4+16 {
		t.Errorf("polynomial t=4 = %v, want 30", got)
	}

	inc := Variable{Name: "v", Start: 5, Period: 1, Growth: Growth{Kind: GrowthIncrement, Step: 2}}
	if got := inc.Value(5, 7); got != 19 {
		t.Errorf("increment t=7 = %v, want 19", got)
	}

	logi := Variable{Name: "v", Start: 10, Period: 1, Growth: Growth{Kind: GrowthLogistic, K: 1000, R: 0.5}}
	prev := logi.Value(10, 0)
	if !approx(prev, 10) {
		t.Errorf("logistic t=0 = %v, want start", prev)
	}
	for tt := 1; tt <= 30; tt++ {
		cur := logi.Value(10, tt)
		if cur <= prev {
			t.Fatalf("logistic not strictly increasing at t=%d: %v -> %v", tt, prev, cur)
		}
		if cur >= 1000 {
			t.Fatalf("logistic overshot K at t=%d: %v", tt, cur)
		}
		prev = cur
	}

	// Zero start seeds at K/1000 instead of sticking at zero, and the
	// curve still climbs strictly toward K.
	logiZero := Variable{Name: "v", Start: 0, Period: 1, Growth: Growth{Kind: GrowthLogistic, K: 1000, R: 0.5}}
	if got := logiZero.Value(0, 0); !approx(got, 1) {
		t.Errorf("logistic from zero at t=0 = %v, want seeded floor 1", got)
	}
	prev = logiZero.Value(0, 0)
	for tt := 1; tt <= 20; tt++ {
		cur := logiZero.Value(0, tt)
		if cur <= prev || cur >= 1000 {
			t.Fatalf("logistic from zero misbehaved at t=%d: %v -> %v", tt, prev, cur)
		}
		prev = cur
	}
	if mid := logiZero.Value(0, 14); mid <= 500 {
		t.Errorf("logistic from zero at t=14 = %v, want past the midpoint", mid)
	}
}

func TestVariableClamping(t *testing.T) {
	max := 150.0
	min := 90.0
	v := Variable{Name: "v", Start: 100, Period: 1, Max: &max, Min: &min,
		Growth: Growth{Kind: GrowthLinear, Rate: 0.2}}
	if got := v.Value(100, 10); got != 150 {
		t.Errorf("clamped value = %v, want max 150", got)
	}
	shrink := Variable{Name: "v", Start: 100, Period: 1, Min: &min,
		Growth: Growth{Kind: GrowthLinear, Rate: -0.5}}
	if got := shrink.Value(100, 10); got != 90 {
		t.Errorf("clamped value = %v, want min 90", got)
	}
}

func TestVariablePeriodStride(t *testing.T) {
	v := Variable{Name: "v", Start: 10, Period: 3, Growth: Growth{Kind: GrowthIncrement, Step: 5}}
	// Growth applies once per 3 simulation periods.
	for tt, want := range map[int]float64{0: 10, 2: 10, 3: 15, 5: 15, 6: 20} {
		if got := v.Value(10, tt); got != want {
			t.Errorf("t=%d: %v, want %v", tt, got, want)
		}
	}
}
