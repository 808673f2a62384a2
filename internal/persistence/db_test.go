package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/02loveslollipop/companyOperationSimulator/internal/report"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testReports() []*report.Report {
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	return []*report.Report{
		{
			Timestamp: now,
			Period:    0,
			Globals:   map[string]float64{"users": 1000},
			Costs: []report.CategoryTotals{
				{Name: "infra", Resources: []report.ResourceTotal{
					{Name: "hosting", Value: 120},
					{Name: "cdn", Value: 30},
				}},
			},
			Income: []report.CategoryTotals{
				{Name: "income", Resources: []report.ResourceTotal{{Name: "subs", Value: 500}}},
			},
			TotalCost:   150,
			TotalIncome: 500,
			NetResult:   350,
		},
		{
			Timestamp: now,
			Period:    1,
			Globals:   map[string]float64{"users": 1100},
			Costs: []report.CategoryTotals{
				{Name: "infra", Resources: []report.ResourceTotal{
					{Name: "hosting", Value: 132},
					{Name: "cdn", Value: 33},
				}},
			},
			Income: []report.CategoryTotals{
				{Name: "income", Resources: []report.ResourceTotal{{Name: "subs", Value: 550}}},
			},
			TotalCost:   165,
			TotalIncome: 550,
			NetResult:   385,
		},
	}
}

func TestSaveAndLoadRun(t *testing.T) {
	db := openTestDB(t)

	runID, err := db.SaveRun("model.json", 42, testReports())
	if err != nil {
		t.Fatal(err)
	}
	if runID == "" {
		t.Fatal("empty run ID")
	}

	meta, err := db.GetRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	if meta.ModelName != "model.json" || meta.Seed != 42 || meta.Periods != 2 {
		t.Errorf("meta = %+v", meta)
	}

	loaded, err := db.LoadRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d reports, want 2", len(loaded))
	}
	want := testReports()
	for i, r := range loaded {
		if r.Period != want[i].Period {
			t.Errorf("report %d period = %d", i, r.Period)
		}
		if r.TotalCost != want[i].TotalCost || r.NetResult != want[i].NetResult {
			t.Errorf("report %d totals = %v / %v", i, r.TotalCost, r.NetResult)
		}
		if r.Globals["users"] != want[i].Globals["users"] {
			t.Errorf("report %d globals = %v", i, r.Globals)
		}
		if v, ok := report.Lookup(r.Costs, "infra", "hosting"); !ok || v != want[i].Costs[0].Resources[0].Value {
			t.Errorf("report %d hosting = %v, %v", i, v, ok)
		}
		if v, ok := report.Lookup(r.Income, "income", "subs"); !ok || v != want[i].Income[0].Resources[0].Value {
			t.Errorf("report %d subs = %v, %v", i, v, ok)
		}
		// Line order inside a category survives the round trip.
		if r.Costs[0].Resources[0].Name != "hosting" || r.Costs[0].Resources[1].Name != "cdn" {
			t.Errorf("report %d resource order = %+v", i, r.Costs[0].Resources)
		}
	}
}

func TestListRuns(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.SaveRun("a.json", 1, testReports()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.SaveRun("b.json", 2, testReports()); err != nil {
		t.Fatal(err)
	}

	runs, err := db.ListRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("run count = %d, want 2", len(runs))
	}
}

func TestLoadMissingRun(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.LoadRun("no-such-run"); err == nil {
		t.Error("loading a missing run succeeded")
	}
	if _, err := db.GetRun("no-such-run"); err == nil {
		t.Error("getting a missing run succeeded")
	}
}
