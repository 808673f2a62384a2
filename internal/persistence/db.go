// Package persistence provides SQLite-based storage for simulation runs, so
// past runs can be reloaded and compared without re-simulating.
package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/02loveslollipop/companyOperationSimulator/internal/report"
)

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		model_name TEXT NOT NULL,
		seed INTEGER NOT NULL,
		periods INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reports (
		run_id TEXT NOT NULL REFERENCES runs(id),
		period INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		total_cost REAL NOT NULL,
		total_income REAL NOT NULL,
		net_result REAL NOT NULL,
		globals_json TEXT NOT NULL,
		PRIMARY KEY (run_id, period)
	);

	CREATE TABLE IF NOT EXISTS report_lines (
		run_id TEXT NOT NULL,
		period INTEGER NOT NULL,
		position INTEGER NOT NULL,
		branch TEXT NOT NULL,
		category TEXT NOT NULL,
		resource TEXT NOT NULL,
		value REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_report_lines_run ON report_lines(run_id, period);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RunMeta describes one stored simulation run.
type RunMeta struct {
	ID        string `db:"id"`
	CreatedAt string `db:"created_at"`
	ModelName string `db:"model_name"`
	Seed      int64  `db:"seed"`
	Periods   int    `db:"periods"`
}

// SaveRun stores a report sequence as a new run and returns its ID.
func (db *DB) SaveRun(modelName string, seed int64, reports []*report.Report) (string, error) {
	tx, err := db.conn.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	runID := uuid.NewString()
	_, err = tx.Exec(`INSERT INTO runs (id, created_at, model_name, seed, periods)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339), modelName, seed, len(reports))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	repStmt, err := tx.Preparex(`INSERT INTO reports
		(run_id, period, timestamp, total_cost, total_income, net_result, globals_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer repStmt.Close()

	lineStmt, err := tx.Preparex(`INSERT INTO report_lines
		(run_id, period, position, branch, category, resource, value)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer lineStmt.Close()

	for _, r := range reports {
		globalsJSON, err := json.Marshal(r.Globals)
		if err != nil {
			return "", fmt.Errorf("marshal globals for period %d: %w", r.Period, err)
		}
		_, err = repStmt.Exec(runID, r.Period, r.Timestamp.UTC().Format(time.RFC3339Nano),
			r.TotalCost, r.TotalIncome, r.NetResult, string(globalsJSON))
		if err != nil {
			return "", fmt.Errorf("insert report for period %d: %w", r.Period, err)
		}

		pos := 0
		for _, branch := range []string{"cost", "income"} {
			cats := r.Costs
			if branch == "income" {
				cats = r.Income
			}
			for _, cat := range cats {
				for _, res := range cat.Resources {
					if _, err := lineStmt.Exec(runID, r.Period, pos, branch, cat.Name, res.Name, res.Value); err != nil {
						return "", fmt.Errorf("insert line %s.%s.%s: %w", branch, cat.Name, res.Name, err)
					}
					pos++
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

// ListRuns returns stored run metadata, newest first.
func (db *DB) ListRuns() ([]RunMeta, error) {
	var runs []RunMeta
	err := db.conn.Select(&runs, `SELECT id, created_at, model_name, seed, periods
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run's metadata.
func (db *DB) GetRun(runID string) (*RunMeta, error) {
	var meta RunMeta
	err := db.conn.Get(&meta, `SELECT id, created_at, model_name, seed, periods
		FROM runs WHERE id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &meta, nil
}

type reportRow struct {
	Period      int     `db:"period"`
	Timestamp   string  `db:"timestamp"`
	TotalCost   float64 `db:"total_cost"`
	TotalIncome float64 `db:"total_income"`
	NetResult   float64 `db:"net_result"`
	GlobalsJSON string  `db:"globals_json"`
}

type lineRow struct {
	Period   int     `db:"period"`
	Position int     `db:"position"`
	Branch   string  `db:"branch"`
	Category string  `db:"category"`
	Resource string  `db:"resource"`
	Value    float64 `db:"value"`
}

// LoadRun reconstructs a run's report sequence, in period order.
func (db *DB) LoadRun(runID string) ([]*report.Report, error) {
	var rows []reportRow
	err := db.conn.Select(&rows, `SELECT period, timestamp, total_cost, total_income, net_result, globals_json
		FROM reports WHERE run_id = ? ORDER BY period`, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("run %s: no reports", runID)
	}

	var lines []lineRow
	err = db.conn.Select(&lines, `SELECT period, position, branch, category, resource, value
		FROM report_lines WHERE run_id = ? ORDER BY period, position`, runID)
	if err != nil {
		return nil, fmt.Errorf("load run lines %s: %w", runID, err)
	}

	byPeriod := make(map[int]*report.Report, len(rows))
	var reports []*report.Report
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339Nano, row.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("run %s period %d: bad timestamp: %w", runID, row.Period, err)
		}
		globals := make(map[string]float64)
		if err := json.Unmarshal([]byte(row.GlobalsJSON), &globals); err != nil {
			return nil, fmt.Errorf("run %s period %d: bad globals: %w", runID, row.Period, err)
		}
		r := &report.Report{
			Timestamp:   ts,
			Period:      row.Period,
			Globals:     globals,
			TotalCost:   row.TotalCost,
			TotalIncome: row.TotalIncome,
			NetResult:   row.NetResult,
		}
		byPeriod[row.Period] = r
		reports = append(reports, r)
	}

	for _, line := range lines {
		r, ok := byPeriod[line.Period]
		if !ok {
			continue
		}
		var cats *[]report.CategoryTotals
		if line.Branch == "income" {
			cats = &r.Income
		} else {
			cats = &r.Costs
		}
		if n := len(*cats); n == 0 || (*cats)[n-1].Name != line.Category {
			*cats = append(*cats, report.CategoryTotals{Name: line.Category})
		}
		last := &(*cats)[len(*cats)-1]
		last.Resources = append(last.Resources, report.ResourceTotal{Name: line.Resource, Value: line.Value})
	}

	return reports, nil
}
