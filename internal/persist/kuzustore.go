//go:build cgo

package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	kuzu "github.com/kuzudb/go-kuzu"

	"github.com/dusk-indust/caseflow/internal/caseapi"
)

// sessionKey is the primary key of the single Session row.
const sessionKey = "default"

// KuzuStore persists the state in an embedded KuzuDB database. It requires
// CGO because the go-kuzu driver wraps KuzuDB's C library.
type KuzuStore struct {
	mu   sync.Mutex
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuStore satisfies Persister.
var _ Persister = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a database directory at
// dbPath. KuzuDB creates the leaf directory itself.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	db, err := kuzu.OpenDatabase(path, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	s := &KuzuStore{db: db, conn: conn}
	if err := s.initSchema(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ---------- Schema setup ----------

var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS RecentCase(
		id STRING,
		position INT64,
		status STRING,
		label STRING,
		locations INT64,
		errors INT64,
		warnings INT64,
		created_at STRING,
		updated_at STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Session(
		key STRING,
		current_case_id STRING,
		PRIMARY KEY(key)
	)`,
}

func (s *KuzuStore) initSchema() error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// ---------- Persister ----------

// Load reads the session row and the recency list ordered by position.
func (s *KuzuStore) Load(_ context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st State
	rows, err := s.query(
		"MATCH (s:Session {key: $key}) RETURN s.current_case_id",
		map[string]any{"key": sessionKey},
	)
	if err != nil {
		return State{}, err
	}
	if len(rows) > 0 && len(rows[0]) > 0 && rows[0][0] != nil {
		st.CurrentCaseID = toString(rows[0][0])
	}

	rows, err = s.query(
		`MATCH (r:RecentCase)
		 RETURN r.id, r.status, r.label, r.locations, r.errors, r.warnings, r.created_at, r.updated_at
		 ORDER BY r.position`,
		nil,
	)
	if err != nil {
		return State{}, err
	}
	for _, r := range rows {
		st.Recent = append(st.Recent, rowToSummary(r))
	}
	return st, nil
}

// Save replaces every stored row inside one transaction.
func (s *KuzuStore) Save(_ context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.run("BEGIN TRANSACTION"); err != nil {
		return err
	}
	if err := s.replace(st); err != nil {
		_ = s.run("ROLLBACK")
		return err
	}
	return s.run("COMMIT")
}

func (s *KuzuStore) replace(st State) error {
	if err := s.run("MATCH (r:RecentCase) DELETE r"); err != nil {
		return err
	}
	if err := s.run("MATCH (s:Session) DELETE s"); err != nil {
		return err
	}
	for i, sum := range st.Recent {
		err := s.exec(
			`CREATE (r:RecentCase {
				id: $id,
				position: $pos,
				status: $status,
				label: $label,
				locations: $locations,
				errors: $errors,
				warnings: $warnings,
				created_at: $created,
				updated_at: $updated
			})`,
			map[string]any{
				"id":        sum.ID,
				"pos":       int64(i),
				"status":    string(sum.Status),
				"label":     sum.Label,
				"locations": int64(sum.LocationCount),
				"errors":    int64(sum.ErrorCount),
				"warnings":  int64(sum.WarningCount),
				"created":   formatTime(sum.CreatedAt),
				"updated":   formatTime(sum.UpdatedAt),
			},
		)
		if err != nil {
			return err
		}
	}
	return s.exec(
		"CREATE (s:Session {key: $key, current_case_id: $id})",
		map[string]any{"key": sessionKey, "id": st.CurrentCaseID},
	)
}

// ---------- Internal helpers ----------

// run executes a statement without parameters.
func (s *KuzuStore) run(cypher string) error {
	res, err := s.conn.Query(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: %s: %w", cypher, err)
	}
	res.Close()
	return nil
}

// exec runs a parameterized Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a Cypher statement and collects all result rows in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// rowToSummary converts an 8-column result row into a CaseSummary.
// Column order: id, status, label, locations, errors, warnings, created_at, updated_at.
func rowToSummary(r []any) caseapi.CaseSummary {
	return caseapi.CaseSummary{
		ID:            toString(r[0]),
		Status:        caseapi.Status(toString(r[1])),
		Label:         toString(r[2]),
		LocationCount: toInt(r[3]),
		ErrorCount:    toInt(r[4]),
		WarningCount:  toInt(r[5]),
		CreatedAt:     parseTime(toString(r[6])),
		UpdatedAt:     parseTime(toString(r[7])),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ---------- Type coercion helpers ----------

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
