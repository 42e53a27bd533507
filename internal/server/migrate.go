package server

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// 时间统一存为定宽 UTC 文本，字典序即时间序（SQLite / Postgres 通用）
const tsLayout = "2006-01-02T15:04:05.000000Z"

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(v string) time.Time {
	t, err := time.Parse(tsLayout, v)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, v)
	}
	return t
}

func (s *Server) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stmts []string
	if s.cfg.Driver == DriverSQLite {
		stmts = append(stmts, `PRAGMA journal_mode=WAL;`)
	}
	stmts = append(stmts,
		`
CREATE TABLE IF NOT EXISTS loads (
  load_id TEXT PRIMARY KEY,
  origin TEXT NOT NULL,
  destination TEXT NOT NULL,
  pickup_datetime TEXT NOT NULL,
  delivery_datetime TEXT NOT NULL,
  equipment_type TEXT NOT NULL,
  loadboard_rate DOUBLE PRECISION NOT NULL,
  notes TEXT,
  weight DOUBLE PRECISION NOT NULL,
  commodity_type TEXT NOT NULL,
  num_of_pieces INTEGER,
  miles DOUBLE PRECISION NOT NULL,
  dimensions TEXT,
  origin_norm TEXT NOT NULL DEFAULT '',
  destination_norm TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_loads_equipment ON loads(equipment_type);`,
		`CREATE INDEX IF NOT EXISTS idx_loads_created_at ON loads(created_at DESC);`,
		`
CREATE TABLE IF NOT EXISTS calls (
  call_id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  transcript TEXT,
  outcome TEXT NOT NULL,
  sentiment TEXT NOT NULL,
  mc_number TEXT,
  selected_load_id TEXT,
  initial_rate DOUBLE PRECISION,
  final_rate DOUBLE PRECISION,
  negotiation_rounds INTEGER,
  search_norm TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_started_at ON calls(started_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_outcome ON calls(outcome);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_mc_number ON calls(mc_number);`,
	)

	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate exec failed: %w", err)
		}
	}

	// 兼容：旧库没有归一化搜索列时补齐并回填
	for _, col := range []struct {
		table string
		name  string
	}{
		{"loads", "origin_norm"},
		{"loads", "destination_norm"},
		{"calls", "search_norm"},
	} {
		ok, err := s.hasColumn(ctx, col.table, col.name)
		if err != nil {
			return err
		}
		if !ok {
			ddl := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s TEXT NOT NULL DEFAULT '';`, col.table, col.name)
			if _, err := s.db.ExecContext(ctx, ddl); err != nil {
				return fmt.Errorf("alter %s add %s: %w", col.table, col.name, err)
			}
		}
	}
	return s.backfillSearchColumns(ctx)
}

func (s *Server) hasColumn(ctx context.Context, table, col string) (bool, error) {
	if s.cfg.Driver == DriverPostgres {
		var n int
		err := s.queryRow(ctx, `SELECT COUNT(*) FROM information_schema.columns WHERE table_name=? AND column_name=?`, table, col).Scan(&n)
		return n > 0, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s);`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	// cid,name,type,notnull,dflt_value,pk
	for rows.Next() {
		var (
			cid       int
			name      string
			typ       string
			notnull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == col {
			return true, nil
		}
	}
	return false, rows.Err()
}

// backfillSearchColumns 先读完再写，SQLite 只有一个连接
func (s *Server) backfillSearchColumns(ctx context.Context) error {
	rows, err := s.query(ctx, `SELECT load_id,origin,destination FROM loads WHERE origin_norm='' OR destination_norm=''`)
	if err != nil {
		return err
	}
	var loads []Load
	for rows.Next() {
		var l Load
		if err := rows.Scan(&l.LoadID, &l.Origin, &l.Destination); err != nil {
			rows.Close()
			return err
		}
		loads = append(loads, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, l := range loads {
		if _, err := s.exec(ctx, `UPDATE loads SET origin_norm=?, destination_norm=? WHERE load_id=?`,
			normalizeTerm(l.Origin), normalizeTerm(l.Destination), l.LoadID); err != nil {
			return fmt.Errorf("backfill load %s: %w", l.LoadID, err)
		}
	}

	rows, err = s.query(ctx, `SELECT call_id,mc_number,selected_load_id FROM calls WHERE search_norm=''`)
	if err != nil {
		return err
	}
	var calls []Call
	for rows.Next() {
		var c Call
		var mc, loadID sql.NullString
		if err := rows.Scan(&c.CallID, &mc, &loadID); err != nil {
			rows.Close()
			return err
		}
		c.MCNumber = strPtr(mc)
		c.SelectedLoadID = strPtr(loadID)
		calls = append(calls, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, c := range calls {
		if _, err := s.exec(ctx, `UPDATE calls SET search_norm=? WHERE call_id=?`, callSearchKey(c), c.CallID); err != nil {
			return fmt.Errorf("backfill call %s: %w", c.CallID, err)
		}
	}
	return nil
}

// rebind 把 ? 占位符改写成 Postgres 的 $n
func (s *Server) rebind(q string) string {
	if s.cfg.Driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (s *Server) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(q), args...)
}

func (s *Server) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(q), args...)
}

func (s *Server) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(q), args...)
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
