package server

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const callColumns = `call_id,started_at,transcript,outcome,sentiment,mc_number,selected_load_id,initial_rate,final_rate,negotiation_rounds,created_at,updated_at`

func scanCall(row rowScanner) (Call, error) {
	var c Call
	var started, created, updated string
	var transcript, mc, loadID sql.NullString
	var initial, final sql.NullFloat64
	var rounds sql.NullInt64
	if err := row.Scan(&c.CallID, &started, &transcript, &c.Outcome, &c.Sentiment, &mc, &loadID,
		&initial, &final, &rounds, &created, &updated); err != nil {
		return Call{}, err
	}
	c.StartedAt = parseTS(started)
	c.CreatedAt = parseTS(created)
	c.UpdatedAt = parseTS(updated)
	c.Transcript = strPtr(transcript)
	c.MCNumber = strPtr(mc)
	c.SelectedLoadID = strPtr(loadID)
	c.InitialRate = floatPtr(initial)
	c.FinalRate = floatPtr(final)
	c.NegotiationRounds = intPtr(rounds)
	return c, nil
}

// upsertCall 以 call_id 为键写入；重复推送时覆盖内容，保留 created_at
func (s *Server) upsertCall(ctx context.Context, c Call) error {
	now := formatTS(s.now())
	_, err := s.exec(ctx, `
INSERT INTO calls (`+callColumns+`,search_norm)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (call_id) DO UPDATE SET
  started_at=excluded.started_at,
  transcript=excluded.transcript,
  outcome=excluded.outcome,
  sentiment=excluded.sentiment,
  mc_number=excluded.mc_number,
  selected_load_id=excluded.selected_load_id,
  initial_rate=excluded.initial_rate,
  final_rate=excluded.final_rate,
  negotiation_rounds=excluded.negotiation_rounds,
  search_norm=excluded.search_norm,
  updated_at=excluded.updated_at
`, c.CallID, formatTS(c.StartedAt), nullString(c.Transcript), c.Outcome, c.Sentiment, nullString(c.MCNumber),
		nullString(c.SelectedLoadID), nullFloat(c.InitialRate), nullFloat(c.FinalRate), nullInt(c.NegotiationRounds),
		now, now, callSearchKey(c))
	return err
}

// callSearchKey 拼接可搜索字段的归一化形式，字段间用换行隔开避免跨字段误匹配
func callSearchKey(c Call) string {
	parts := []string{normalizeTerm(c.CallID)}
	if c.MCNumber != nil {
		parts = append(parts, normalizeTerm(*c.MCNumber))
	}
	if c.SelectedLoadID != nil {
		parts = append(parts, normalizeTerm(*c.SelectedLoadID))
	}
	return strings.Join(parts, "\n")
}

func (s *Server) getCall(ctx context.Context, callID string) (*Call, error) {
	c, err := scanCall(s.queryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE call_id=?`, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *Server) countCalls(ctx context.Context) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM calls`).Scan(&n)
	return n, err
}

func callWhere(f callFilter) (string, []any) {
	var where []string
	var args []any
	if f.Outcome != "" {
		where = append(where, "outcome=?")
		args = append(args, f.Outcome)
	}
	if f.Sentiment != "" {
		where = append(where, "sentiment=?")
		args = append(args, f.Sentiment)
	}
	if f.DateFrom != nil {
		where = append(where, "started_at>=?")
		args = append(args, formatTS(*f.DateFrom))
	}
	if f.DateTo != nil {
		where = append(where, "started_at<=?")
		args = append(args, formatTS(*f.DateTo))
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		where = append(where, `search_norm LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(term))
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// listCalls 返回当前页数据和过滤后的总数
func (s *Server) listCalls(ctx context.Context, f callFilter) ([]Call, int, error) {
	where, args := callWhere(f)

	var total int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM calls`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageArgs := append(append([]any{}, args...), f.Limit, (f.Page-1)*f.Limit)
	rows, err := s.query(ctx, `SELECT `+callColumns+` FROM calls`+where+` ORDER BY started_at DESC, call_id LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// callsInRange 统计用：不分页
func (s *Server) callsInRange(ctx context.Context, from, to *time.Time) ([]Call, error) {
	where, args := callWhere(callFilter{DateFrom: from, DateTo: to})
	rows, err := s.query(ctx, `SELECT `+callColumns+` FROM calls`+where+` ORDER BY started_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
