package server

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
)

const loadColumns = `load_id,origin,destination,pickup_datetime,delivery_datetime,equipment_type,loadboard_rate,notes,weight,commodity_type,num_of_pieces,miles,dimensions,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoad(row rowScanner) (Load, error) {
	var l Load
	var pickup, delivery, created string
	var notes, dims sql.NullString
	var pieces sql.NullInt64
	if err := row.Scan(&l.LoadID, &l.Origin, &l.Destination, &pickup, &delivery, &l.EquipmentType,
		&l.LoadboardRate, &notes, &l.Weight, &l.CommodityType, &pieces, &l.Miles, &dims, &created); err != nil {
		return Load{}, err
	}
	l.PickupDatetime = parseTS(pickup)
	l.DeliveryDatetime = parseTS(delivery)
	l.CreatedAt = parseTS(created)
	l.Notes = strPtr(notes)
	l.Dimensions = strPtr(dims)
	l.NumOfPieces = intPtr(pieces)
	return l, nil
}

func (s *Server) insertLoad(ctx context.Context, l Load) error {
	_, err := s.exec(ctx, `
INSERT INTO loads (`+loadColumns+`,origin_norm,destination_norm)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
`, l.LoadID, l.Origin, l.Destination, formatTS(l.PickupDatetime), formatTS(l.DeliveryDatetime), l.EquipmentType,
		l.LoadboardRate, nullString(l.Notes), l.Weight, l.CommodityType, nullInt(l.NumOfPieces), l.Miles,
		nullString(l.Dimensions), formatTS(l.CreatedAt), normalizeTerm(l.Origin), normalizeTerm(l.Destination))
	return err
}

func (s *Server) getLoad(ctx context.Context, loadID string) (*Load, error) {
	l, err := scanLoad(s.queryRow(ctx, `SELECT `+loadColumns+` FROM loads WHERE load_id=?`, loadID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (s *Server) listLoads(ctx context.Context) ([]Load, error) {
	return s.collectLoads(ctx, `SELECT `+loadColumns+` FROM loads ORDER BY created_at DESC, load_id`)
}

func (s *Server) countLoads(ctx context.Context) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM loads`).Scan(&n)
	return n, err
}

// searchLoads 按设备类型精确匹配、起止地包含匹配（大小写不敏感），结果按每英里运价降序
func (s *Server) searchLoads(ctx context.Context, q loadSearch) ([]Load, error) {
	var where []string
	var args []any
	if q.EquipmentType != "" {
		where = append(where, "equipment_type=?")
		args = append(args, q.EquipmentType)
	}
	if q.Origin != "" {
		where = append(where, `origin_norm LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(q.Origin))
	}
	if q.Destination != "" {
		where = append(where, `destination_norm LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(q.Destination))
	}

	stmt := `SELECT ` + loadColumns + ` FROM loads`
	if len(where) > 0 {
		stmt += ` WHERE ` + strings.Join(where, " AND ")
	}
	stmt += ` ORDER BY loadboard_rate DESC, load_id`

	loads, err := s.collectLoads(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(loads, func(i, j int) bool {
		return loads[i].RatePerMile() > loads[j].RatePerMile()
	})
	return loads, nil
}

func (s *Server) collectLoads(ctx context.Context, stmt string, args ...any) ([]Load, error) {
	rows, err := s.query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Load
	for rows.Next() {
		l, err := scanLoad(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
