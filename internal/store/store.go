// 包 store：关系库读写边界；读取地址与隶属关系，整体替换 ADDRESSES
package store

import (
	"context"
	"database/sql"
	"strings"

	"addr-hierarchy/internal/hierarchy"
	"addr-hierarchy/internal/logger"
	"addr-hierarchy/internal/migrate"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Store：数据库访问入口，持有连接池与方言
type Store struct {
	db     *sqlx.DB
	driver string
}

func AttachDB(db *sqlx.DB, driver string) *Store { return &Store{db: db, driver: driver} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sqlx.DB { return s.db }

// placeRow：ADDR_CODES 的扫描结构；年份与坐标可为空
type placeRow struct {
	ID        int64           `db:"c_addr_id"`
	Name      sql.NullString  `db:"c_name"`
	NameChn   sql.NullString  `db:"c_name_chn"`
	AdminType sql.NullString  `db:"c_admin_type"`
	FirstYear sql.NullInt64   `db:"c_firstyear"`
	LastYear  sql.NullInt64   `db:"c_lastyear"`
	X         sql.NullFloat64 `db:"x_coord"`
	Y         sql.NullFloat64 `db:"y_coord"`
}

func (r placeRow) toPlace() hierarchy.Place {
	return hierarchy.Place{
		ID:        r.ID,
		Name:      r.Name.String,
		NameChn:   r.NameChn.String,
		AdminType: r.AdminType.String,
		FirstYear: intPtr(r.FirstYear),
		LastYear:  intPtr(r.LastYear),
		X:         floatPtr(r.X),
		Y:         floatPtr(r.Y),
	}
}

// edgeRow：ADDR_BELONGS_DATA 的扫描结构
type edgeRow struct {
	ChildID   int64         `db:"c_addr_id"`
	ParentID  sql.NullInt64 `db:"c_belongs_to"`
	FirstYear sql.NullInt64 `db:"c_firstyear"`
	LastYear  sql.NullInt64 `db:"c_lastyear"`
}

func (r edgeRow) toEdge() hierarchy.Edge {
	e := hierarchy.Edge{ChildID: r.ChildID, FirstYear: intPtr(r.FirstYear), LastYear: intPtr(r.LastYear)}
	if r.ParentID.Valid {
		v := r.ParentID.Int64
		e.ParentID = &v
	}
	return e
}

// LoadPlaces：读取全部地址，按 id 升序
func (s *Store) LoadPlaces(ctx context.Context) ([]hierarchy.Place, error) {
	var rows []placeRow
	q := `SELECT c_addr_id, c_name, c_name_chn, c_admin_type, c_firstyear, c_lastyear, x_coord, y_coord
        FROM ` + migrate.PlacesTable + ` ORDER BY c_addr_id`
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "select places")
	}
	out := make([]hierarchy.Place, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toPlace())
	}
	logger.L().Debug("places_loaded", "count", len(out))
	return out, nil
}

// LoadEdges：读取全部原始隶属声明，不做任何过滤
func (s *Store) LoadEdges(ctx context.Context) ([]hierarchy.Edge, error) {
	var rows []edgeRow
	q := `SELECT c_addr_id, c_belongs_to, c_firstyear, c_lastyear
        FROM ` + migrate.EdgesTable + ` ORDER BY c_addr_id, c_belongs_to, c_firstyear, c_lastyear`
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "select belongs")
	}
	out := make([]hierarchy.Edge, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEdge())
	}
	logger.L().Debug("edges_loaded", "count", len(out))
	return out, nil
}

// Replace：在单个事务内删除并重建 ADDRESSES，再写入全部行
// 背景：目标表要么是上一次的完整结果，要么是本次的完整结果；任何一步失败都回滚。
// 约束：PostgreSQL 与 SQLite 的 DDL 均可参与事务；SQLite 连接池须为单连接。
func (s *Store) Replace(ctx context.Context, rows []hierarchy.AddressView) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin replace")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+migrate.AddressesTable); err != nil {
		return 0, errors.Wrap(err, "drop addresses")
	}
	if _, err := tx.ExecContext(ctx, migrate.AddressesDDL(s.driver)); err != nil {
		return 0, errors.Wrap(err, "create addresses")
	}
	stmt, err := tx.PreparexContext(ctx, s.db.Rebind(insertSQL()))
	if err != nil {
		return 0, errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	var n int64
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Values()...); err != nil {
			return n, errors.Wrapf(err, "insert place %d segment %d-%d", r.PlaceID, r.BelongsFirst, r.BelongsLast)
		}
		n++
		if n%5000 == 0 {
			logger.L().Info("addresses_write_progress", "count", n)
		}
	}
	if _, err := tx.ExecContext(ctx, migrate.AddressesIndexDDL()); err != nil {
		return n, errors.Wrap(err, "index addresses")
	}
	if err := tx.Commit(); err != nil {
		return n, errors.Wrap(err, "commit replace")
	}
	logger.L().Info("addresses_replaced", "rows", n)
	return n, nil
}

func insertSQL() string {
	marks := strings.TrimSuffix(strings.Repeat("?,", len(hierarchy.Columns)), ",")
	return "INSERT INTO " + migrate.AddressesTable + " (" + strings.Join(hierarchy.Columns, ", ") + ") VALUES (" + marks + ")"
}

// PlaceRows：回读某地址在 ADDRESSES 中的全部时间段，按起始年排序
func (s *Store) PlaceRows(ctx context.Context, placeID int64) ([]hierarchy.AddressView, error) {
	q := s.db.Rebind("SELECT " + strings.Join(hierarchy.Columns, ", ") + " FROM " + migrate.AddressesTable +
		" WHERE c_addr_id = ? ORDER BY c_belongs_firstyear")
	rows, err := s.db.QueryContext(ctx, q, placeID)
	if err != nil {
		return nil, errors.Wrapf(err, "select addresses for %d", placeID)
	}
	defer rows.Close()
	var out []hierarchy.AddressView
	for rows.Next() {
		v, err := scanAddress(rows)
		if err != nil {
			return nil, errors.Wrapf(err, "scan addresses for %d", placeID)
		}
		out = append(out, v)
	}
	return out, errors.Wrap(rows.Err(), "iterate addresses")
}

// CountRows：ADDRESSES 当前行数
func (s *Store) CountRows(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(1) FROM "+migrate.AddressesTable)
	return n, errors.Wrap(err, "count addresses")
}

func scanAddress(rows *sql.Rows) (hierarchy.AddressView, error) {
	var (
		v              hierarchy.AddressView
		name, chn, adm sql.NullString
		first, last    sql.NullInt64
		x, y           sql.NullFloat64
		ids            [hierarchy.MaxDepth]sql.NullInt64
		names, chns    [hierarchy.MaxDepth]sql.NullString
	)
	dest := []any{&v.PlaceID, &name, &chn, &adm, &first, &last, &v.BelongsFirst, &v.BelongsLast, &x, &y}
	for i := 0; i < hierarchy.MaxDepth; i++ {
		dest = append(dest, &ids[i], &names[i], &chns[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return v, err
	}
	v.Name, v.NameChn, v.AdminType = name.String, chn.String, adm.String
	v.FirstYear, v.LastYear = intPtr(first), intPtr(last)
	v.X, v.Y = floatPtr(x), floatPtr(y)
	for i := 0; i < hierarchy.MaxDepth; i++ {
		if ids[i].Valid {
			id := ids[i].Int64
			v.Belongs[i].ID = &id
		}
		v.Belongs[i].Name = strPtr(names[i])
		v.Belongs[i].NameChn = strPtr(chns[i])
	}
	return v, nil
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func strPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
