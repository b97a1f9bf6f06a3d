// 包 migrate：源表与 ADDRESSES 的建表语句，按方言区分列类型
package migrate

import (
	"context"
	"strings"

	"addr-hierarchy/internal/config"
	"addr-hierarchy/internal/hierarchy"
	"addr-hierarchy/internal/logger"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	PlacesTable    = "ADDR_CODES"
	EdgesTable     = "ADDR_BELONGS_DATA"
	AddressesTable = "ADDRESSES"
)

type types struct{ id, year, text, coord string }

func typesFor(driver string) types {
	if driver == config.DriverPostgres {
		return types{id: "BIGINT", year: "INTEGER", text: "TEXT", coord: "DOUBLE PRECISION"}
	}
	return types{id: "INTEGER", year: "INTEGER", text: "TEXT", coord: "REAL"}
}

// AddressesDDL：ADDRESSES 表结构，列顺序与 hierarchy.Columns 一致
// 约束：不建主键，同一地址按时间段有多行
func AddressesDDL(driver string) string {
	t := typesFor(driver)
	colType := map[string]string{
		"c_addr_id": t.id, "c_name": t.text, "c_name_chn": t.text, "c_admin_type": t.text,
		"c_firstyear": t.year, "c_lastyear": t.year,
		"c_belongs_firstyear": t.year, "c_belongs_lastyear": t.year,
		"x_coord": t.coord, "y_coord": t.coord,
	}
	cols := make([]string, 0, len(hierarchy.Columns))
	for _, c := range hierarchy.Columns {
		typ, ok := colType[c]
		if !ok {
			switch {
			case strings.HasSuffix(c, "_ID"):
				typ = t.id
			default:
				typ = t.text
			}
		}
		cols = append(cols, c+" "+typ)
	}
	return "CREATE TABLE " + AddressesTable + " (\n\t" + strings.Join(cols, ",\n\t") + "\n)"
}

// AddressesIndexDDL：按地址与起始年读取回查
func AddressesIndexDDL() string {
	return "CREATE INDEX IF NOT EXISTS idx_addresses_addr_first ON " + AddressesTable + "(c_addr_id, c_belongs_firstyear)"
}

// SourceDDL：CBDB 源表的最小结构，仅用于空库初始化与测试
func SourceDDL(driver string) []string {
	t := typesFor(driver)
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + PlacesTable + ` (
            c_addr_id ` + t.id + ` PRIMARY KEY,
            c_name ` + t.text + `,
            c_name_chn ` + t.text + `,
            c_admin_type ` + t.text + `,
            c_firstyear ` + t.year + `,
            c_lastyear ` + t.year + `,
            x_coord ` + t.coord + `,
            y_coord ` + t.coord + `
        )`,
		`CREATE TABLE IF NOT EXISTS ` + EdgesTable + ` (
            c_addr_id ` + t.id + ` NOT NULL,
            c_belongs_to ` + t.id + `,
            c_firstyear ` + t.year + `,
            c_lastyear ` + t.year + `
        )`,
		`CREATE INDEX IF NOT EXISTS idx_belongs_addr ON ` + EdgesTable + `(c_addr_id)`,
	}
}

// EnsureSchema：首次运行时创建源表与空的 ADDRESSES
// 约束：全部使用 IF NOT EXISTS，不改动既有结构与数据
func EnsureSchema(ctx context.Context, db *sqlx.DB, driver string) error {
	stmts := SourceDDL(driver)
	stmts = append(stmts,
		strings.Replace(AddressesDDL(driver), "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1),
		AddressesIndexDDL(),
	)
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return errors.Wrapf(err, "schema statement %d", i)
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
