// 包 utils：数据库与 Redis 连接工具，统一按配置选择驱动与连接池参数
package utils

import (
	"fmt"
	"net/url"

	"addr-hierarchy/internal/config"
	"addr-hierarchy/internal/logger"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// BuildPostgresDSN：由配置拼装 DSN；密码经 URL 转义
func BuildPostgresDSN(c config.Database) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	return u.String()
}

// SQLiteDSN：打开 CBDB 的 SQLite 文件；开启外部事务所需的忙等待，避免与只读查看进程冲突
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)"
}

// Open：按 Driver 打开数据库
// 约束：sqlite 只保留单连接，事务内 DDL 与写入需在同一连接上完成
func Open(c config.Database) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch c.Driver {
	case config.DriverPostgres:
		db, err = sqlx.Open("postgres", BuildPostgresDSN(c))
		if err == nil {
			db.SetMaxOpenConns(c.MaxOpenConns)
			db.SetMaxIdleConns(c.MaxIdleConns)
		}
	case config.DriverSQLite:
		db, err = sqlx.Open("sqlite", SQLiteDSN(c.SQLitePath))
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	default:
		return nil, errors.Errorf("unsupported db driver %q", c.Driver)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", c.Driver)
	}
	logger.L().Debug("db_open", "driver", c.Driver)
	return db, nil
}
