// Package mysql connects arcforge to MySQL and MariaDB through
// go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/errs"
)

const defaultPort = 3306

// Backend is the MySQL backend for database.NewManager.
var Backend = database.Backend{
	Dialect:  database.DialectMySQL,
	Open:     Open,
	MapError: mapError,
}

// Open builds a connector from cfg and returns a handle over it.
func Open(_ context.Context, cfg *database.Config) (*sql.DB, error) {
	mc, err := buildConfig(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid mysql config", err)
	}
	connector, err := gomysql.NewConnector(mc)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid mysql config", err)
	}
	return sql.OpenDB(connector), nil
}

// buildConfig parses cfg.DSN when set, otherwise assembles the driver config
// from the discrete fields. parseTime is always on so DATE and DATETIME
// columns scan as time.Time.
func buildConfig(cfg *database.Config) (*gomysql.Config, error) {
	if cfg.DSN != "" {
		mc, err := gomysql.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		mc.ParseTime = true
		mc.ClientFoundRows = true
		return mc, nil
	}

	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, port)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	// Report matched rather than changed rows, so an UPDATE writing the
	// same values is not mistaken for a missing row.
	mc.ClientFoundRows = true
	if cfg.ConnectTimeout > 0 {
		mc.Timeout = cfg.ConnectTimeout
	}
	return mc, nil
}
