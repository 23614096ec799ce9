//go:build cgo_sqlite

// CGO SQLite driver using mattn/go-sqlite3.
//
// Build with: go build -tags cgo_sqlite
// Requires: CGO_ENABLED=1
package sqlite

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

const (
	driverName       = "sqlite3"
	driverType       = "cgo"
	foreignKeysParam = "_foreign_keys=on"
)

func primaryCode(err error) int {
	var e sqlite3.Error
	if errors.As(err, &e) {
		return int(e.Code)
	}
	return 0
}
