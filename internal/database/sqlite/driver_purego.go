//go:build !cgo_sqlite

package sqlite

import (
	"errors"

	msqlite "modernc.org/sqlite"
)

const (
	driverName       = "sqlite"
	driverType       = "purego"
	foreignKeysParam = "_pragma=foreign_keys(1)"
)

// primaryCode returns the SQLite primary result code carried by err, or 0.
func primaryCode(err error) int {
	var e *msqlite.Error
	if errors.As(err, &e) {
		return e.Code() & 0xff
	}
	return 0
}
