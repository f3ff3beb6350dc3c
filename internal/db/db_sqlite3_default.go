//go:build !(cgo && sqlite3_cgo)

package db

import (
	// pure Go (wasm) driver, the default so release builds stay CGO_ENABLED=0
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const (
	driverID   = "ncruces/go-sqlite3"
	driverName = "sqlite3"
)
