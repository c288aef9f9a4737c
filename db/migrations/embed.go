// Package dbmigrations exposes embedded SQL migrations for basketcore binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into basketcore binaries.
//
//go:embed *.sql
var Files embed.FS
