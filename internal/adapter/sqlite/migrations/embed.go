package migrations

import "embed"

// FS contains the embedded SQLite migrations for the storm store.
//
//go:embed *.sql
var FS embed.FS
