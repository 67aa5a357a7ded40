package migrations

import "embed"

// FS contains embedded SQLite migrations for plugin runtime storage.
//
//go:embed *.sql
var FS embed.FS
