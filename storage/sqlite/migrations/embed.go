package migrations

import "embed"

// FS contains the embedded SQLite schema for credential state storage.
//
//go:embed *.sql
var FS embed.FS
