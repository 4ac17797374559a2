package migrations

import "embed"

// FS contains embedded SQLite migrations for ruleset and character storage.
//
//go:embed *.sql
var FS embed.FS
