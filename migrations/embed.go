// Package migrations embeds the journal schema into the binary.
//
// Files follow the YYYYMMDD_HHMMSS_description.{up,down}.sql scheme read by
// database.LoadMigrations.
package migrations

import "embed"

//go:embed *.sql
var files embed.FS

// FS holds the migration files at its root.
var FS = files
