// Package migrations embeds the SQL migration files into the binary.
package migrations

import "embed"

//go:embed *.sql
var files embed.FS

// FS holds the *.up.sql files consumed by database.Migrate.
var FS = files
